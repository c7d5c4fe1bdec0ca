package dto

import (
	"time"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID            uint      `json:"id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	ApplicationID *uint     `json:"application_id,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            model.ID,
		UserID:        model.UserID,
		Type:          model.Type,
		Message:       model.Message,
		ApplicationID: model.ApplicationID,
		Read:          model.Read,
		CreatedAt:     model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
