package models

import "time"

// Notification types emitted by the pipeline.
const (
	NotificationStageChanged    = "stage_changed"
	NotificationStageScheduled  = "stage_scheduled"
	NotificationAssessmentSeal  = "assessment_sealed"
	NotificationApplicationDone = "application_decided"
)

// Notification is a message targeted to a single user.
type Notification struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"size:64;index" json:"user_id"`
	Type          string    `gorm:"size:64" json:"type"`
	Message       string    `gorm:"type:text" json:"message"`
	ApplicationID *uint     `gorm:"index" json:"application_id,omitempty"`
	Read          bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
