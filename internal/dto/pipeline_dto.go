package dto

import (
	"time"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// ApplyRequest opens an application for a vacancy period.
type ApplyRequest struct {
	VacancyPeriodID uint `json:"vacancy_period_id" validate:"required,gt=0"`
}

// StageAdvanceRequest records a reviewer outcome for the active stage.
type StageAdvanceRequest struct {
	Qualified *bool  `json:"qualified" validate:"required"`
	Notes     string `json:"notes" validate:"omitempty,max=4000"`
}

// StageScoreRequest attaches a score to the active stage.
type StageScoreRequest struct {
	Score *float64 `json:"score" validate:"required"`
}

// StageScheduleRequest sets the appointment time of the active stage.
type StageScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Notes       string    `json:"notes" validate:"omitempty,max=4000"`
}

// StageRecordResponse serializes one entry of the stage history.
type StageRecordResponse struct {
	ID             uint       `json:"id"`
	Stage          string     `json:"stage"`
	StageLabel     string     `json:"stage_label"`
	EnteredAt      time.Time  `json:"entered_at"`
	Score          *float64   `json:"score"`
	Notes          string     `json:"notes,omitempty"`
	Qualification  string     `json:"qualification"`
	ReviewerID     *uint      `json:"reviewer_id,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DecisionMadeAt *time.Time `json:"decision_made_at,omitempty"`
}

// ApplicationResponse serializes an application with its stage history.
type ApplicationResponse struct {
	ID              uint                  `json:"id"`
	CandidateID     uint                  `json:"candidate_id"`
	VacancyPeriodID uint                  `json:"vacancy_period_id"`
	Status          string                `json:"status"`
	WithdrawnAt     *time.Time            `json:"withdrawn_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	Stages          []StageRecordResponse `json:"stages"`
}

// DisplayStatus is the derived, never stored, candidate-facing status.
type DisplayStatus struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// ApplicationStatusResponse bundles the derived status with the raw history.
type ApplicationStatusResponse struct {
	ApplicationID     uint                  `json:"application_id"`
	ApplicationStatus string                `json:"application_status"`
	Status            DisplayStatus         `json:"status"`
	CurrentStage      string                `json:"current_stage,omitempty"`
	Warnings          []string              `json:"warnings,omitempty"`
	History           []StageRecordResponse `json:"history"`
}

// NewStageRecordResponse converts a stage record model into a DTO.
func NewStageRecordResponse(record models.StageRecord) StageRecordResponse {
	return StageRecordResponse{
		ID:             record.ID,
		Stage:          string(record.Stage),
		StageLabel:     record.Stage.Label(),
		EnteredAt:      record.EnteredAt,
		Score:          record.Score,
		Notes:          record.Notes,
		Qualification:  string(record.Qualification),
		ReviewerID:     record.ReviewerID,
		ScheduledAt:    record.ScheduledAt,
		CompletedAt:    record.CompletedAt,
		DecisionMadeAt: record.DecisionMadeAt,
	}
}

// NewStageRecordResponseSlice converts stage records to DTOs.
func NewStageRecordResponseSlice(records []models.StageRecord) []StageRecordResponse {
	out := make([]StageRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, NewStageRecordResponse(record))
	}
	return out
}

// NewApplicationResponse converts an application model into a DTO.
func NewApplicationResponse(model models.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:              model.ID,
		CandidateID:     model.CandidateID,
		VacancyPeriodID: model.VacancyPeriodID,
		Status:          model.Status,
		WithdrawnAt:     model.WithdrawnAt,
		CreatedAt:       model.CreatedAt,
		Stages:          NewStageRecordResponseSlice(model.Stages),
	}
}

// NewApplicationResponseSlice converts applications to DTOs.
func NewApplicationResponseSlice(items []models.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewApplicationResponse(item))
	}
	return out
}
