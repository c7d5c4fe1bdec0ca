package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audited actions.
const (
	ActionStageAdvanced   = "stage.advanced"
	ActionStageScored     = "stage.scored"
	ActionStageScheduled  = "stage.scheduled"
	ActionStageCompleted  = "stage.completed"
	ActionSessionForced   = "session.forced_seal"
	ActionSessionRegraded = "session.regraded"
	ActionAnswerReviewed  = "answer.reviewed"
	ActionSweepTriggered  = "assessment.sweep"
	ActionApplicationDrop = "application.withdrawn"
)

// Audited entity types.
const (
	EntityApplication = "application"
	EntitySession     = "assessment_session"
	EntityAnswer      = "assessment_answer"
)

// ActivityLog captures auditable events triggered by reviewers, candidates and the system.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `gorm:"index" json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
