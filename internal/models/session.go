package models

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus tracks the lifecycle of an assessment attempt.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionSealed     SessionStatus = "sealed"
)

// SealReason explains why an attempt was closed.
type SealReason string

const (
	SealSubmitted SealReason = "submitted"
	SealTimeout   SealReason = "timeout"
	SealForced    SealReason = "forced"
)

// Integrity reasons recorded on forced seals.
const (
	IntegrityFocusLossLimit    = "focus_loss_limit"
	IntegrityClipboardKeyLimit = "clipboard_key_limit"
)

// AssessmentSession is one candidate attempt at one definition for one application.
type AssessmentSession struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	ApplicationID     uint               `gorm:"not null;uniqueIndex:idx_session_application_definition" json:"application_id"`
	DefinitionID      uint               `gorm:"not null;uniqueIndex:idx_session_application_definition" json:"definition_id"`
	CandidateID       uint               `gorm:"not null;index" json:"candidate_id"`
	Status            SessionStatus      `gorm:"size:16;not null;index" json:"status"`
	StartedAt         time.Time          `gorm:"not null" json:"started_at"`
	Deadline          time.Time          `gorm:"not null;index" json:"deadline"`
	SealedAt          *time.Time         `json:"sealed_at,omitempty"`
	SealReason        SealReason         `gorm:"size:16" json:"seal_reason,omitempty"`
	IntegrityReason   string             `gorm:"size:64" json:"integrity_reason,omitempty"`
	FocusLossCount    int                `gorm:"not null;default:0" json:"focus_loss_count"`
	ClipboardKeyCount int                `gorm:"not null;default:0" json:"clipboard_key_count"`
	DraftQuestionID   *uint              `json:"draft_question_id,omitempty"`
	DraftChoiceID     *uint              `json:"draft_choice_id,omitempty"`
	DraftText         string             `gorm:"type:text" json:"draft_text,omitempty"`
	DraftSavedAt      *time.Time         `json:"draft_saved_at,omitempty"`
	Snapshot          datatypes.JSON     `gorm:"type:json" json:"snapshot,omitempty"`
	Score             *float64           `json:"score,omitempty"`
	AutoGradable      int                `gorm:"not null;default:0" json:"auto_gradable"`
	CorrectCount      int                `gorm:"not null;default:0" json:"correct_count"`
	PendingReview     int                `gorm:"not null;default:0" json:"pending_review"`
	GradedAt          *time.Time         `json:"graded_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Answers           []AssessmentAnswer `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

// IsSealed reports whether the attempt is final.
func (s AssessmentSession) IsSealed() bool {
	return s.Status == SessionSealed
}

// PastDeadline reports whether now is strictly after the deadline.
func (s AssessmentSession) PastDeadline(now time.Time) bool {
	return now.After(s.Deadline)
}

// Remaining returns the time left before the deadline, never negative.
func (s AssessmentSession) Remaining(now time.Time) time.Duration {
	if s.IsSealed() || s.PastDeadline(now) {
		return 0
	}
	return s.Deadline.Sub(now)
}

// HasDraft reports whether an uncommitted edit is parked on the session.
func (s AssessmentSession) HasDraft() bool {
	return s.DraftQuestionID != nil && s.DraftSavedAt != nil
}

// AssessmentAnswer is the committed answer of one question in a session.
type AssessmentAnswer struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	SessionID    uint         `gorm:"not null;uniqueIndex:idx_answer_session_question" json:"session_id"`
	QuestionID   uint         `gorm:"not null;uniqueIndex:idx_answer_session_question" json:"question_id"`
	Kind         QuestionKind `gorm:"size:32;not null" json:"kind"`
	ChoiceID     *uint        `json:"choice_id,omitempty"`
	Text         string       `gorm:"type:text" json:"text,omitempty"`
	AnsweredAt   time.Time    `gorm:"not null" json:"answered_at"`
	ReviewPoints *float64     `json:"review_points,omitempty"`
	ReviewedBy   *uint        `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// SnapshotEntry is the frozen form of an answer captured at seal time.
type SnapshotEntry struct {
	QuestionID uint         `json:"question_id"`
	Kind       QuestionKind `json:"kind"`
	ChoiceID   *uint        `json:"choice_id,omitempty"`
	Text       string       `json:"text,omitempty"`
	AnsweredAt time.Time    `json:"answered_at"`
}

// Violation categories reported by the exam client.
const (
	ViolationFocusLoss    = "focus_loss"
	ViolationNavigation   = "navigation"
	ViolationClipboard    = "clipboard"
	ViolationForbiddenKey = "forbidden_key"
)

// IntegrityViolation persists a client reported rule breach.
type IntegrityViolation struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	SessionID  uint              `gorm:"not null;index" json:"session_id"`
	Category   string            `gorm:"size:32;not null" json:"category"`
	Detail     string            `gorm:"size:255" json:"detail,omitempty"`
	OccurredAt time.Time         `gorm:"not null" json:"occurred_at"`
	AfterSeal  bool              `gorm:"not null;default:false" json:"after_seal"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
