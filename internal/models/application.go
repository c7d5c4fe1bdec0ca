package models

import (
	"strings"
	"time"
)

// Application status values.
const (
	ApplicationInProgress = "in_progress"
	ApplicationRejected   = "rejected"
	ApplicationAccepted   = "accepted"
	ApplicationWithdrawn  = "withdrawn"
)

// Stage tags a step of the hiring pipeline.
type Stage string

// Pipeline stages in their fixed order.
const (
	StageAdministrative Stage = "ADMINISTRATIVE"
	StageAssessment     Stage = "ASSESSMENT"
	StageInterview      Stage = "INTERVIEW"
	StageDecision       Stage = "DECISION"
)

var stageOrder = []Stage{StageAdministrative, StageAssessment, StageInterview, StageDecision}

var stageLabels = map[Stage]string{
	StageAdministrative: "Administrative Review",
	StageAssessment:     "Assessment",
	StageInterview:      "Interview",
	StageDecision:       "Final Decision",
}

// ParseStage accepts a stage tag in any letter case.
func ParseStage(raw string) (Stage, bool) {
	candidate := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	for _, stage := range stageOrder {
		if stage == candidate {
			return stage, true
		}
	}
	return "", false
}

// Order returns the zero-based position of the stage, or -1 when unknown.
func (s Stage) Order() int {
	for idx, stage := range stageOrder {
		if stage == s {
			return idx
		}
	}
	return -1
}

// Next returns the stage that follows s. DECISION has no successor.
func (s Stage) Next() (Stage, bool) {
	idx := s.Order()
	if idx < 0 || idx+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[idx+1], true
}

// Label returns the human readable stage name.
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return string(s)
}

// Qualification records the reviewer outcome of a stage.
type Qualification string

const (
	QualificationPending     Qualification = "pending"
	QualificationQualified   Qualification = "qualified"
	QualificationUnqualified Qualification = "unqualified"
)

// Application links a candidate to a vacancy period.
type Application struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	CandidateID     uint          `gorm:"not null;uniqueIndex:idx_application_active,where:status <> 'withdrawn'" json:"candidate_id"`
	VacancyPeriodID uint          `gorm:"not null;uniqueIndex:idx_application_active,where:status <> 'withdrawn'" json:"vacancy_period_id"`
	Status          string        `gorm:"size:32;not null;default:in_progress;index" json:"status"`
	WithdrawnAt     *time.Time    `json:"withdrawn_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Stages          []StageRecord `gorm:"foreignKey:ApplicationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"stages,omitempty"`
}

// IsOpen reports whether the application may still move through the pipeline.
func (a Application) IsOpen() bool {
	return a.Status == ApplicationInProgress
}

// StageRecord is one append-only entry of an application's stage history.
type StageRecord struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	ApplicationID  uint          `gorm:"not null;index" json:"application_id"`
	Stage          Stage         `gorm:"size:32;not null" json:"stage"`
	EnteredAt      time.Time     `gorm:"not null" json:"entered_at"`
	Score          *float64      `json:"score,omitempty"`
	Notes          string        `gorm:"type:text" json:"notes,omitempty"`
	Qualification  Qualification `gorm:"size:16;not null;default:pending" json:"qualification"`
	ReviewerID     *uint         `json:"reviewer_id,omitempty"`
	ScheduledAt    *time.Time    `json:"scheduled_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	DecisionMadeAt *time.Time    `json:"decision_made_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsActive reports whether the record still awaits a reviewer decision.
func (r StageRecord) IsActive() bool {
	return r.DecisionMadeAt == nil
}
