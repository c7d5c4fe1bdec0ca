package models

import "time"

// QuestionKind distinguishes auto-gradable questions from free text ones.
type QuestionKind string

const (
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionEssay          QuestionKind = "essay"
)

// AssessmentDefinition describes a timed question pack.
type AssessmentDefinition struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	DurationMinutes int        `gorm:"not null" json:"duration_minutes"`
	OpensAt         *time.Time `json:"opens_at,omitempty"`
	ClosesAt        *time.Time `json:"closes_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `gorm:"foreignKey:DefinitionID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// WithinWindow reports whether now falls inside the optional open/close window.
func (d AssessmentDefinition) WithinWindow(now time.Time) bool {
	if d.OpensAt != nil && now.Before(*d.OpensAt) {
		return false
	}
	if d.ClosesAt != nil && now.After(*d.ClosesAt) {
		return false
	}
	return true
}

// DeadlineFrom computes the deadline for an attempt started at start.
func (d AssessmentDefinition) DeadlineFrom(start time.Time) time.Time {
	deadline := start.Add(time.Duration(d.DurationMinutes) * time.Minute)
	if d.ClosesAt != nil && d.ClosesAt.Before(deadline) {
		deadline = *d.ClosesAt
	}
	return deadline
}

// QuestionByID finds a question of the definition.
func (d AssessmentDefinition) QuestionByID(id uint) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Question is a single prompt within a definition.
type Question struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	DefinitionID uint         `gorm:"not null;index" json:"definition_id"`
	Position     int          `gorm:"not null" json:"position"`
	Prompt       string       `gorm:"type:text;not null" json:"prompt"`
	Kind         QuestionKind `gorm:"size:32;not null" json:"kind"`
	Choices      []Choice     `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
}

// CorrectChoiceID returns the correct choice when exactly one is flagged.
func (q Question) CorrectChoiceID() (uint, bool) {
	var (
		found uint
		count int
	)
	for _, c := range q.Choices {
		if c.IsCorrect {
			found = c.ID
			count++
		}
	}
	if count != 1 {
		return 0, false
	}
	return found, true
}

// IsAutoGradable reports whether the question contributes to the objective score.
func (q Question) IsAutoGradable() bool {
	if q.Kind != QuestionMultipleChoice {
		return false
	}
	_, ok := q.CorrectChoiceID()
	return ok
}

// HasChoice reports whether id belongs to the question.
func (q Question) HasChoice(id uint) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Choice is an option of a multiple choice question.
type Choice struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	Position   int    `gorm:"not null" json:"position"`
	Text       string `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool   `gorm:"not null;default:false" json:"is_correct"`
}

// VacancyAssessment binds an assessment definition to a vacancy period.
type VacancyAssessment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	VacancyPeriodID uint      `gorm:"not null;uniqueIndex:idx_vacancy_definition" json:"vacancy_period_id"`
	DefinitionID    uint      `gorm:"not null;uniqueIndex:idx_vacancy_definition" json:"definition_id"`
	CreatedAt       time.Time `json:"created_at"`
}
