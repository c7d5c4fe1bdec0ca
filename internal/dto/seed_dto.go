package dto

import "time"

// SeedAssessmentsRequest imports question packs and vacancy bindings.
type SeedAssessmentsRequest struct {
	Definitions []SeedDefinition `json:"definitions" yaml:"definitions" validate:"required,min=1,dive"`
}

// SeedDefinition describes one question pack.
type SeedDefinition struct {
	Title            string         `json:"title" yaml:"title" validate:"required,max=255"`
	Description      string         `json:"description" yaml:"description"`
	DurationMinutes  int            `json:"duration_minutes" yaml:"duration_minutes" validate:"required,gt=0,lte=600"`
	OpensAt          *time.Time     `json:"opens_at" yaml:"opens_at"`
	ClosesAt         *time.Time     `json:"closes_at" yaml:"closes_at"`
	VacancyPeriodIDs []uint         `json:"vacancy_period_ids" yaml:"vacancy_period_ids" validate:"omitempty,dive,gt=0"`
	Questions        []SeedQuestion `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

// SeedQuestion describes one question of a pack.
type SeedQuestion struct {
	Prompt  string       `json:"prompt" yaml:"prompt" validate:"required"`
	Kind    string       `json:"kind" yaml:"kind" validate:"required,oneof=multiple_choice essay"`
	Choices []SeedChoice `json:"choices" yaml:"choices" validate:"omitempty,dive"`
}

// SeedChoice describes one option of a multiple choice question.
type SeedChoice struct {
	Text    string `json:"text" yaml:"text" validate:"required"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// SeedAssessmentsResponse reports what the import created.
type SeedAssessmentsResponse struct {
	Definitions []SeededDefinition `json:"definitions"`
	Bindings    int                `json:"bindings"`
}

// SeededDefinition summarizes an imported definition.
type SeededDefinition struct {
	ID            uint   `json:"id"`
	Title         string `json:"title"`
	Questions     int    `json:"questions"`
	AutoGradable  int    `json:"auto_gradable"`
	EssayQuestion int    `json:"essay_questions"`
}
