package dto

import (
	"time"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// StartAssessmentRequest opens (or resumes) an attempt.
type StartAssessmentRequest struct {
	ApplicationID uint `json:"application_id" validate:"required,gt=0"`
	DefinitionID  uint `json:"definition_id" validate:"required,gt=0"`
	AcceptRules   bool `json:"accept_rules"`
}

// AnswerRequest carries either a choice or a free text answer.
type AnswerRequest struct {
	ChoiceID *uint   `json:"choice_id" validate:"omitempty,gt=0"`
	Text     *string `json:"text" validate:"omitempty,max=20000"`
}

// DraftRequest parks the edit currently in view.
type DraftRequest struct {
	QuestionID uint    `json:"question_id" validate:"required,gt=0"`
	ChoiceID   *uint   `json:"choice_id" validate:"omitempty,gt=0"`
	Text       *string `json:"text" validate:"omitempty,max=20000"`
}

// SealRequest finalizes the attempt from the candidate side.
type SealRequest struct {
	Reason  string        `json:"reason" validate:"omitempty,oneof=submitted timeout"`
	Pending *DraftRequest `json:"pending" validate:"omitempty"`
}

// ViolationRequest reports a client detected rule breach.
type ViolationRequest struct {
	Category string                 `json:"category" validate:"required,oneof=focus_loss navigation clipboard forbidden_key"`
	Detail   string                 `json:"detail" validate:"omitempty,max=255"`
	Metadata map[string]interface{} `json:"metadata"`
}

// EssayReviewRequest records human points on an essay answer.
type EssayReviewRequest struct {
	Points *float64 `json:"points" validate:"required,gte=0,lte=100"`
}

// PaperChoice is a choice as the candidate sees it.
type PaperChoice struct {
	ID       uint   `json:"id"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// PaperQuestion is a question as the candidate sees it.
type PaperQuestion struct {
	ID       uint          `json:"id"`
	Position int           `json:"position"`
	Prompt   string        `json:"prompt"`
	Kind     string        `json:"kind"`
	Choices  []PaperChoice `json:"choices,omitempty"`
}

// PaperResponse is the candidate copy of a definition. It never carries correctness flags.
type PaperResponse struct {
	DefinitionID    uint            `json:"definition_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
	Questions       []PaperQuestion `json:"questions"`
}

// AnswerResponse serializes a committed answer.
type AnswerResponse struct {
	ID           uint       `json:"id"`
	QuestionID   uint       `json:"question_id"`
	Kind         string     `json:"kind"`
	ChoiceID     *uint      `json:"choice_id,omitempty"`
	Text         string     `json:"text,omitempty"`
	AnsweredAt   time.Time  `json:"answered_at"`
	ReviewPoints *float64   `json:"review_points,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
}

// DraftResponse serializes the parked edit.
type DraftResponse struct {
	QuestionID uint      `json:"question_id"`
	ChoiceID   *uint     `json:"choice_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// SessionResponse is the candidate view of an attempt.
type SessionResponse struct {
	ID                uint             `json:"id"`
	ApplicationID     uint             `json:"application_id"`
	DefinitionID      uint             `json:"definition_id"`
	Status            string           `json:"status"`
	StartedAt         time.Time        `json:"started_at"`
	Deadline          time.Time        `json:"deadline"`
	RemainingSeconds  int64            `json:"remaining_seconds"`
	SealedAt          *time.Time       `json:"sealed_at,omitempty"`
	SealReason        string           `json:"seal_reason,omitempty"`
	IntegrityReason   string           `json:"integrity_reason,omitempty"`
	FocusLossCount    int              `json:"focus_loss_count"`
	ClipboardKeyCount int              `json:"clipboard_key_count"`
	Answers           []AnswerResponse `json:"answers"`
	Draft             *DraftResponse   `json:"draft,omitempty"`
}

// ViolationResponse serializes a persisted violation.
type ViolationResponse struct {
	ID         uint                   `json:"id"`
	Category   string                 `json:"category"`
	Detail     string                 `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	AfterSeal  bool                   `json:"after_seal"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SessionReviewResponse is the reviewer view of an attempt including grading output.
type SessionReviewResponse struct {
	SessionResponse
	CandidateID   uint                   `json:"candidate_id"`
	Score         *float64               `json:"score"`
	AutoGradable  int                    `json:"auto_gradable"`
	CorrectCount  int                    `json:"correct_count"`
	PendingReview int                    `json:"pending_review"`
	GradedAt      *time.Time             `json:"graded_at,omitempty"`
	Snapshot      []models.SnapshotEntry `json:"snapshot,omitempty"`
	Violations    []ViolationResponse    `json:"violations"`
}

// StartAssessmentResponse is returned by the start endpoint.
type StartAssessmentResponse struct {
	Session SessionResponse `json:"session"`
	Paper   PaperResponse   `json:"paper"`
	Resumed bool            `json:"resumed"`
}

// SealResponse reports the final state of an attempt.
type SealResponse struct {
	Session SessionResponse `json:"session"`
	Sealed  bool            `json:"sealed"`
	Message string          `json:"message,omitempty"`
}

// ViolationOutcome reports what a violation report did to the attempt.
type ViolationOutcome struct {
	Violation ViolationResponse `json:"violation"`
	Warning   bool              `json:"warning"`
	Sealed    bool              `json:"sealed"`
	Message   string            `json:"message,omitempty"`
	Session   SessionResponse   `json:"session"`
}

// GradeResult summarizes an objective grading pass.
type GradeResult struct {
	SessionID     uint     `json:"session_id"`
	Score         *float64 `json:"score"`
	AutoGradable  int      `json:"auto_gradable"`
	CorrectCount  int      `json:"correct_count"`
	PendingReview int      `json:"pending_review"`
}

// SweepResult reports a sweep run.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Sealed  int `json:"sealed"`
}

// NewPaperResponse strips correctness flags from a definition.
func NewPaperResponse(def models.AssessmentDefinition) PaperResponse {
	paper := PaperResponse{
		DefinitionID:    def.ID,
		Title:           def.Title,
		Description:     def.Description,
		DurationMinutes: def.DurationMinutes,
		Questions:       make([]PaperQuestion, 0, len(def.Questions)),
	}
	for _, q := range def.Questions {
		item := PaperQuestion{
			ID:       q.ID,
			Position: q.Position,
			Prompt:   q.Prompt,
			Kind:     string(q.Kind),
		}
		for _, c := range q.Choices {
			item.Choices = append(item.Choices, PaperChoice{ID: c.ID, Position: c.Position, Text: c.Text})
		}
		paper.Questions = append(paper.Questions, item)
	}
	return paper
}

// NewAnswerResponse converts an answer model into a DTO.
func NewAnswerResponse(answer models.AssessmentAnswer) AnswerResponse {
	return AnswerResponse{
		ID:           answer.ID,
		QuestionID:   answer.QuestionID,
		Kind:         string(answer.Kind),
		ChoiceID:     answer.ChoiceID,
		Text:         answer.Text,
		AnsweredAt:   answer.AnsweredAt,
		ReviewPoints: answer.ReviewPoints,
		ReviewedAt:   answer.ReviewedAt,
	}
}

// NewSessionResponse converts a session into the candidate view as of now.
func NewSessionResponse(session models.AssessmentSession, now time.Time) SessionResponse {
	response := SessionResponse{
		ID:                session.ID,
		ApplicationID:     session.ApplicationID,
		DefinitionID:      session.DefinitionID,
		Status:            string(session.Status),
		StartedAt:         session.StartedAt,
		Deadline:          session.Deadline,
		RemainingSeconds:  int64(session.Remaining(now).Seconds()),
		SealedAt:          session.SealedAt,
		SealReason:        string(session.SealReason),
		IntegrityReason:   session.IntegrityReason,
		FocusLossCount:    session.FocusLossCount,
		ClipboardKeyCount: session.ClipboardKeyCount,
		Answers:           make([]AnswerResponse, 0, len(session.Answers)),
	}
	for _, answer := range session.Answers {
		response.Answers = append(response.Answers, NewAnswerResponse(answer))
	}
	if !session.IsSealed() && session.HasDraft() {
		response.Draft = &DraftResponse{
			QuestionID: *session.DraftQuestionID,
			ChoiceID:   session.DraftChoiceID,
			Text:       session.DraftText,
			SavedAt:    *session.DraftSavedAt,
		}
	}
	return response
}

// NewViolationResponse converts a violation model into a DTO.
func NewViolationResponse(v models.IntegrityViolation) ViolationResponse {
	out := ViolationResponse{
		ID:         v.ID,
		Category:   v.Category,
		Detail:     v.Detail,
		OccurredAt: v.OccurredAt,
		AfterSeal:  v.AfterSeal,
	}
	if len(v.Metadata) > 0 {
		out.Metadata = metadataFromJSON(v.Metadata)
	}
	return out
}

// NewViolationResponseSlice converts violations to DTOs.
func NewViolationResponseSlice(items []models.IntegrityViolation) []ViolationResponse {
	out := make([]ViolationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewViolationResponse(item))
	}
	return out
}
