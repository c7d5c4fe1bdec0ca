package service

import (
	"fmt"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// Display status codes derived from the stage history.
const (
	StatusReceived             = "application_received"
	StatusAdministrativeReview = "administrative_review"
	StatusAssessmentScheduled  = "assessment_scheduled"
	StatusAssessmentCompleted  = "assessment_completed"
	StatusInterviewPending     = "interview_pending_schedule"
	StatusInterviewScheduled   = "interview_scheduled"
	StatusInterviewCompleted   = "interview_completed"
	StatusAwaitingDecision     = "awaiting_decision"
	StatusAccepted             = "accepted"
	StatusRejected             = "rejected"
	StatusWithdrawn            = "withdrawn"
)

// authoritativeRecord returns the most recently created record plus integrity warnings
// about duplicate stage tags. records must be ordered by creation.
func authoritativeRecord(records []models.StageRecord) (*models.StageRecord, []string) {
	if len(records) == 0 {
		return nil, nil
	}

	seen := make(map[models.Stage]int, len(records))
	for _, record := range records {
		seen[record.Stage]++
	}

	var warnings []string
	for _, stage := range []models.Stage{models.StageAdministrative, models.StageAssessment, models.StageInterview, models.StageDecision} {
		if seen[stage] > 1 {
			warnings = append(warnings, fmt.Sprintf("%d %s stage records found; the most recent one is used", seen[stage], stage))
		}
	}

	last := records[len(records)-1]
	return &last, warnings
}

// DeriveStatus computes the candidate-facing status. It is a pure function of the
// application and its ordered stage history.
func DeriveStatus(application models.Application, records []models.StageRecord) (dto.DisplayStatus, []string) {
	current, warnings := authoritativeRecord(records)

	if application.Status == models.ApplicationWithdrawn {
		return dto.DisplayStatus{Code: StatusWithdrawn, Label: "Withdrawn"}, warnings
	}
	if current == nil {
		return dto.DisplayStatus{Code: StatusReceived, Label: "Application Received"}, warnings
	}

	if current.Qualification == models.QualificationUnqualified || application.Status == models.ApplicationRejected {
		return dto.DisplayStatus{Code: StatusRejected, Label: "Rejected at " + current.Stage.Label()}, warnings
	}
	if application.Status == models.ApplicationAccepted ||
		(current.Stage == models.StageDecision && current.Qualification == models.QualificationQualified) {
		return dto.DisplayStatus{Code: StatusAccepted, Label: "Accepted"}, warnings
	}

	switch current.Stage {
	case models.StageAdministrative:
		return dto.DisplayStatus{Code: StatusAdministrativeReview, Label: "In Administrative Review"}, warnings
	case models.StageAssessment:
		if current.CompletedAt != nil {
			return dto.DisplayStatus{Code: StatusAssessmentCompleted, Label: "Assessment Completed, Awaiting Review"}, warnings
		}
		return dto.DisplayStatus{Code: StatusAssessmentScheduled, Label: "Assessment Scheduled"}, warnings
	case models.StageInterview:
		switch {
		case current.CompletedAt != nil:
			return dto.DisplayStatus{Code: StatusInterviewCompleted, Label: "Interview Completed, Awaiting Result"}, warnings
		case current.ScheduledAt != nil:
			return dto.DisplayStatus{Code: StatusInterviewScheduled, Label: "Interview Scheduled"}, warnings
		default:
			return dto.DisplayStatus{Code: StatusInterviewPending, Label: "Awaiting Interview Schedule"}, warnings
		}
	default:
		return dto.DisplayStatus{Code: StatusAwaitingDecision, Label: "Awaiting Final Decision"}, warnings
	}
}
