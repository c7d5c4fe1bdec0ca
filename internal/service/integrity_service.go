package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/observability"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
)

// IntegrityLimits configures when repeated violations force a seal.
type IntegrityLimits struct {
	FocusLoss    int
	ClipboardKey int
}

func (l IntegrityLimits) normalized() IntegrityLimits {
	if l.FocusLoss <= 0 {
		l.FocusLoss = 2
	}
	if l.ClipboardKey <= 0 {
		l.ClipboardKey = 3
	}
	return l
}

// IntegrityService counts client reported violations and enforces the forced seal.
type IntegrityService interface {
	Report(ctx context.Context, sessionID uint, payload dto.ViolationRequest, actor ActivityActor) (dto.ViolationOutcome, error)
}

type integrityService struct {
	sessions   repository.SessionRepository
	assessment AssessmentService
	limits     IntegrityLimits
	validator  *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// NewIntegrityService constructs the integrity monitor.
func NewIntegrityService(
	sessions repository.SessionRepository,
	assessment AssessmentService,
	limits IntegrityLimits,
	validate *validator.Validate,
	logger zerolog.Logger,
) IntegrityService {
	return &integrityService{
		sessions:   sessions,
		assessment: assessment,
		limits:     limits.normalized(),
		validator:  validate,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "integrity_service").Logger(),
		now:        time.Now,
	}
}

func counterFor(category string) string {
	switch category {
	case models.ViolationFocusLoss, models.ViolationNavigation:
		return repository.CounterFocusLoss
	case models.ViolationClipboard, models.ViolationForbiddenKey:
		return repository.CounterClipboardKey
	default:
		return ""
	}
}

func (s *integrityService) Report(ctx context.Context, sessionID uint, payload dto.ViolationRequest, actor ActivityActor) (dto.ViolationOutcome, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ViolationOutcome{}, err
	}

	session, err := s.assessment.OwnedSession(ctx, sessionID, actor.ID)
	if err != nil {
		return dto.ViolationOutcome{}, err
	}

	now := s.now().UTC()
	if !session.IsSealed() && session.PastDeadline(now) {
		if _, err := s.assessment.Seal(ctx, sessionID, models.SealTimeout, ""); err != nil {
			return dto.ViolationOutcome{}, err
		}
	}

	violation := models.IntegrityViolation{
		SessionID:  sessionID,
		Category:   payload.Category,
		Detail:     strings.TrimSpace(s.sanitizer.Sanitize(payload.Detail)),
		OccurredAt: now,
		Metadata:   sanitizeMetadata(payload.Metadata),
	}
	counter := counterFor(payload.Category)
	updated, err := s.sessions.RecordViolation(ctx, &violation, counter)
	if err != nil {
		return dto.ViolationOutcome{}, fmt.Errorf("record violation: %w", err)
	}

	observability.IntegrityViolations().
		WithLabelValues(payload.Category, strconv.FormatBool(violation.AfterSeal)).
		Inc()

	outcome := dto.ViolationOutcome{Violation: dto.NewViolationResponse(violation)}

	if violation.AfterSeal {
		outcome.Message = "the assessment is already submitted; the report was stored for review"
		outcome.Session = s.assessment.View(updated)
		return outcome, nil
	}

	var (
		count      int
		limit      int
		sealReason string
	)
	switch counter {
	case repository.CounterFocusLoss:
		count, limit, sealReason = updated.FocusLossCount, s.limits.FocusLoss, models.IntegrityFocusLossLimit
	case repository.CounterClipboardKey:
		count, limit, sealReason = updated.ClipboardKeyCount, s.limits.ClipboardKey, models.IntegrityClipboardKeyLimit
	}

	if count >= limit {
		sealed, err := s.assessment.Seal(ctx, sessionID, models.SealForced, sealReason)
		if err != nil {
			return dto.ViolationOutcome{}, err
		}
		s.logger.Warn().
			Uint("session_id", sessionID).
			Str("category", payload.Category).
			Int("count", count).
			Bool("sealed_here", sealed.Sealed).
			Msg("integrity limit reached")

		outcome.Sealed = sealed.Session.IsSealed()
		outcome.Message = "the assessment was ended because the exam rules were broken"
		outcome.Session = s.assessment.View(sealed.Session)
		return outcome, nil
	}

	outcome.Warning = true
	outcome.Message = warningMessage(counter, limit-count)
	outcome.Session = s.assessment.View(updated)
	return outcome, nil
}

func warningMessage(counter string, remaining int) string {
	if counter == repository.CounterClipboardKey {
		return fmt.Sprintf("copying, pasting and shortcut keys are not allowed; %d more will end the assessment", remaining)
	}
	return fmt.Sprintf("leaving the exam window is not allowed; %d more will end the assessment", remaining)
}
