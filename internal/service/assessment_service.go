package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/observability"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
)

var (
	// ErrSessionNotFound indicates the assessment session does not exist.
	ErrSessionNotFound = errors.New("assessment session not found")
	// ErrOutsideWindow indicates the assessment is not open yet or already closed.
	ErrOutsideWindow = errors.New("the assessment is not open at this time")
	// ErrAlreadyCompleted indicates the candidate already finished this assessment.
	ErrAlreadyCompleted = errors.New("you have already completed this assessment")
	// ErrSessionSealed indicates the attempt no longer accepts answers.
	ErrSessionSealed = errors.New("this assessment has already been submitted")
	// ErrDeadlineExceeded indicates the write arrived after the deadline; the session is sealed as a timeout.
	ErrDeadlineExceeded = errors.New("time is up, your answers have been submitted automatically")
	// ErrAnswerKindMismatch indicates the answer shape does not match the question kind.
	ErrAnswerKindMismatch = errors.New("answer does not match the question type")
	// ErrInvalidChoice indicates the choice does not belong to the question.
	ErrInvalidChoice = errors.New("choice does not belong to this question")
	// ErrBlankAnswer indicates an essay answer with no text after trimming.
	ErrBlankAnswer = errors.New("essay answer must not be blank")
	// ErrQuestionNotFound indicates the question is not part of the assessment.
	ErrQuestionNotFound = errors.New("question not found in this assessment")
	// ErrNoAnswersProvided indicates a manual submission without any answer.
	ErrNoAnswersProvided = errors.New("answer at least one question before submitting")
	// ErrRulesNotAccepted indicates the candidate did not accept the assessment rules.
	ErrRulesNotAccepted = errors.New("you must accept the assessment rules before starting")
	// ErrAssessmentNotEligible indicates the application cannot take this assessment now.
	ErrAssessmentNotEligible = errors.New("this application is not eligible for the assessment")
	// ErrInvalidSealReason indicates a seal reason the caller may not use.
	ErrInvalidSealReason = errors.New("invalid submission reason")
)

// SealOutcome reports the state after a seal attempt. Sealed is true only for the caller that sealed.
type SealOutcome struct {
	Session models.AssessmentSession
	Sealed  bool
}

// AssessmentService runs timed attempts: start, answer capture and the single seal path.
type AssessmentService interface {
	Start(ctx context.Context, actor ActivityActor, payload dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error)
	Session(ctx context.Context, sessionID uint, actor ActivityActor) (dto.SessionResponse, error)
	RecordAnswer(ctx context.Context, sessionID, questionID uint, payload dto.AnswerRequest, actor ActivityActor) (dto.SessionResponse, error)
	SaveDraft(ctx context.Context, sessionID uint, payload dto.DraftRequest, actor ActivityActor) (dto.SessionResponse, error)
	Submit(ctx context.Context, sessionID uint, payload dto.SealRequest, actor ActivityActor) (dto.SealResponse, error)
	Seal(ctx context.Context, sessionID uint, reason models.SealReason, integrityReason string) (SealOutcome, error)
	OwnedSession(ctx context.Context, sessionID, candidateID uint) (models.AssessmentSession, error)
	ReviewSession(ctx context.Context, sessionID uint) (dto.SessionReviewResponse, error)
	SweepExpired(ctx context.Context, limit int) (dto.SweepResult, error)
	View(session models.AssessmentSession) dto.SessionResponse
}

type assessmentService struct {
	sessions  repository.SessionRepository
	bank      QuestionBankService
	pipeline  PipelineService
	grading   GradingService
	notifier  Notifier
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssessmentService constructs the assessment engine.
func NewAssessmentService(
	sessions repository.SessionRepository,
	bank QuestionBankService,
	pipeline PipelineService,
	grading GradingService,
	notifier Notifier,
	activity ActivityRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssessmentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &assessmentService{
		sessions:  sessions,
		bank:      bank,
		pipeline:  pipeline,
		grading:   grading,
		notifier:  notifier,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/recruitment-go-api/internal/service/assessment"),
		logger:    logger.With().Str("component", "assessment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assessmentService) clock() time.Time {
	return s.now().UTC()
}

func (s *assessmentService) View(session models.AssessmentSession) dto.SessionResponse {
	return dto.NewSessionResponse(session, s.clock())
}

func (s *assessmentService) Start(ctx context.Context, actor ActivityActor, payload dto.StartAssessmentRequest) (dto.StartAssessmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assessment.start", trace.WithAttributes(
		attribute.Int64("assessment.application_id", int64(payload.ApplicationID)),
		attribute.Int64("assessment.definition_id", int64(payload.DefinitionID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.StartAssessmentResponse{}, err
	}
	if !payload.AcceptRules {
		return dto.StartAssessmentResponse{}, ErrRulesNotAccepted
	}

	application, err := s.pipeline.OwnedApplication(ctx, payload.ApplicationID, actor.ID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}

	existing, err := s.sessions.FindByApplicationAndDefinition(ctx, payload.ApplicationID, payload.DefinitionID)
	switch {
	case err == nil:
		return s.resume(ctx, existing)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		span.RecordError(err)
		return dto.StartAssessmentResponse{}, fmt.Errorf("lookup session: %w", err)
	}

	if err := s.checkEligibility(ctx, application, payload.DefinitionID); err != nil {
		return dto.StartAssessmentResponse{}, err
	}

	definition, err := s.bank.Definition(ctx, payload.DefinitionID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}

	now := s.clock()
	if !definition.WithinWindow(now) {
		return dto.StartAssessmentResponse{}, ErrOutsideWindow
	}

	session := models.AssessmentSession{
		ApplicationID: application.ID,
		DefinitionID:  definition.ID,
		CandidateID:   actor.ID,
		Status:        models.SessionInProgress,
		StartedAt:     now,
		Deadline:      definition.DeadlineFrom(now),
	}
	created, err := s.sessions.Create(ctx, &session)
	if err != nil {
		span.RecordError(err)
		return dto.StartAssessmentResponse{}, fmt.Errorf("create session: %w", err)
	}
	if !created {
		return s.resume(ctx, session)
	}

	s.logger.Info().
		Uint("session_id", session.ID).
		Uint("application_id", application.ID).
		Time("deadline", session.Deadline).
		Msg("assessment started")

	return dto.StartAssessmentResponse{
		Session: s.View(session),
		Paper:   dto.NewPaperResponse(definition),
	}, nil
}

// resume hands back an in-progress attempt unchanged. Deadline and counters are never reset.
func (s *assessmentService) resume(ctx context.Context, session models.AssessmentSession) (dto.StartAssessmentResponse, error) {
	current, err := s.expireIfDue(ctx, session)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}
	if current.IsSealed() {
		return dto.StartAssessmentResponse{}, ErrAlreadyCompleted
	}

	paper, err := s.bank.Paper(ctx, current.DefinitionID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}
	return dto.StartAssessmentResponse{Session: s.View(current), Paper: paper, Resumed: true}, nil
}

func (s *assessmentService) checkEligibility(ctx context.Context, application models.Application, definitionID uint) error {
	if !application.IsOpen() {
		return ErrAssessmentNotEligible
	}
	current, _ := authoritativeRecord(application.Stages)
	if current == nil || current.Stage != models.StageAssessment || !current.IsActive() {
		return ErrAssessmentNotEligible
	}
	bound, err := s.bank.IsBound(ctx, application.VacancyPeriodID, definitionID)
	if err != nil {
		return err
	}
	if !bound {
		return ErrAssessmentNotEligible
	}
	return nil
}

func (s *assessmentService) Session(ctx context.Context, sessionID uint, actor ActivityActor) (dto.SessionResponse, error) {
	session, err := s.OwnedSession(ctx, sessionID, actor.ID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	current, err := s.expireIfDue(ctx, session)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return s.View(current), nil
}

func (s *assessmentService) RecordAnswer(ctx context.Context, sessionID, questionID uint, payload dto.AnswerRequest, actor ActivityActor) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assessment.record_answer", trace.WithAttributes(
		attribute.Int64("assessment.session_id", int64(sessionID)),
		attribute.Int64("assessment.question_id", int64(questionID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}

	session, err := s.writableSession(ctx, sessionID, actor.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.SessionResponse{}, err
	}

	answer, err := s.buildAnswer(ctx, session, questionID, payload.ChoiceID, payload.Text)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	answer.AnsweredAt = s.clock()

	if err := s.sessions.SaveAnswer(ctx, &answer); err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) {
			return dto.SessionResponse{}, s.rejectedWrite(ctx, sessionID)
		}
		span.RecordError(err)
		return dto.SessionResponse{}, fmt.Errorf("save answer: %w", err)
	}

	updated, err := s.load(ctx, sessionID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return s.View(updated), nil
}

func (s *assessmentService) SaveDraft(ctx context.Context, sessionID uint, payload dto.DraftRequest, actor ActivityActor) (dto.SessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}

	session, err := s.writableSession(ctx, sessionID, actor.ID)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	answer, err := s.buildAnswer(ctx, session, payload.QuestionID, payload.ChoiceID, payload.Text)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	draft := repository.Draft{
		QuestionID: answer.QuestionID,
		ChoiceID:   answer.ChoiceID,
		Text:       answer.Text,
		SavedAt:    s.clock(),
	}
	if err := s.sessions.SaveDraft(ctx, sessionID, draft); err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) {
			return dto.SessionResponse{}, s.rejectedWrite(ctx, sessionID)
		}
		return dto.SessionResponse{}, fmt.Errorf("save draft: %w", err)
	}

	updated, err := s.load(ctx, sessionID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return s.View(updated), nil
}

// Submit is the candidate seal. A manual submission after the deadline is sealed as a timeout.
func (s *assessmentService) Submit(ctx context.Context, sessionID uint, payload dto.SealRequest, actor ActivityActor) (dto.SealResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SealResponse{}, err
	}

	session, err := s.OwnedSession(ctx, sessionID, actor.ID)
	if err != nil {
		return dto.SealResponse{}, err
	}
	if session.IsSealed() {
		return dto.SealResponse{Session: s.View(session)}, nil
	}

	now := s.clock()
	reason := models.SealReason(payload.Reason)
	if reason == "" {
		reason = models.SealSubmitted
	}
	if reason == models.SealTimeout && !session.PastDeadline(now) {
		return dto.SealResponse{}, ErrInvalidSealReason
	}

	var pending *models.AssessmentAnswer
	if session.PastDeadline(now) {
		reason = models.SealTimeout
	} else if payload.Pending != nil {
		answer, err := s.buildAnswer(ctx, session, payload.Pending.QuestionID, payload.Pending.ChoiceID, payload.Pending.Text)
		if err != nil {
			return dto.SealResponse{}, err
		}
		answer.AnsweredAt = now
		pending = &answer
	}

	outcome, err := s.seal(ctx, sessionID, reason, "", pending)
	if err != nil {
		return dto.SealResponse{}, err
	}

	response := dto.SealResponse{Session: s.View(outcome.Session), Sealed: outcome.Sealed}
	if outcome.Session.SealReason == models.SealTimeout {
		response.Message = ErrDeadlineExceeded.Error()
	}
	return response, nil
}

func (s *assessmentService) Seal(ctx context.Context, sessionID uint, reason models.SealReason, integrityReason string) (SealOutcome, error) {
	switch reason {
	case models.SealSubmitted, models.SealTimeout, models.SealForced:
	default:
		return SealOutcome{}, ErrInvalidSealReason
	}
	return s.seal(ctx, sessionID, reason, integrityReason, nil)
}

// seal funnels every seal path through the repository compare-and-set. Only the winner
// marks the stage, grades and notifies.
func (s *assessmentService) seal(ctx context.Context, sessionID uint, reason models.SealReason, integrityReason string, pending *models.AssessmentAnswer) (SealOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "assessment.seal", trace.WithAttributes(
		attribute.Int64("assessment.session_id", int64(sessionID)),
		attribute.String("assessment.seal_reason", string(reason)),
	))
	defer span.End()

	at := s.clock()
	sealed, err := s.sessions.Seal(ctx, sessionID, repository.SealParams{
		Reason:          reason,
		IntegrityReason: integrityReason,
		At:              at,
		RequireAnswers:  reason == models.SealSubmitted,
		Pending:         pending,
	})
	switch {
	case errors.Is(err, repository.ErrConditionNotMet):
		current, loadErr := s.load(ctx, sessionID)
		if loadErr != nil {
			return SealOutcome{}, loadErr
		}
		return SealOutcome{Session: current}, nil
	case errors.Is(err, repository.ErrNoAnswers):
		return SealOutcome{}, ErrNoAnswersProvided
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "seal_failed")
		return SealOutcome{}, fmt.Errorf("seal session: %w", err)
	}

	observability.SessionsSealed().WithLabelValues(string(reason)).Inc()
	s.logger.Info().
		Uint("session_id", sessionID).
		Str("reason", string(reason)).
		Str("integrity_reason", integrityReason).
		Int("answers", len(sealed.Answers)).
		Msg("assessment sealed")

	if _, err := s.pipeline.Complete(ctx, sealed.ApplicationID, models.StageAssessment, SystemActor); err != nil {
		s.logger.Warn().Err(err).Uint("application_id", sealed.ApplicationID).Msg("assessment stage not marked completed")
	}

	if _, err := s.grading.Grade(ctx, sessionID); err != nil {
		s.logger.Error().Err(err).Uint("session_id", sessionID).Msg("grading after seal failed")
	}

	if reason == models.SealForced {
		recordActivity(ctx, s.activity, s.logger, SystemActor, models.ActionSessionForced, models.EntitySession, sessionID, map[string]interface{}{
			"integrity_reason": integrityReason,
			"application_id":   sealed.ApplicationID,
		})
	}

	s.notifier.Notify(ctx, PipelineEvent{
		UserID:        sealed.CandidateID,
		Type:          models.NotificationAssessmentSeal,
		Message:       sealMessage(reason),
		ApplicationID: sealed.ApplicationID,
	})

	final, err := s.load(ctx, sessionID)
	if err != nil {
		return SealOutcome{Session: sealed, Sealed: true}, nil
	}
	return SealOutcome{Session: final, Sealed: true}, nil
}

func sealMessage(reason models.SealReason) string {
	switch reason {
	case models.SealTimeout:
		return "Time is up. Your assessment answers were submitted automatically."
	case models.SealForced:
		return "Your assessment was ended because the exam rules were broken."
	default:
		return "Your assessment has been submitted."
	}
}

func (s *assessmentService) OwnedSession(ctx context.Context, sessionID, candidateID uint) (models.AssessmentSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return models.AssessmentSession{}, err
	}
	if session.CandidateID != candidateID {
		return models.AssessmentSession{}, ErrForbidden
	}
	return session, nil
}

func (s *assessmentService) ReviewSession(ctx context.Context, sessionID uint) (dto.SessionReviewResponse, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return dto.SessionReviewResponse{}, err
	}
	session, err = s.expireIfDue(ctx, session)
	if err != nil {
		return dto.SessionReviewResponse{}, err
	}

	violations, err := s.sessions.ListViolations(ctx, sessionID)
	if err != nil {
		return dto.SessionReviewResponse{}, fmt.Errorf("list violations: %w", err)
	}

	var snapshot []models.SnapshotEntry
	if session.IsSealed() {
		if snapshot, err = snapshotEntries(session); err != nil {
			return dto.SessionReviewResponse{}, err
		}
	}

	return dto.SessionReviewResponse{
		SessionResponse: s.View(session),
		CandidateID:     session.CandidateID,
		Score:           session.Score,
		AutoGradable:    session.AutoGradable,
		CorrectCount:    session.CorrectCount,
		PendingReview:   session.PendingReview,
		GradedAt:        session.GradedAt,
		Snapshot:        snapshot,
		Violations:      dto.NewViolationResponseSlice(violations),
	}, nil
}

// SweepExpired seals in-progress sessions whose deadline passed. Safe to run concurrently with candidates.
func (s *assessmentService) SweepExpired(ctx context.Context, limit int) (dto.SweepResult, error) {
	ids, err := s.sessions.ListExpired(ctx, s.clock(), limit)
	if err != nil {
		return dto.SweepResult{}, fmt.Errorf("list expired sessions: %w", err)
	}

	result := dto.SweepResult{Scanned: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		outcome, err := s.seal(ctx, id, models.SealTimeout, "", nil)
		if err != nil {
			s.logger.Warn().Err(err).Uint("session_id", id).Msg("sweep could not seal session")
			continue
		}
		if outcome.Sealed {
			result.Sealed++
		}
	}
	return result, nil
}

func (s *assessmentService) load(ctx context.Context, sessionID uint) (models.AssessmentSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, ErrSessionNotFound
		}
		return models.AssessmentSession{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// expireIfDue lazily seals an attempt whose deadline has passed.
func (s *assessmentService) expireIfDue(ctx context.Context, session models.AssessmentSession) (models.AssessmentSession, error) {
	if session.IsSealed() || !session.PastDeadline(s.clock()) {
		return session, nil
	}
	outcome, err := s.seal(ctx, session.ID, models.SealTimeout, "", nil)
	if err != nil {
		return models.AssessmentSession{}, err
	}
	return outcome.Session, nil
}

// writableSession returns the session when it still accepts writes, sealing it on an expired deadline.
func (s *assessmentService) writableSession(ctx context.Context, sessionID, candidateID uint) (models.AssessmentSession, error) {
	session, err := s.OwnedSession(ctx, sessionID, candidateID)
	if err != nil {
		return models.AssessmentSession{}, err
	}
	if session.IsSealed() {
		return models.AssessmentSession{}, ErrSessionSealed
	}
	if session.PastDeadline(s.clock()) {
		if _, err := s.seal(ctx, sessionID, models.SealTimeout, "", nil); err != nil {
			return models.AssessmentSession{}, err
		}
		return models.AssessmentSession{}, ErrDeadlineExceeded
	}
	return session, nil
}

// rejectedWrite classifies a write that lost against a seal or the deadline.
func (s *assessmentService) rejectedWrite(ctx context.Context, sessionID uint) error {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsSealed() {
		return ErrSessionSealed
	}
	if _, err := s.seal(ctx, sessionID, models.SealTimeout, "", nil); err != nil {
		return err
	}
	return ErrDeadlineExceeded
}

func (s *assessmentService) buildAnswer(ctx context.Context, session models.AssessmentSession, questionID uint, choiceID *uint, text *string) (models.AssessmentAnswer, error) {
	definition, err := s.bank.Definition(ctx, session.DefinitionID)
	if err != nil {
		return models.AssessmentAnswer{}, err
	}
	question, ok := definition.QuestionByID(questionID)
	if !ok {
		return models.AssessmentAnswer{}, ErrQuestionNotFound
	}

	answer := models.AssessmentAnswer{
		SessionID:  session.ID,
		QuestionID: question.ID,
		Kind:       question.Kind,
	}

	switch question.Kind {
	case models.QuestionMultipleChoice:
		if choiceID == nil || (text != nil && strings.TrimSpace(*text) != "") {
			return models.AssessmentAnswer{}, ErrAnswerKindMismatch
		}
		if !question.HasChoice(*choiceID) {
			return models.AssessmentAnswer{}, ErrInvalidChoice
		}
		id := *choiceID
		answer.ChoiceID = &id
	case models.QuestionEssay:
		if choiceID != nil || text == nil {
			return models.AssessmentAnswer{}, ErrAnswerKindMismatch
		}
		answer.Text = plainText(s.sanitizer, *text)
		if answer.Text == "" {
			return models.AssessmentAnswer{}, ErrBlankAnswer
		}
	default:
		return models.AssessmentAnswer{}, ErrAnswerKindMismatch
	}
	return answer, nil
}

// plainText strips markup while keeping the characters a candidate typed.
func plainText(policy *bluemonday.Policy, raw string) string {
	if !strings.ContainsAny(raw, "<>") {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(raw)))
}
