package service

import (
	"context"
	"errors"
	"fmt"
	"math"
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
	// ErrApplicationNotFound indicates the application does not exist.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrInvalidStageTransition indicates the application is not at the requested stage or the stage was already decided.
	ErrInvalidStageTransition = errors.New("invalid stage transition")
	// ErrInvalidScore indicates a score outside [0, 100].
	ErrInvalidScore = errors.New("score must be a number between 0 and 100")
	// ErrScoreRequired indicates a stage cannot be qualified before it is scored.
	ErrScoreRequired = errors.New("a score must be recorded before the stage can be qualified")
	// ErrAssessmentInProgress indicates the candidate has not finished the assessment of this stage yet.
	ErrAssessmentInProgress = fmt.Errorf("%w: the candidate is still taking the assessment", ErrInvalidStageTransition)
	// ErrProfileIncomplete indicates the candidate profile is not complete.
	ErrProfileIncomplete = errors.New("complete your profile before applying")
	// ErrDuplicateApplication indicates an active application already exists for the vacancy period.
	ErrDuplicateApplication = errors.New("an application for this vacancy period already exists")
	// ErrForbidden indicates the caller does not own the resource.
	ErrForbidden = errors.New("access to this resource is not allowed")
	// ErrUnknownStage indicates an unrecognised stage tag.
	ErrUnknownStage = errors.New("unknown stage")
)

// PipelineService drives applications through the fixed stage order.
type PipelineService interface {
	Apply(ctx context.Context, actor ActivityActor, profileComplete bool, payload dto.ApplyRequest) (dto.ApplicationResponse, error)
	ListForCandidate(ctx context.Context, candidateID uint) ([]dto.ApplicationResponse, error)
	Withdraw(ctx context.Context, applicationID uint, actor ActivityActor) (dto.ApplicationResponse, error)
	Advance(ctx context.Context, applicationID uint, stage models.Stage, payload dto.StageAdvanceRequest, actor ActivityActor) (dto.ApplicationStatusResponse, error)
	RecordScore(ctx context.Context, applicationID uint, stage models.Stage, score float64, actor ActivityActor) (dto.StageRecordResponse, error)
	Schedule(ctx context.Context, applicationID uint, stage models.Stage, payload dto.StageScheduleRequest, actor ActivityActor) (dto.StageRecordResponse, error)
	Complete(ctx context.Context, applicationID uint, stage models.Stage, actor ActivityActor) (dto.StageRecordResponse, error)
	CurrentStatus(ctx context.Context, applicationID uint) (dto.ApplicationStatusResponse, error)
	CandidateStatus(ctx context.Context, applicationID, candidateID uint) (dto.ApplicationStatusResponse, error)
	OwnedApplication(ctx context.Context, applicationID, candidateID uint) (models.Application, error)
}

type pipelineService struct {
	repo      repository.PipelineRepository
	validator *validator.Validate
	activity  ActivityRecorder
	notifier  Notifier
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPipelineService constructs the stage state machine.
func NewPipelineService(repo repository.PipelineRepository, validate *validator.Validate, activity ActivityRecorder, notifier Notifier, logger zerolog.Logger) PipelineService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &pipelineService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		notifier:  notifier,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/recruitment-go-api/internal/service/pipeline"),
		logger:    logger.With().Str("component", "pipeline_service").Logger(),
		now:       time.Now,
	}
}

func (s *pipelineService) clock() time.Time {
	return s.now().UTC()
}

func (s *pipelineService) Apply(ctx context.Context, actor ActivityActor, profileComplete bool, payload dto.ApplyRequest) (dto.ApplicationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ApplicationResponse{}, err
	}
	if !profileComplete {
		return dto.ApplicationResponse{}, ErrProfileIncomplete
	}

	if _, err := s.repo.FindOpenApplication(ctx, actor.ID, payload.VacancyPeriodID); err == nil {
		return dto.ApplicationResponse{}, ErrDuplicateApplication
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ApplicationResponse{}, fmt.Errorf("lookup application: %w", err)
	}

	now := s.clock()
	application := models.Application{
		CandidateID:     actor.ID,
		VacancyPeriodID: payload.VacancyPeriodID,
		Status:          models.ApplicationInProgress,
	}
	first := models.StageRecord{
		Stage:         models.StageAdministrative,
		EnteredAt:     now,
		Qualification: models.QualificationPending,
	}
	if err := s.repo.CreateApplication(ctx, &application, &first); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.ApplicationResponse{}, ErrDuplicateApplication
		}
		return dto.ApplicationResponse{}, fmt.Errorf("create application: %w", err)
	}

	s.logger.Info().
		Uint("application_id", application.ID).
		Uint("candidate_id", actor.ID).
		Uint("vacancy_period_id", payload.VacancyPeriodID).
		Msg("application received")

	return dto.NewApplicationResponse(application), nil
}

func (s *pipelineService) ListForCandidate(ctx context.Context, candidateID uint) ([]dto.ApplicationResponse, error) {
	applications, err := s.repo.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return dto.NewApplicationResponseSlice(applications), nil
}

func (s *pipelineService) Withdraw(ctx context.Context, applicationID uint, actor ActivityActor) (dto.ApplicationResponse, error) {
	application, err := s.OwnedApplication(ctx, applicationID, actor.ID)
	if err != nil {
		return dto.ApplicationResponse{}, err
	}
	if !application.IsOpen() {
		return dto.ApplicationResponse{}, ErrInvalidStageTransition
	}

	if err := s.repo.Withdraw(ctx, applicationID, s.clock()); err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) {
			return dto.ApplicationResponse{}, ErrInvalidStageTransition
		}
		return dto.ApplicationResponse{}, fmt.Errorf("withdraw application: %w", err)
	}

	recordActivity(ctx, s.activity, s.logger, actor, models.ActionApplicationDrop, models.EntityApplication, applicationID, nil)

	updated, err := s.load(ctx, applicationID)
	if err != nil {
		return dto.ApplicationResponse{}, err
	}
	return dto.NewApplicationResponse(updated), nil
}

// Advance records the reviewer outcome of the active stage. A qualified outcome opens
// the next stage (or accepts the application at DECISION); an unqualified one rejects it.
func (s *pipelineService) Advance(ctx context.Context, applicationID uint, stage models.Stage, payload dto.StageAdvanceRequest, actor ActivityActor) (dto.ApplicationStatusResponse, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.advance", trace.WithAttributes(
		attribute.Int64("pipeline.application_id", int64(applicationID)),
		attribute.String("pipeline.stage", string(stage)),
		attribute.Int64("pipeline.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ApplicationStatusResponse{}, err
	}
	if stage.Order() < 0 {
		return dto.ApplicationStatusResponse{}, ErrUnknownStage
	}

	application, err := s.load(ctx, applicationID)
	if err != nil {
		span.RecordError(err)
		return dto.ApplicationStatusResponse{}, err
	}

	current, err := activeRecord(application, stage)
	if err != nil {
		span.SetStatus(codes.Error, "invalid_transition")
		return dto.ApplicationStatusResponse{}, err
	}

	qualified := *payload.Qualified
	if qualified && stage == models.StageAssessment && current.Score == nil {
		span.SetStatus(codes.Error, "score_required")
		return dto.ApplicationStatusResponse{}, ErrScoreRequired
	}

	at := s.clock()
	if at.Before(current.EnteredAt) {
		at = current.EnteredAt
	}

	transition := repository.StageTransition{
		ApplicationID: applicationID,
		RecordID:      current.ID,
		ReviewerID:    actor.reviewerID(),
		Notes:         strings.TrimSpace(s.sanitizer.Sanitize(payload.Notes)),
		DecidedAt:     at,
	}
	if qualified {
		transition.Qualification = models.QualificationQualified
		transition.RequireSealed = stage == models.StageAssessment
		if next, ok := stage.Next(); ok {
			transition.Next = &models.StageRecord{
				Stage:         next,
				EnteredAt:     at,
				Qualification: models.QualificationPending,
			}
		} else {
			transition.ApplicationStatus = models.ApplicationAccepted
		}
	} else {
		transition.Qualification = models.QualificationUnqualified
		transition.ApplicationStatus = models.ApplicationRejected
	}

	if err := s.repo.ApplyTransition(ctx, transition); err != nil {
		if errors.Is(err, repository.ErrOpenSession) {
			span.SetStatus(codes.Error, "assessment_in_progress")
			return dto.ApplicationStatusResponse{}, ErrAssessmentInProgress
		}
		if errors.Is(err, repository.ErrConditionNotMet) {
			span.SetStatus(codes.Error, "concurrent_decision")
			return dto.ApplicationStatusResponse{}, ErrInvalidStageTransition
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition_failed")
		return dto.ApplicationStatusResponse{}, fmt.Errorf("apply stage transition: %w", err)
	}

	observability.StageTransitions().WithLabelValues(string(stage), string(transition.Qualification)).Inc()
	recordActivity(ctx, s.activity, s.logger, actor, models.ActionStageAdvanced, models.EntityApplication, applicationID, map[string]interface{}{
		"stage":         string(stage),
		"qualification": string(transition.Qualification),
	})

	status, err := s.CurrentStatus(ctx, applicationID)
	if err != nil {
		return dto.ApplicationStatusResponse{}, err
	}

	eventType := models.NotificationStageChanged
	if transition.ApplicationStatus != "" {
		eventType = models.NotificationApplicationDone
	}
	s.notifier.Notify(ctx, PipelineEvent{
		UserID:        application.CandidateID,
		Type:          eventType,
		Message:       "Your application status is now: " + status.Status.Label,
		ApplicationID: applicationID,
	})

	s.logger.Info().
		Uint("application_id", applicationID).
		Str("stage", string(stage)).
		Str("qualification", string(transition.Qualification)).
		Msg("stage decided")

	return status, nil
}

func (s *pipelineService) RecordScore(ctx context.Context, applicationID uint, stage models.Stage, score float64, actor ActivityActor) (dto.StageRecordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.record_score", trace.WithAttributes(
		attribute.Int64("pipeline.application_id", int64(applicationID)),
		attribute.String("pipeline.stage", string(stage)),
	))
	defer span.End()

	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 100 {
		span.SetStatus(codes.Error, "invalid_score")
		return dto.StageRecordResponse{}, ErrInvalidScore
	}

	application, err := s.load(ctx, applicationID)
	if err != nil {
		return dto.StageRecordResponse{}, err
	}
	current, err := activeRecord(application, stage)
	if err != nil {
		return dto.StageRecordResponse{}, err
	}

	if err := s.repo.UpdateRecordScore(ctx, current.ID, score, actor.reviewerID()); err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) {
			return dto.StageRecordResponse{}, ErrInvalidStageTransition
		}
		span.RecordError(err)
		return dto.StageRecordResponse{}, fmt.Errorf("record stage score: %w", err)
	}

	recordActivity(ctx, s.activity, s.logger, actor, models.ActionStageScored, models.EntityApplication, applicationID, map[string]interface{}{
		"stage": string(stage),
		"score": score,
	})

	current.Score = &score
	if reviewer := actor.reviewerID(); reviewer != nil {
		current.ReviewerID = reviewer
	}
	return dto.NewStageRecordResponse(current), nil
}

func (s *pipelineService) Schedule(ctx context.Context, applicationID uint, stage models.Stage, payload dto.StageScheduleRequest, actor ActivityActor) (dto.StageRecordResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StageRecordResponse{}, err
	}

	application, err := s.load(ctx, applicationID)
	if err != nil {
		return dto.StageRecordResponse{}, err
	}
	current, err := activeRecord(application, stage)
	if err != nil {
		return dto.StageRecordResponse{}, err
	}

	at := payload.ScheduledAt.UTC()
	notes := strings.TrimSpace(s.sanitizer.Sanitize(payload.Notes))
	if err := s.repo.UpdateRecordSchedule(ctx, current.ID, at, actor.reviewerID(), notes); err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) {
			return dto.StageRecordResponse{}, ErrInvalidStageTransition
		}
		return dto.StageRecordResponse{}, fmt.Errorf("schedule stage: %w", err)
	}

	recordActivity(ctx, s.activity, s.logger, actor, models.ActionStageScheduled, models.EntityApplication, applicationID, map[string]interface{}{
		"stage":        string(stage),
		"scheduled_at": at.Format(time.RFC3339),
	})
	s.notifier.Notify(ctx, PipelineEvent{
		UserID:        application.CandidateID,
		Type:          models.NotificationStageScheduled,
		Message:       fmt.Sprintf("Your %s is scheduled for %s", strings.ToLower(stage.Label()), at.Format("02 Jan 2006 15:04 MST")),
		ApplicationID: applicationID,
	})

	current.ScheduledAt = &at
	if notes != "" {
		current.Notes = notes
	}
	return dto.NewStageRecordResponse(current), nil
}

func (s *pipelineService) Complete(ctx context.Context, applicationID uint, stage models.Stage, actor ActivityActor) (dto.StageRecordResponse, error) {
	application, err := s.load(ctx, applicationID)
	if err != nil {
		return dto.StageRecordResponse{}, err
	}
	current, err := activeRecord(application, stage)
	if err != nil {
		return dto.StageRecordResponse{}, err
	}
	if current.CompletedAt != nil {
		return dto.NewStageRecordResponse(current), nil
	}

	at := s.clock()
	if at.Before(current.EnteredAt) {
		at = current.EnteredAt
	}
	if err := s.repo.MarkStageCompleted(ctx, applicationID, stage, at); err != nil {
		return dto.StageRecordResponse{}, fmt.Errorf("complete stage: %w", err)
	}

	recordActivity(ctx, s.activity, s.logger, actor, models.ActionStageCompleted, models.EntityApplication, applicationID, map[string]interface{}{
		"stage": string(stage),
	})

	current.CompletedAt = &at
	return dto.NewStageRecordResponse(current), nil
}

func (s *pipelineService) CurrentStatus(ctx context.Context, applicationID uint) (dto.ApplicationStatusResponse, error) {
	application, err := s.load(ctx, applicationID)
	if err != nil {
		return dto.ApplicationStatusResponse{}, err
	}
	return s.statusOf(application), nil
}

func (s *pipelineService) CandidateStatus(ctx context.Context, applicationID, candidateID uint) (dto.ApplicationStatusResponse, error) {
	application, err := s.OwnedApplication(ctx, applicationID, candidateID)
	if err != nil {
		return dto.ApplicationStatusResponse{}, err
	}
	return s.statusOf(application), nil
}

func (s *pipelineService) OwnedApplication(ctx context.Context, applicationID, candidateID uint) (models.Application, error) {
	application, err := s.load(ctx, applicationID)
	if err != nil {
		return models.Application{}, err
	}
	if application.CandidateID != candidateID {
		return models.Application{}, ErrForbidden
	}
	return application, nil
}

func (s *pipelineService) statusOf(application models.Application) dto.ApplicationStatusResponse {
	display, warnings := DeriveStatus(application, application.Stages)
	if len(warnings) > 0 {
		observability.StageDuplicates().Inc()
		s.logger.Warn().
			Uint("application_id", application.ID).
			Strs("warnings", warnings).
			Msg("stage history integrity warning")
	}

	response := dto.ApplicationStatusResponse{
		ApplicationID:     application.ID,
		ApplicationStatus: application.Status,
		Status:            display,
		Warnings:          warnings,
		History:           dto.NewStageRecordResponseSlice(application.Stages),
	}
	if n := len(application.Stages); n > 0 {
		response.CurrentStage = string(application.Stages[n-1].Stage)
	}
	return response
}

func (s *pipelineService) load(ctx context.Context, applicationID uint) (models.Application, error) {
	application, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Application{}, ErrApplicationNotFound
		}
		return models.Application{}, fmt.Errorf("load application: %w", err)
	}
	return application, nil
}

// activeRecord returns the authoritative record when it is the still-pending record for stage.
func activeRecord(application models.Application, stage models.Stage) (models.StageRecord, error) {
	if !application.IsOpen() {
		return models.StageRecord{}, ErrInvalidStageTransition
	}
	current, _ := authoritativeRecord(application.Stages)
	if current == nil || current.Stage != stage || !current.IsActive() {
		return models.StageRecord{}, ErrInvalidStageTransition
	}
	return *current, nil
}
