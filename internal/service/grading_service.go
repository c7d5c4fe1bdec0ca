package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
)

var (
	// ErrSessionNotSealed indicates grading was requested for an open attempt.
	ErrSessionNotSealed = errors.New("assessment session is not sealed yet")
	// ErrAnswerNotFound indicates the answer does not belong to the session.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrAnswerNotReviewable indicates a human review was requested for an auto-graded answer.
	ErrAnswerNotReviewable = errors.New("only essay answers can be reviewed")
)

// GradingService computes objective scores for sealed attempts.
type GradingService interface {
	Grade(ctx context.Context, sessionID uint) (dto.GradeResult, error)
	Regrade(ctx context.Context, sessionID uint, actor ActivityActor) (dto.GradeResult, error)
	ReviewEssay(ctx context.Context, sessionID, answerID uint, payload dto.EssayReviewRequest, actor ActivityActor) (dto.AnswerResponse, error)
}

type gradingService struct {
	sessions repository.SessionRepository
	bank     QuestionBankService
	pipeline PipelineService
	activity ActivityRecorder
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGradingService constructs the grading service. pipeline may be nil when scores should not feed the stage machine.
func NewGradingService(sessions repository.SessionRepository, bank QuestionBankService, pipeline PipelineService, activity ActivityRecorder, logger zerolog.Logger) GradingService {
	return &gradingService{
		sessions: sessions,
		bank:     bank,
		pipeline: pipeline,
		activity: activity,
		tracer:   otel.Tracer("github.com/noah-isme/recruitment-go-api/internal/service/grading"),
		logger:   logger.With().Str("component", "grading_service").Logger(),
		now:      time.Now,
	}
}

// ComputeGrade scores answers against a definition. Only multiple choice questions with
// exactly one correct choice count; unanswered ones score zero. The score is nil when
// nothing is auto-gradable.
func ComputeGrade(definition models.AssessmentDefinition, answers []models.SnapshotEntry) dto.GradeResult {
	byQuestion := make(map[uint]models.SnapshotEntry, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer
	}

	var result dto.GradeResult
	for _, question := range definition.Questions {
		answer, answered := byQuestion[question.ID]
		if question.Kind == models.QuestionEssay {
			if answered && answer.Text != "" {
				result.PendingReview++
			}
			continue
		}

		correctID, ok := question.CorrectChoiceID()
		if !ok {
			continue
		}
		result.AutoGradable++
		if answered && answer.ChoiceID != nil && *answer.ChoiceID == correctID {
			result.CorrectCount++
		}
	}

	if result.AutoGradable > 0 {
		score := math.Round(float64(result.CorrectCount)/float64(result.AutoGradable)*100*100) / 100
		result.Score = &score
	}
	return result
}

func (s *gradingService) Grade(ctx context.Context, sessionID uint) (dto.GradeResult, error) {
	return s.grade(ctx, sessionID, true)
}

func (s *gradingService) Regrade(ctx context.Context, sessionID uint, actor ActivityActor) (dto.GradeResult, error) {
	result, err := s.grade(ctx, sessionID, true)
	if err != nil {
		return dto.GradeResult{}, err
	}
	metadata := map[string]interface{}{"auto_gradable": result.AutoGradable, "correct": result.CorrectCount}
	if result.Score != nil {
		metadata["score"] = *result.Score
	}
	recordActivity(ctx, s.activity, s.logger, actor, models.ActionSessionRegraded, models.EntitySession, sessionID, metadata)
	return result, nil
}

func (s *gradingService) ReviewEssay(ctx context.Context, sessionID, answerID uint, payload dto.EssayReviewRequest, actor ActivityActor) (dto.AnswerResponse, error) {
	if payload.Points == nil || math.IsNaN(*payload.Points) || *payload.Points < 0 || *payload.Points > 100 {
		return dto.AnswerResponse{}, ErrInvalidScore
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerResponse{}, ErrSessionNotFound
		}
		return dto.AnswerResponse{}, fmt.Errorf("load session: %w", err)
	}
	if !session.IsSealed() {
		return dto.AnswerResponse{}, ErrSessionNotSealed
	}

	answer, err := s.sessions.GetAnswer(ctx, sessionID, answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerResponse{}, ErrAnswerNotFound
		}
		return dto.AnswerResponse{}, fmt.Errorf("load answer: %w", err)
	}
	if answer.Kind != models.QuestionEssay {
		return dto.AnswerResponse{}, ErrAnswerNotReviewable
	}

	at := s.now().UTC()
	if err := s.sessions.ReviewAnswer(ctx, answerID, *payload.Points, actor.ID, at); err != nil {
		return dto.AnswerResponse{}, fmt.Errorf("review answer: %w", err)
	}

	recordActivity(ctx, s.activity, s.logger, actor, models.ActionAnswerReviewed, models.EntityAnswer, answerID, map[string]interface{}{
		"session_id": sessionID,
		"points":     *payload.Points,
	})

	// refresh pending counters without touching the stage score a reviewer may have set
	if _, err := s.grade(ctx, sessionID, false); err != nil {
		s.logger.Warn().Err(err).Uint("session_id", sessionID).Msg("failed to refresh grading after review")
	}

	points := *payload.Points
	reviewer := actor.ID
	answer.ReviewPoints = &points
	answer.ReviewedBy = &reviewer
	answer.ReviewedAt = &at
	return dto.NewAnswerResponse(answer), nil
}

func (s *gradingService) grade(ctx context.Context, sessionID uint, feedStage bool) (dto.GradeResult, error) {
	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.Int64("grading.session_id", int64(sessionID)),
	))
	defer span.End()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeResult{}, ErrSessionNotFound
		}
		span.RecordError(err)
		return dto.GradeResult{}, fmt.Errorf("load session: %w", err)
	}
	if !session.IsSealed() {
		span.SetStatus(codes.Error, "not_sealed")
		return dto.GradeResult{}, ErrSessionNotSealed
	}

	definition, err := s.bank.Definition(ctx, session.DefinitionID)
	if err != nil {
		span.RecordError(err)
		return dto.GradeResult{}, err
	}

	entries, err := snapshotEntries(session)
	if err != nil {
		span.RecordError(err)
		return dto.GradeResult{}, err
	}

	result := ComputeGrade(definition, entries)
	result.SessionID = sessionID
	result.PendingReview = pendingReviews(session, result.PendingReview)

	if err := s.sessions.SaveGrade(ctx, sessionID, repository.GradeUpdate{
		Score:         result.Score,
		AutoGradable:  result.AutoGradable,
		CorrectCount:  result.CorrectCount,
		PendingReview: result.PendingReview,
		GradedAt:      s.now().UTC(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.GradeResult{}, fmt.Errorf("save grade: %w", err)
	}

	if feedStage && result.Score != nil && s.pipeline != nil {
		if _, err := s.pipeline.RecordScore(ctx, session.ApplicationID, models.StageAssessment, *result.Score, SystemActor); err != nil {
			s.logger.Warn().Err(err).
				Uint("session_id", sessionID).
				Uint("application_id", session.ApplicationID).
				Msg("assessment score not attached to stage")
		}
	}

	event := s.logger.Info().Uint("session_id", sessionID).Int("auto_gradable", result.AutoGradable).Int("correct", result.CorrectCount)
	if result.Score != nil {
		event = event.Float64("score", *result.Score)
	}
	event.Msg("assessment graded")

	return result, nil
}

// snapshotEntries prefers the frozen snapshot and falls back to the committed answers.
func snapshotEntries(session models.AssessmentSession) ([]models.SnapshotEntry, error) {
	if len(session.Snapshot) > 0 {
		var entries []models.SnapshotEntry
		if err := json.Unmarshal(session.Snapshot, &entries); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return entries, nil
	}

	entries := make([]models.SnapshotEntry, 0, len(session.Answers))
	for _, answer := range session.Answers {
		entries = append(entries, models.SnapshotEntry{
			QuestionID: answer.QuestionID,
			Kind:       answer.Kind,
			ChoiceID:   answer.ChoiceID,
			Text:       answer.Text,
			AnsweredAt: answer.AnsweredAt,
		})
	}
	return entries, nil
}

// pendingReviews subtracts essays a reviewer already scored.
func pendingReviews(session models.AssessmentSession, essays int) int {
	reviewed := 0
	for _, answer := range session.Answers {
		if answer.Kind == models.QuestionEssay && answer.Text != "" && answer.ReviewPoints != nil {
			reviewed++
		}
	}
	if reviewed > essays {
		return 0
	}
	return essays - reviewed
}
