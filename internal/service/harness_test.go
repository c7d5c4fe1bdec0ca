package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/database"
	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []PipelineEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event PipelineEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) ofType(kind string) []PipelineEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []PipelineEvent
	for _, event := range n.events {
		if event.Type == kind {
			out = append(out, event)
		}
	}
	return out
}

type harness struct {
	db         *gorm.DB
	clock      *fakeClock
	notifier   *recordingNotifier
	activity   ActivityService
	sessions   repository.SessionRepository
	bank       QuestionBankService
	pipeline   *pipelineService
	grading    *gradingService
	assessment *assessmentService
	integrity  *integrityService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := testLogger()

	clock := &fakeClock{now: time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	activity := NewActivityService(repository.NewActivityLogRepository(db), logger)
	sessions := repository.NewSessionRepository(db)
	bank := NewQuestionBankService(repository.NewQuestionBankRepository(db), nil, time.Minute, validate, logger)

	pipeline := NewPipelineService(repository.NewPipelineRepository(db), validate, activity, notifier, logger).(*pipelineService)
	pipeline.now = clock.Now

	grading := NewGradingService(sessions, bank, pipeline, activity, logger).(*gradingService)
	grading.now = clock.Now

	assessment := NewAssessmentService(sessions, bank, pipeline, grading, notifier, activity, validate, logger).(*assessmentService)
	assessment.now = clock.Now

	integrity := NewIntegrityService(sessions, assessment, IntegrityLimits{}, validate, logger).(*integrityService)
	integrity.now = clock.Now

	return &harness{
		db:         db,
		clock:      clock,
		notifier:   notifier,
		activity:   activity,
		sessions:   sessions,
		bank:       bank,
		pipeline:   pipeline,
		grading:    grading,
		assessment: assessment,
		integrity:  integrity,
	}
}

var (
	reviewer  = ActivityActor{ID: 900, Role: "hr"}
	candidate = ActivityActor{ID: 42, Role: "candidate"}
)

// importDefinition stores a pack with two multiple choice questions (second choice correct)
// and one essay, bound to vacancy.
func (h *harness) importDefinition(t *testing.T, vacancy uint, minutes int) models.AssessmentDefinition {
	t.Helper()
	response, err := h.bank.Import(context.Background(), dto.SeedAssessmentsRequest{
		Definitions: []dto.SeedDefinition{{
			Title:            "Backend Screening",
			DurationMinutes:  minutes,
			VacancyPeriodIDs: []uint{vacancy},
			Questions: []dto.SeedQuestion{
				{Prompt: "2 + 2 = ?", Kind: "multiple_choice", Choices: []dto.SeedChoice{{Text: "3"}, {Text: "4", Correct: true}}},
				{Prompt: "Capital of France?", Kind: "multiple_choice", Choices: []dto.SeedChoice{{Text: "Lyon"}, {Text: "Paris", Correct: true}}},
				{Prompt: "Describe a hard bug you fixed", Kind: "essay"},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, response.Definitions, 1)

	definition, err := h.bank.Definition(context.Background(), response.Definitions[0].ID)
	require.NoError(t, err)
	require.Len(t, definition.Questions, 3)
	return definition
}

func (h *harness) apply(t *testing.T, actor ActivityActor, vacancy uint) dto.ApplicationResponse {
	t.Helper()
	application, err := h.pipeline.Apply(context.Background(), actor, true, dto.ApplyRequest{VacancyPeriodID: vacancy})
	require.NoError(t, err)
	return application
}

func (h *harness) advance(t *testing.T, applicationID uint, stage models.Stage, qualified bool) dto.ApplicationStatusResponse {
	t.Helper()
	status, err := h.pipeline.Advance(context.Background(), applicationID, stage, dto.StageAdvanceRequest{Qualified: &qualified}, reviewer)
	require.NoError(t, err)
	return status
}

// atAssessment returns an application of candidate sitting at an active ASSESSMENT stage.
func (h *harness) atAssessment(t *testing.T, vacancy uint) dto.ApplicationResponse {
	t.Helper()
	application := h.apply(t, candidate, vacancy)
	h.clock.Advance(time.Minute)
	h.advance(t, application.ID, models.StageAdministrative, true)
	return application
}

func (h *harness) start(t *testing.T, applicationID, definitionID uint) dto.StartAssessmentResponse {
	t.Helper()
	started, err := h.assessment.Start(context.Background(), candidate, dto.StartAssessmentRequest{
		ApplicationID: applicationID,
		DefinitionID:  definitionID,
		AcceptRules:   true,
	})
	require.NoError(t, err)
	return started
}

func choice(q models.Question, correct bool) *uint {
	for _, c := range q.Choices {
		if c.IsCorrect == correct {
			id := c.ID
			return &id
		}
	}
	return nil
}

func text(v string) *string {
	return &v
}
