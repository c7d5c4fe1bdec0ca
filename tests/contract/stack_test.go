package contract_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/config"
	"github.com/noah-isme/recruitment-go-api/internal/database"
	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/handler"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
	"github.com/noah-isme/recruitment-go-api/internal/router"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

const jwtSecret = "contract-secret"

type stack struct {
	app          *fiber.App
	definitionID uint
}

func newStack(t *testing.T) *stack {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	sessions := repository.NewSessionRepository(db)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)
	pipeline := service.NewPipelineService(repository.NewPipelineRepository(db), validate, activity, notifications, logger)
	bank := service.NewQuestionBankService(repository.NewQuestionBankRepository(db), nil, time.Minute, validate, logger)
	grading := service.NewGradingService(sessions, bank, pipeline, activity, logger)
	assessment := service.NewAssessmentService(sessions, bank, pipeline, grading, notifications, activity, validate, logger)
	integrity := service.NewIntegrityService(sessions, assessment, service.IntegrityLimits{FocusLoss: 2, ClipboardKey: 3}, validate, logger)

	imported, err := bank.Import(context.Background(), dto.SeedAssessmentsRequest{Definitions: []dto.SeedDefinition{{
		Title:            "Support engineer screening",
		DurationMinutes:  30,
		VacancyPeriodIDs: []uint{1},
		Questions: []dto.SeedQuestion{
			{Prompt: "Which HTTP status means not found?", Kind: "multiple_choice", Choices: []dto.SeedChoice{{Text: "404", Correct: true}, {Text: "500"}}},
			{Prompt: "Explain how you would triage an outage.", Kind: "essay"},
		},
	}}})
	require.NoError(t, err)

	app := fiber.New()
	middleware.Register(app, middleware.Config{})
	router.Register(app, config.Config{AppName: "Recruitment API", AppEnv: "test"}, router.Dependencies{
		ApplicationHandler:  handler.NewApplicationHandler(pipeline, logger),
		AssessmentHandler:   handler.NewAssessmentHandler(assessment, integrity, logger),
		HRHandler:           handler.NewHRHandler(pipeline, assessment, grading, 10, logger),
		ActivityHandler:     handler.NewActivityHandler(activity, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger, time.Second),
		JWTMiddleware:       middleware.JWTProtected(jwtSecret),
	})

	return &stack{app: app, definitionID: imported.Definitions[0].ID}
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":              fmt.Sprint(userID),
		"role":             role,
		"profile_complete": true,
		"exp":              time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

// call performs the request and returns the decoded body for schema validation.
func (s *stack) call(t *testing.T, bearer, method, path string, payload interface{}, wantStatus int, target interface{}) interface{} {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, wantStatus, resp.StatusCode, string(raw))

	if target != nil {
		require.NoError(t, json.Unmarshal(raw, target))
	}
	var generic interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	return generic
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}
