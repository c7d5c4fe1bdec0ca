package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
)

var (
	// ErrDefinitionNotFound indicates the assessment definition does not exist.
	ErrDefinitionNotFound = errors.New("assessment definition not found")
	// ErrInvalidQuestionBank indicates an imported pack breaks a question bank rule.
	ErrInvalidQuestionBank = errors.New("invalid question bank")
)

// QuestionBankService serves read-only definitions to the engine and imports new packs.
type QuestionBankService interface {
	Definition(ctx context.Context, id uint) (models.AssessmentDefinition, error)
	Paper(ctx context.Context, id uint) (dto.PaperResponse, error)
	IsBound(ctx context.Context, vacancyPeriodID, definitionID uint) (bool, error)
	Import(ctx context.Context, payload dto.SeedAssessmentsRequest) (dto.SeedAssessmentsResponse, error)
}

type questionBankService struct {
	repo      repository.QuestionBankRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewQuestionBankService constructs the question bank service. cache may be nil.
func NewQuestionBankService(repo repository.QuestionBankRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) QuestionBankService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &questionBankService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "question_bank_service").Logger(),
	}
}

func definitionCacheKey(id uint) string {
	return fmt.Sprintf("assessment:definition:%d", id)
}

func (s *questionBankService) Definition(ctx context.Context, id uint) (models.AssessmentDefinition, error) {
	key := definitionCacheKey(id)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var definition models.AssessmentDefinition
			if unmarshalErr := json.Unmarshal(cached, &definition); unmarshalErr == nil {
				return definition, nil
			}
			s.logger.Warn().Uint("definition_id", id).Msg("discarding unreadable definition cache entry")
		case !errors.Is(err, redis.Nil):
			s.logger.Warn().Err(err).Msg("failed to read definition cache")
		}
	}

	definition, err := s.repo.GetDefinition(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentDefinition{}, ErrDefinitionNotFound
		}
		return models.AssessmentDefinition{}, fmt.Errorf("load definition: %w", err)
	}

	if s.cache != nil {
		if payload, err := json.Marshal(definition); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store definition cache")
			}
		}
	}

	return definition, nil
}

func (s *questionBankService) Paper(ctx context.Context, id uint) (dto.PaperResponse, error) {
	definition, err := s.Definition(ctx, id)
	if err != nil {
		return dto.PaperResponse{}, err
	}
	return dto.NewPaperResponse(definition), nil
}

func (s *questionBankService) IsBound(ctx context.Context, vacancyPeriodID, definitionID uint) (bool, error) {
	bound, err := s.repo.HasBinding(ctx, vacancyPeriodID, definitionID)
	if err != nil {
		return false, fmt.Errorf("check vacancy binding: %w", err)
	}
	return bound, nil
}

func (s *questionBankService) Import(ctx context.Context, payload dto.SeedAssessmentsRequest) (dto.SeedAssessmentsResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SeedAssessmentsResponse{}, err
	}
	for idx, def := range payload.Definitions {
		if err := ValidateSeedDefinition(def); err != nil {
			return dto.SeedAssessmentsResponse{}, fmt.Errorf("definition %d: %w", idx+1, err)
		}
	}

	response := dto.SeedAssessmentsResponse{Definitions: make([]dto.SeededDefinition, 0, len(payload.Definitions))}
	for _, def := range payload.Definitions {
		model := s.buildDefinition(def)
		if err := s.repo.CreateDefinition(ctx, &model, def.VacancyPeriodIDs); err != nil {
			return dto.SeedAssessmentsResponse{}, fmt.Errorf("import definition %q: %w", def.Title, err)
		}

		summary := dto.SeededDefinition{ID: model.ID, Title: model.Title, Questions: len(model.Questions)}
		for _, q := range model.Questions {
			switch {
			case q.Kind == models.QuestionEssay:
				summary.EssayQuestion++
			case q.IsAutoGradable():
				summary.AutoGradable++
			}
		}
		response.Definitions = append(response.Definitions, summary)
		response.Bindings += len(def.VacancyPeriodIDs)

		s.logger.Info().
			Uint("definition_id", model.ID).
			Int("questions", summary.Questions).
			Int("bindings", len(def.VacancyPeriodIDs)).
			Msg("assessment definition imported")
	}

	return response, nil
}

func (s *questionBankService) buildDefinition(def dto.SeedDefinition) models.AssessmentDefinition {
	model := models.AssessmentDefinition{
		Title:           strings.TrimSpace(s.sanitizer.Sanitize(def.Title)),
		Description:     s.sanitizer.Sanitize(def.Description),
		DurationMinutes: def.DurationMinutes,
		OpensAt:         utcPtr(def.OpensAt),
		ClosesAt:        utcPtr(def.ClosesAt),
		Questions:       make([]models.Question, 0, len(def.Questions)),
	}
	for qIdx, q := range def.Questions {
		question := models.Question{
			Position: qIdx + 1,
			Prompt:   s.sanitizer.Sanitize(q.Prompt),
			Kind:     models.QuestionKind(q.Kind),
		}
		for cIdx, c := range q.Choices {
			question.Choices = append(question.Choices, models.Choice{
				Position:  cIdx + 1,
				Text:      s.sanitizer.Sanitize(c.Text),
				IsCorrect: c.Correct,
			})
		}
		model.Questions = append(model.Questions, question)
	}
	return model
}

// ValidateSeedDefinition checks the question bank rules that struct tags cannot express.
func ValidateSeedDefinition(def dto.SeedDefinition) error {
	if def.OpensAt != nil && def.ClosesAt != nil && !def.OpensAt.Before(*def.ClosesAt) {
		return fmt.Errorf("%w: opens_at must be before closes_at", ErrInvalidQuestionBank)
	}

	for idx, q := range def.Questions {
		switch models.QuestionKind(q.Kind) {
		case models.QuestionEssay:
			if len(q.Choices) > 0 {
				return fmt.Errorf("%w: question %d is an essay and cannot have choices", ErrInvalidQuestionBank, idx+1)
			}
		case models.QuestionMultipleChoice:
			if len(q.Choices) < 2 {
				return fmt.Errorf("%w: question %d needs at least two choices", ErrInvalidQuestionBank, idx+1)
			}
			correct := 0
			for _, c := range q.Choices {
				if c.Correct {
					correct++
				}
			}
			if correct > 1 {
				return fmt.Errorf("%w: question %d marks more than one correct choice", ErrInvalidQuestionBank, idx+1)
			}
		default:
			return fmt.Errorf("%w: question %d has unknown kind %q", ErrInvalidQuestionBank, idx+1, q.Kind)
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
