package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService guards question pack imports behind the seed token.
type SeedService interface {
	SeedAssessments(ctx context.Context, token string, payload dto.SeedAssessmentsRequest) (dto.SeedAssessmentsResponse, error)
}

type seedService struct {
	bank    QuestionBankService
	enabled bool
	token   string
	logger  zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(bank QuestionBankService, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		bank:    bank,
		enabled: enabled,
		token:   token,
		logger:  logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedAssessments(ctx context.Context, token string, payload dto.SeedAssessmentsRequest) (dto.SeedAssessmentsResponse, error) {
	if !s.enabled {
		return dto.SeedAssessmentsResponse{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedAssessmentsResponse{}, ErrSeedUnauthorized
	}

	response, err := s.bank.Import(ctx, payload)
	if err != nil {
		return dto.SeedAssessmentsResponse{}, err
	}
	s.logger.Info().
		Int("definitions", len(response.Definitions)).
		Int("bindings", response.Bindings).
		Msg("assessments seeded")
	return response, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}
