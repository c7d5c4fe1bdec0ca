package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
)

func TestValidateSeedDefinition(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	tests := []struct {
		name string
		def  dto.SeedDefinition
		ok   bool
	}{
		{
			name: "valid",
			def: dto.SeedDefinition{Questions: []dto.SeedQuestion{
				{Kind: "multiple_choice", Choices: []dto.SeedChoice{{Text: "a", Correct: true}, {Text: "b"}}},
				{Kind: "essay"},
			}},
			ok: true,
		},
		{
			name: "window inverted",
			def:  dto.SeedDefinition{OpensAt: &later, ClosesAt: &now, Questions: []dto.SeedQuestion{{Kind: "essay"}}},
		},
		{
			name: "essay with choices",
			def:  dto.SeedDefinition{Questions: []dto.SeedQuestion{{Kind: "essay", Choices: []dto.SeedChoice{{Text: "a"}}}}},
		},
		{
			name: "single choice",
			def:  dto.SeedDefinition{Questions: []dto.SeedQuestion{{Kind: "multiple_choice", Choices: []dto.SeedChoice{{Text: "a", Correct: true}}}}},
		},
		{
			name: "two correct",
			def: dto.SeedDefinition{Questions: []dto.SeedQuestion{{Kind: "multiple_choice", Choices: []dto.SeedChoice{
				{Text: "a", Correct: true}, {Text: "b", Correct: true},
			}}}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSeedDefinition(tc.def)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidQuestionBank)
		})
	}
}

func TestQuestionBankCachesDefinitionAndHidesAnswers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := newTestDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	bank := NewQuestionBankService(repository.NewQuestionBankRepository(db), client, time.Minute, validate, testLogger())
	ctx := context.Background()

	response, err := bank.Import(ctx, dto.SeedAssessmentsRequest{Definitions: []dto.SeedDefinition{{
		Title:            "Ops <script>alert(1)</script>Drill",
		DurationMinutes:  20,
		VacancyPeriodIDs: []uint{4},
		Questions: []dto.SeedQuestion{
			{Prompt: "Pick one", Kind: "multiple_choice", Choices: []dto.SeedChoice{{Text: "x"}, {Text: "y", Correct: true}}},
			{Prompt: "Explain", Kind: "essay"},
		},
	}}})
	require.NoError(t, err)
	require.Len(t, response.Definitions, 1)
	seeded := response.Definitions[0]
	require.Equal(t, "Ops Drill", seeded.Title)
	require.Equal(t, 1, seeded.AutoGradable)
	require.Equal(t, 1, seeded.EssayQuestion)

	bound, err := bank.IsBound(ctx, 4, seeded.ID)
	require.NoError(t, err)
	require.True(t, bound)

	paper, err := bank.Paper(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, paper.Questions, 2)
	require.True(t, mr.Exists(definitionCacheKey(seeded.ID)))

	require.NoError(t, db.Where("definition_id = ?", seeded.ID).Delete(&models.Question{}).Error)
	cached, err := bank.Definition(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, cached.Questions, 2)

	_, err = bank.Definition(ctx, 9999)
	require.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestQuestionBankImportRejectsInvalidPack(t *testing.T) {
	db := newTestDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	bank := NewQuestionBankService(repository.NewQuestionBankRepository(db), nil, 0, validate, testLogger())

	_, err := bank.Import(context.Background(), dto.SeedAssessmentsRequest{Definitions: []dto.SeedDefinition{{
		Title:           "Broken",
		DurationMinutes: 10,
		Questions:       []dto.SeedQuestion{{Prompt: "?", Kind: "essay", Choices: []dto.SeedChoice{{Text: "no"}}}},
	}}})
	require.ErrorIs(t, err, ErrInvalidQuestionBank)

	var count int64
	require.NoError(t, db.Model(&models.AssessmentDefinition{}).Count(&count).Error)
	require.Zero(t, count)
}
