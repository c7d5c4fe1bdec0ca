package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

func TestPipelineRepositoryApplyTransitionIsConditional(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPipelineRepository(db)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	app := models.Application{CandidateID: 7, VacancyPeriodID: 2, Status: models.ApplicationInProgress}
	first := models.StageRecord{Stage: models.StageAdministrative, EnteredAt: now, Qualification: models.QualificationPending}
	require.NoError(t, repo.CreateApplication(context.Background(), &app, &first))
	require.NotZero(t, first.ID)

	transition := StageTransition{
		ApplicationID: app.ID,
		RecordID:      first.ID,
		Qualification: models.QualificationQualified,
		DecidedAt:     now.Add(time.Hour),
		Next:          &models.StageRecord{Stage: models.StageAssessment, EnteredAt: now.Add(time.Hour), Qualification: models.QualificationPending},
	}
	require.NoError(t, repo.ApplyTransition(context.Background(), transition))

	transition.Next = &models.StageRecord{Stage: models.StageAssessment, EnteredAt: now.Add(time.Hour), Qualification: models.QualificationPending}
	require.ErrorIs(t, repo.ApplyTransition(context.Background(), transition), ErrConditionNotMet)

	stored, err := repo.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, stored.Stages, 2)
	require.Equal(t, models.StageAssessment, stored.Stages[1].Stage)
	require.True(t, stored.Stages[1].IsActive())
}

func TestPipelineRepositoryWithdrawFreesSlot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPipelineRepository(db)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	app := models.Application{CandidateID: 7, VacancyPeriodID: 2, Status: models.ApplicationInProgress}
	require.NoError(t, repo.CreateApplication(context.Background(), &app, &models.StageRecord{Stage: models.StageAdministrative, EnteredAt: now, Qualification: models.QualificationPending}))

	found, err := repo.FindOpenApplication(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Equal(t, app.ID, found.ID)

	require.NoError(t, repo.Withdraw(context.Background(), app.ID, now))
	require.ErrorIs(t, repo.Withdraw(context.Background(), app.ID, now), ErrConditionNotMet)

	_, err = repo.FindOpenApplication(context.Background(), 7, 2)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	again := models.Application{CandidateID: 7, VacancyPeriodID: 2, Status: models.ApplicationInProgress}
	require.NoError(t, repo.CreateApplication(context.Background(), &again, &models.StageRecord{Stage: models.StageAdministrative, EnteredAt: now, Qualification: models.QualificationPending}))
}

func TestPipelineRepositoryScoreRequiresActiveRecord(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPipelineRepository(db)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	app := models.Application{CandidateID: 9, VacancyPeriodID: 2, Status: models.ApplicationInProgress}
	first := models.StageRecord{Stage: models.StageAdministrative, EnteredAt: now, Qualification: models.QualificationPending}
	require.NoError(t, repo.CreateApplication(context.Background(), &app, &first))

	require.NoError(t, repo.UpdateRecordScore(context.Background(), first.ID, 80, nil))
	require.NoError(t, repo.ApplyTransition(context.Background(), StageTransition{
		ApplicationID:     app.ID,
		RecordID:          first.ID,
		Qualification:     models.QualificationUnqualified,
		DecidedAt:         now,
		ApplicationStatus: models.ApplicationRejected,
	}))
	require.ErrorIs(t, repo.UpdateRecordScore(context.Background(), first.ID, 90, nil), ErrConditionNotMet)
}
