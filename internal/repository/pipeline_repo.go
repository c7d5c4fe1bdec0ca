package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// ErrConditionNotMet is returned when a conditional update matched no row.
var ErrConditionNotMet = errors.New("conditional update matched no row")

// ErrOpenSession is returned when a transition requires every assessment session of the application to be sealed.
var ErrOpenSession = errors.New("assessment session still in progress")

// StageTransition describes the closing of the active stage record.
type StageTransition struct {
	ApplicationID     uint
	RecordID          uint
	Qualification     models.Qualification
	ReviewerID        *uint
	Notes             string
	DecidedAt         time.Time
	Next              *models.StageRecord
	ApplicationStatus string
	RequireSealed     bool
}

// PipelineRepository persists applications and their stage history.
type PipelineRepository interface {
	CreateApplication(ctx context.Context, application *models.Application, first *models.StageRecord) error
	GetApplication(ctx context.Context, id uint) (models.Application, error)
	FindOpenApplication(ctx context.Context, candidateID, vacancyPeriodID uint) (models.Application, error)
	ListByCandidate(ctx context.Context, candidateID uint) ([]models.Application, error)
	ApplyTransition(ctx context.Context, transition StageTransition) error
	UpdateRecordScore(ctx context.Context, recordID uint, score float64, reviewerID *uint) error
	UpdateRecordSchedule(ctx context.Context, recordID uint, at time.Time, reviewerID *uint, notes string) error
	MarkStageCompleted(ctx context.Context, applicationID uint, stage models.Stage, at time.Time) error
	Withdraw(ctx context.Context, applicationID uint, at time.Time) error
}

type pipelineRepository struct {
	db *gorm.DB
}

// NewPipelineRepository constructs the pipeline repository.
func NewPipelineRepository(db *gorm.DB) PipelineRepository {
	return &pipelineRepository{db: db}
}

func (r *pipelineRepository) CreateApplication(ctx context.Context, application *models.Application, first *models.StageRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Stages").Create(application).Error; err != nil {
			return err
		}
		first.ApplicationID = application.ID
		if err := tx.Create(first).Error; err != nil {
			return err
		}
		application.Stages = []models.StageRecord{*first}
		return nil
	})
}

func (r *pipelineRepository) GetApplication(ctx context.Context, id uint) (models.Application, error) {
	var application models.Application
	if err := r.db.WithContext(ctx).
		Preload("Stages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		}).
		First(&application, id).Error; err != nil {
		return models.Application{}, err
	}
	return application, nil
}

func (r *pipelineRepository) FindOpenApplication(ctx context.Context, candidateID, vacancyPeriodID uint) (models.Application, error) {
	var application models.Application
	if err := r.db.WithContext(ctx).
		Where("candidate_id = ? AND vacancy_period_id = ?", candidateID, vacancyPeriodID).
		Where("status <> ?", models.ApplicationWithdrawn).
		First(&application).Error; err != nil {
		return models.Application{}, err
	}
	return application, nil
}

func (r *pipelineRepository) ListByCandidate(ctx context.Context, candidateID uint) ([]models.Application, error) {
	var applications []models.Application
	if err := r.db.WithContext(ctx).
		Preload("Stages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		}).
		Where("candidate_id = ?", candidateID).
		Order("created_at DESC").
		Find(&applications).Error; err != nil {
		return nil, err
	}
	return applications, nil
}

// ApplyTransition closes the active record and, when requested, opens the next one.
// Both updates are conditional so a concurrent decision on the same record loses with ErrConditionNotMet.
func (r *pipelineRepository) ApplyTransition(ctx context.Context, t StageTransition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.RequireSealed {
			var open int64
			if err := tx.Model(&models.AssessmentSession{}).
				Where("application_id = ? AND status = ?", t.ApplicationID, models.SessionInProgress).
				Count(&open).Error; err != nil {
				return err
			}
			if open > 0 {
				return ErrOpenSession
			}
		}

		updates := map[string]interface{}{
			"qualification":    t.Qualification,
			"decision_made_at": t.DecidedAt,
			"updated_at":       t.DecidedAt,
		}
		if t.ReviewerID != nil {
			updates["reviewer_id"] = *t.ReviewerID
		}
		if t.Notes != "" {
			updates["notes"] = t.Notes
		}

		res := tx.Model(&models.StageRecord{}).
			Where("id = ? AND application_id = ? AND decision_made_at IS NULL", t.RecordID, t.ApplicationID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionNotMet
		}

		appUpdates := map[string]interface{}{"updated_at": t.DecidedAt}
		if t.ApplicationStatus != "" {
			appUpdates["status"] = t.ApplicationStatus
		}
		res = tx.Model(&models.Application{}).
			Where("id = ? AND status = ?", t.ApplicationID, models.ApplicationInProgress).
			Updates(appUpdates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionNotMet
		}

		if t.Next != nil {
			t.Next.ApplicationID = t.ApplicationID
			if err := tx.Create(t.Next).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *pipelineRepository) UpdateRecordScore(ctx context.Context, recordID uint, score float64, reviewerID *uint) error {
	updates := map[string]interface{}{"score": score}
	if reviewerID != nil {
		updates["reviewer_id"] = *reviewerID
	}
	return r.conditionalRecordUpdate(ctx, recordID, updates)
}

func (r *pipelineRepository) UpdateRecordSchedule(ctx context.Context, recordID uint, at time.Time, reviewerID *uint, notes string) error {
	updates := map[string]interface{}{"scheduled_at": at}
	if reviewerID != nil {
		updates["reviewer_id"] = *reviewerID
	}
	if notes != "" {
		updates["notes"] = notes
	}
	return r.conditionalRecordUpdate(ctx, recordID, updates)
}

func (r *pipelineRepository) conditionalRecordUpdate(ctx context.Context, recordID uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.StageRecord{}).
		Where("id = ? AND decision_made_at IS NULL", recordID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionNotMet
	}
	return nil
}

func (r *pipelineRepository) MarkStageCompleted(ctx context.Context, applicationID uint, stage models.Stage, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.StageRecord{}).
		Where("application_id = ? AND stage = ?", applicationID, stage).
		Where("decision_made_at IS NULL AND completed_at IS NULL").
		Update("completed_at", at).Error
}

func (r *pipelineRepository) Withdraw(ctx context.Context, applicationID uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ?", applicationID, models.ApplicationInProgress).
		Updates(map[string]interface{}{
			"status":       models.ApplicationWithdrawn,
			"withdrawn_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionNotMet
	}
	return nil
}
