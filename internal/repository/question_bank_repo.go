package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// QuestionBankRepository reads and imports assessment definitions.
type QuestionBankRepository interface {
	GetDefinition(ctx context.Context, id uint) (models.AssessmentDefinition, error)
	CreateDefinition(ctx context.Context, definition *models.AssessmentDefinition, vacancyPeriodIDs []uint) error
	HasBinding(ctx context.Context, vacancyPeriodID, definitionID uint) (bool, error)
}

type questionBankRepository struct {
	db *gorm.DB
}

// NewQuestionBankRepository constructs the question bank repository.
func NewQuestionBankRepository(db *gorm.DB) QuestionBankRepository {
	return &questionBankRepository{db: db}
}

func (r *questionBankRepository) GetDefinition(ctx context.Context, id uint) (models.AssessmentDefinition, error) {
	var definition models.AssessmentDefinition
	if err := r.db.WithContext(ctx).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC, id ASC")
		}).
		Preload("Questions.Choices", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC, id ASC")
		}).
		First(&definition, id).Error; err != nil {
		return models.AssessmentDefinition{}, err
	}
	return definition, nil
}

func (r *questionBankRepository) CreateDefinition(ctx context.Context, definition *models.AssessmentDefinition, vacancyPeriodIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(definition).Error; err != nil {
			return err
		}

		if len(vacancyPeriodIDs) == 0 {
			return nil
		}

		bindings := make([]models.VacancyAssessment, 0, len(vacancyPeriodIDs))
		for _, periodID := range vacancyPeriodIDs {
			bindings = append(bindings, models.VacancyAssessment{
				VacancyPeriodID: periodID,
				DefinitionID:    definition.ID,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&bindings).Error
	})
}

func (r *questionBankRepository) HasBinding(ctx context.Context, vacancyPeriodID, definitionID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.VacancyAssessment{}).
		Where("vacancy_period_id = ? AND definition_id = ?", vacancyPeriodID, definitionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
