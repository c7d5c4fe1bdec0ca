package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// Migrate creates or updates every table owned by the service.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Application{},
		&models.StageRecord{},
		&models.AssessmentDefinition{},
		&models.Question{},
		&models.Choice{},
		&models.VacancyAssessment{},
		&models.AssessmentSession{},
		&models.AssessmentAnswer{},
		&models.IntegrityViolation{},
		&models.ActivityLog{},
		&models.Notification{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
