package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/recruitment-go-api/internal/database"
	"github.com/noah-isme/recruitment-go-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

func seedDefinition(t *testing.T, db *gorm.DB) models.AssessmentDefinition {
	t.Helper()
	def := models.AssessmentDefinition{
		Title:           "Logic",
		DurationMinutes: 30,
		Questions: []models.Question{
			{Position: 1, Prompt: "2+2?", Kind: models.QuestionMultipleChoice, Choices: []models.Choice{
				{Position: 1, Text: "3"},
				{Position: 2, Text: "4", IsCorrect: true},
			}},
			{Position: 2, Prompt: "Describe yourself", Kind: models.QuestionEssay},
		},
	}
	require.NoError(t, db.Create(&def).Error)
	return def
}

func seedSession(t *testing.T, db *gorm.DB, def models.AssessmentDefinition, start time.Time) models.AssessmentSession {
	t.Helper()
	session := models.AssessmentSession{
		ApplicationID: 1,
		DefinitionID:  def.ID,
		CandidateID:   7,
		Status:        models.SessionInProgress,
		StartedAt:     start,
		Deadline:      def.DeadlineFrom(start),
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}
