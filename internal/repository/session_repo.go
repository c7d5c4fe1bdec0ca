package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/recruitment-go-api/internal/models"
)

// ErrNoAnswers is returned when a seal that requires answers finds none.
var ErrNoAnswers = errors.New("no answers captured")

// Integrity counter columns on the session row.
const (
	CounterFocusLoss    = "focus_loss_count"
	CounterClipboardKey = "clipboard_key_count"
)

// Draft is the uncommitted edit parked on a session.
type Draft struct {
	QuestionID uint
	ChoiceID   *uint
	Text       string
	SavedAt    time.Time
}

// SealParams controls a seal attempt.
type SealParams struct {
	Reason          models.SealReason
	IntegrityReason string
	At              time.Time
	RequireAnswers  bool
	Pending         *models.AssessmentAnswer
}

// GradeUpdate carries grading output onto a sealed session.
type GradeUpdate struct {
	Score         *float64
	AutoGradable  int
	CorrectCount  int
	PendingReview int
	GradedAt      time.Time
}

// SessionRepository persists assessment attempts, answers and violations.
type SessionRepository interface {
	Create(ctx context.Context, session *models.AssessmentSession) (bool, error)
	GetByID(ctx context.Context, id uint) (models.AssessmentSession, error)
	FindByApplicationAndDefinition(ctx context.Context, applicationID, definitionID uint) (models.AssessmentSession, error)
	SaveAnswer(ctx context.Context, answer *models.AssessmentAnswer) error
	SaveDraft(ctx context.Context, sessionID uint, draft Draft) error
	Seal(ctx context.Context, sessionID uint, params SealParams) (models.AssessmentSession, error)
	SaveGrade(ctx context.Context, sessionID uint, grade GradeUpdate) error
	RecordViolation(ctx context.Context, violation *models.IntegrityViolation, counter string) (models.AssessmentSession, error)
	ListViolations(ctx context.Context, sessionID uint) ([]models.IntegrityViolation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uint, error)
	GetAnswer(ctx context.Context, sessionID, answerID uint) (models.AssessmentAnswer, error)
	ReviewAnswer(ctx context.Context, answerID uint, points float64, reviewerID uint, at time.Time) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository constructs the session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts the session unless one already exists for the application and definition,
// in which case session is replaced by the stored row and false is returned.
func (r *sessionRepository) Create(ctx context.Context, session *models.AssessmentSession) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit("Answers").
		Create(session)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.FindByApplicationAndDefinition(ctx, session.ApplicationID, session.DefinitionID)
	if err != nil {
		return false, err
	}
	*session = existing
	return false, nil
}

func (r *sessionRepository) withAnswers(db *gorm.DB) *gorm.DB {
	return db.Preload("Answers", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("question_id ASC")
	})
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := r.withAnswers(r.db.WithContext(ctx)).First(&session, id).Error; err != nil {
		return models.AssessmentSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) FindByApplicationAndDefinition(ctx context.Context, applicationID, definitionID uint) (models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := r.withAnswers(r.db.WithContext(ctx)).
		Where("application_id = ? AND definition_id = ?", applicationID, definitionID).
		First(&session).Error; err != nil {
		return models.AssessmentSession{}, err
	}
	return session, nil
}

// SaveAnswer upserts an answer after touching the session row with a conditional update,
// so the write serializes with Seal and fails once the session is sealed or expired.
func (r *sessionRepository) SaveAnswer(ctx context.Context, answer *models.AssessmentAnswer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touchWritable(tx, answer.SessionID, answer.AnsweredAt); err != nil {
			return err
		}
		if err := upsertAnswer(tx, answer); err != nil {
			return err
		}
		return tx.Model(&models.AssessmentSession{}).
			Where("id = ? AND draft_question_id = ?", answer.SessionID, answer.QuestionID).
			Updates(clearDraftColumns()).Error
	})
}

func (r *sessionRepository) SaveDraft(ctx context.Context, sessionID uint, draft Draft) error {
	res := r.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("id = ? AND status = ? AND deadline >= ?", sessionID, models.SessionInProgress, draft.SavedAt).
		Updates(map[string]interface{}{
			"draft_question_id": draft.QuestionID,
			"draft_choice_id":   draft.ChoiceID,
			"draft_text":        draft.Text,
			"draft_saved_at":    draft.SavedAt,
			"updated_at":        draft.SavedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionNotMet
	}
	return nil
}

// Seal flips the session to sealed with a compare-and-set. Only the caller whose update
// matched the in-progress row gets the sealed session back; everyone else gets ErrConditionNotMet.
func (r *sessionRepository) Seal(ctx context.Context, sessionID uint, params SealParams) (models.AssessmentSession, error) {
	var sealed models.AssessmentSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AssessmentSession{}).
			Where("id = ? AND status = ?", sessionID, models.SessionInProgress).
			Updates(map[string]interface{}{
				"status":           models.SessionSealed,
				"sealed_at":        params.At,
				"seal_reason":      params.Reason,
				"integrity_reason": params.IntegrityReason,
				"updated_at":       params.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionNotMet
		}

		var session models.AssessmentSession
		if err := tx.First(&session, sessionID).Error; err != nil {
			return err
		}

		var answers []models.AssessmentAnswer
		if err := tx.Where("session_id = ?", sessionID).Order("question_id ASC").Find(&answers).Error; err != nil {
			return err
		}

		flushed, err := flushPending(tx, session, answers, params.Pending)
		if err != nil {
			return err
		}
		if flushed {
			answers = answers[:0]
			if err := tx.Where("session_id = ?", sessionID).Order("question_id ASC").Find(&answers).Error; err != nil {
				return err
			}
		}

		if params.RequireAnswers && countAttempted(answers) == 0 {
			return ErrNoAnswers
		}

		snapshot, err := buildSnapshot(answers)
		if err != nil {
			return err
		}

		final := clearDraftColumns()
		final["snapshot"] = snapshot
		if err := tx.Model(&models.AssessmentSession{}).Where("id = ?", sessionID).Updates(final).Error; err != nil {
			return err
		}

		if err := tx.First(&session, sessionID).Error; err != nil {
			return err
		}
		session.Answers = answers
		sealed = session
		return nil
	})
	if err != nil {
		return models.AssessmentSession{}, err
	}
	return sealed, nil
}

func (r *sessionRepository) SaveGrade(ctx context.Context, sessionID uint, grade GradeUpdate) error {
	res := r.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("id = ? AND status = ?", sessionID, models.SessionSealed).
		Updates(map[string]interface{}{
			"score":          grade.Score,
			"auto_gradable":  grade.AutoGradable,
			"correct_count":  grade.CorrectCount,
			"pending_review": grade.PendingReview,
			"graded_at":      grade.GradedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionNotMet
	}
	return nil
}

// RecordViolation persists the violation and bumps counter while the session is in progress.
// Violations arriving after the seal are stored with AfterSeal set and leave the counters untouched.
func (r *sessionRepository) RecordViolation(ctx context.Context, violation *models.IntegrityViolation, counter string) (models.AssessmentSession, error) {
	if counter != "" && counter != CounterFocusLoss && counter != CounterClipboardKey {
		return models.AssessmentSession{}, fmt.Errorf("unknown integrity counter %q", counter)
	}

	var session models.AssessmentSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&session, violation.SessionID).Error; err != nil {
			return err
		}

		counted := false
		if counter != "" {
			res := tx.Model(&models.AssessmentSession{}).
				Where("id = ? AND status = ?", violation.SessionID, models.SessionInProgress).
				UpdateColumn(counter, gorm.Expr(counter+" + ?", 1))
			if res.Error != nil {
				return res.Error
			}
			counted = res.RowsAffected > 0
		} else {
			counted = session.Status == models.SessionInProgress
		}

		violation.AfterSeal = !counted
		if err := tx.Create(violation).Error; err != nil {
			return err
		}

		return tx.First(&session, violation.SessionID).Error
	})
	if err != nil {
		return models.AssessmentSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) ListViolations(ctx context.Context, sessionID uint) ([]models.IntegrityViolation, error) {
	var violations []models.IntegrityViolation
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC, id ASC").
		Find(&violations).Error; err != nil {
		return nil, err
	}
	return violations, nil
}

func (r *sessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}

	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("status = ? AND deadline < ?", models.SessionInProgress, now).
		Order("deadline ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *sessionRepository) GetAnswer(ctx context.Context, sessionID, answerID uint) (models.AssessmentAnswer, error) {
	var answer models.AssessmentAnswer
	if err := r.db.WithContext(ctx).
		Where("id = ? AND session_id = ?", answerID, sessionID).
		First(&answer).Error; err != nil {
		return models.AssessmentAnswer{}, err
	}
	return answer, nil
}

func (r *sessionRepository) ReviewAnswer(ctx context.Context, answerID uint, points float64, reviewerID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.AssessmentAnswer{}).
		Where("id = ?", answerID).
		Updates(map[string]interface{}{
			"review_points": points,
			"reviewed_by":   reviewerID,
			"reviewed_at":   at,
			"updated_at":    at,
		}).Error
}

func touchWritable(tx *gorm.DB, sessionID uint, at time.Time) error {
	res := tx.Model(&models.AssessmentSession{}).
		Where("id = ? AND status = ? AND deadline >= ?", sessionID, models.SessionInProgress, at).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionNotMet
	}
	return nil
}

func upsertAnswer(tx *gorm.DB, answer *models.AssessmentAnswer) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "choice_id", "text", "answered_at", "updated_at"}),
	}).Create(answer).Error
}

func clearDraftColumns() map[string]interface{} {
	return map[string]interface{}{
		"draft_question_id": nil,
		"draft_choice_id":   nil,
		"draft_text":        "",
		"draft_saved_at":    nil,
	}
}

// flushPending promotes the parked draft and the pending answer sent with the seal request.
// An edit only wins when it was made before the deadline and is newer than the committed answer.
func flushPending(tx *gorm.DB, session models.AssessmentSession, answers []models.AssessmentAnswer, pending *models.AssessmentAnswer) (bool, error) {
	latest := make(map[uint]time.Time, len(answers))
	for _, answer := range answers {
		latest[answer.QuestionID] = answer.AnsweredAt
	}

	candidates := make([]models.AssessmentAnswer, 0, 2)
	if session.HasDraft() && !session.DraftSavedAt.After(session.Deadline) {
		draft := models.AssessmentAnswer{
			SessionID:  session.ID,
			QuestionID: *session.DraftQuestionID,
			Kind:       models.QuestionEssay,
			Text:       session.DraftText,
			AnsweredAt: *session.DraftSavedAt,
		}
		if session.DraftChoiceID != nil {
			draft.Kind = models.QuestionMultipleChoice
			draft.ChoiceID = session.DraftChoiceID
			draft.Text = ""
		}
		candidates = append(candidates, draft)
	}
	if pending != nil && !pending.AnsweredAt.After(session.Deadline) {
		item := *pending
		item.SessionID = session.ID
		candidates = append(candidates, item)
	}

	flushed := false
	for i := range candidates {
		candidate := candidates[i]
		if at, ok := latest[candidate.QuestionID]; ok && !at.Before(candidate.AnsweredAt) {
			continue
		}
		if err := upsertAnswer(tx, &candidate); err != nil {
			return false, err
		}
		latest[candidate.QuestionID] = candidate.AnsweredAt
		flushed = true
	}
	return flushed, nil
}

// countAttempted skips essay rows that carry no text.
func countAttempted(answers []models.AssessmentAnswer) int {
	n := 0
	for _, answer := range answers {
		if answer.ChoiceID != nil || strings.TrimSpace(answer.Text) != "" {
			n++
		}
	}
	return n
}

func buildSnapshot(answers []models.AssessmentAnswer) (datatypes.JSON, error) {
	entries := make([]models.SnapshotEntry, 0, len(answers))
	for _, answer := range answers {
		entries = append(entries, models.SnapshotEntry{
			QuestionID: answer.QuestionID,
			Kind:       answer.Kind,
			ChoiceID:   answer.ChoiceID,
			Text:       answer.Text,
			AnsweredAt: answer.AnsweredAt,
		})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
