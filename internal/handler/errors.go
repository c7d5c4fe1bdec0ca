package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrApplicationNotFound, fiber.StatusNotFound},
	{service.ErrSessionNotFound, fiber.StatusNotFound},
	{service.ErrDefinitionNotFound, fiber.StatusNotFound},
	{service.ErrQuestionNotFound, fiber.StatusNotFound},
	{service.ErrAnswerNotFound, fiber.StatusNotFound},
	{service.ErrNotificationNotFound, fiber.StatusNotFound},

	{service.ErrForbidden, fiber.StatusForbidden},
	{service.ErrAssessmentNotEligible, fiber.StatusForbidden},
	{service.ErrOutsideWindow, fiber.StatusForbidden},
	{service.ErrProfileIncomplete, fiber.StatusForbidden},
	{service.ErrSeedDisabled, fiber.StatusForbidden},
	{service.ErrSeedUnauthorized, fiber.StatusForbidden},

	{service.ErrDuplicateApplication, fiber.StatusConflict},
	{service.ErrAlreadyCompleted, fiber.StatusConflict},
	{service.ErrSessionSealed, fiber.StatusConflict},
	{service.ErrDeadlineExceeded, fiber.StatusConflict},
	{service.ErrAssessmentInProgress, fiber.StatusConflict},
	{service.ErrInvalidStageTransition, fiber.StatusConflict},
	{service.ErrSessionNotSealed, fiber.StatusConflict},

	{service.ErrUnknownStage, fiber.StatusBadRequest},
	{service.ErrInvalidSealReason, fiber.StatusBadRequest},

	{service.ErrAnswerKindMismatch, fiber.StatusUnprocessableEntity},
	{service.ErrInvalidChoice, fiber.StatusUnprocessableEntity},
	{service.ErrBlankAnswer, fiber.StatusUnprocessableEntity},
	{service.ErrInvalidScore, fiber.StatusUnprocessableEntity},
	{service.ErrScoreRequired, fiber.StatusUnprocessableEntity},
	{service.ErrNoAnswersProvided, fiber.StatusUnprocessableEntity},
	{service.ErrRulesNotAccepted, fiber.StatusUnprocessableEntity},
	{service.ErrAnswerNotReviewable, fiber.StatusUnprocessableEntity},
	{service.ErrInvalidQuestionBank, fiber.StatusUnprocessableEntity},
}

// statusFor returns the HTTP status and client message for a domain error.
func statusFor(err error) (int, string, bool) {
	for _, candidate := range errorStatuses {
		if !errors.Is(err, candidate.err) {
			continue
		}
		// question bank errors carry the offending question in the wrapped text
		if candidate.err == service.ErrInvalidQuestionBank {
			return candidate.status, err.Error(), true
		}
		return candidate.status, candidate.err.Error(), true
	}
	return 0, "", false
}

// respondError maps domain errors to their HTTP status and hides infrastructure failures.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	if isValidationError(err) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	}
	if status, message, ok := statusFor(err); ok {
		return utils.SendError(c, status, message)
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg(fallback)
	return utils.SendError(c, fiber.StatusInternalServerError, fallback)
}
