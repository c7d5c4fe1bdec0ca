package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

// AssessmentHandler exposes the candidate exam endpoints.
type AssessmentHandler struct {
	assessment service.AssessmentService
	integrity  service.IntegrityService
	logger     zerolog.Logger
}

// NewAssessmentHandler constructs the exam handler.
func NewAssessmentHandler(assessment service.AssessmentService, integrity service.IntegrityService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		assessment: assessment,
		integrity:  integrity,
		logger:     logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register binds exam routes.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Post("/start", h.start)

	sessions := router.Group("/sessions/:id")
	sessions.Get("/", h.session)
	sessions.Put("/answers/:question_id", middleware.RateLimit("assessment_answer", 30, 10*time.Second), h.answer)
	sessions.Put("/draft", h.draft)
	sessions.Post("/seal", h.seal)
	sessions.Post("/violations", middleware.RateLimit("assessment_violation", 20, 10*time.Second), h.violation)
}

func (h *AssessmentHandler) start(c *fiber.Ctx) error {
	var payload dto.StartAssessmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.assessment.Start(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to start assessment")
	}
	if result.Resumed {
		return utils.SendSuccess(c, "assessment resumed", result)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment started", result)
}

func (h *AssessmentHandler) session(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	session, err := h.assessment.Session(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load session")
	}
	return utils.SendSuccess(c, "assessment session", session)
}

func (h *AssessmentHandler) answer(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	questionID, err := parseIDParam(c, "question_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.assessment.RecordAnswer(requestContext(c), id, questionID, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record answer")
	}
	return utils.SendSuccess(c, "answer saved", session)
}

func (h *AssessmentHandler) draft(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.assessment.SaveDraft(requestContext(c), id, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to save draft")
	}
	return utils.SendSuccess(c, "draft saved", session)
}

func (h *AssessmentHandler) seal(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SealRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	result, err := h.assessment.Submit(requestContext(c), id, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit assessment")
	}

	message := "assessment submitted"
	switch {
	case result.Message != "":
		message = result.Message
	case !result.Sealed:
		message = service.ErrSessionSealed.Error()
	}
	return utils.SendSuccess(c, message, result)
}

func (h *AssessmentHandler) violation(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ViolationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	outcome, err := h.integrity.Report(requestContext(c), id, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record violation")
	}

	message := "violation recorded"
	if outcome.Message != "" {
		message = outcome.Message
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, outcome)
}
