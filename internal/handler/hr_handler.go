package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

// HRHandler exposes reviewer operations on applications and assessment sessions.
type HRHandler struct {
	pipeline   service.PipelineService
	assessment service.AssessmentService
	grading    service.GradingService
	sweepBatch int
	logger     zerolog.Logger
}

// NewHRHandler constructs the reviewer handler.
func NewHRHandler(pipeline service.PipelineService, assessment service.AssessmentService, grading service.GradingService, sweepBatch int, logger zerolog.Logger) *HRHandler {
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &HRHandler{
		pipeline:   pipeline,
		assessment: assessment,
		grading:    grading,
		sweepBatch: sweepBatch,
		logger:     logger.With().Str("component", "hr_handler").Logger(),
	}
}

// Register binds reviewer routes.
func (h *HRHandler) Register(router fiber.Router) {
	applications := router.Group("/applications/:id")
	applications.Get("/status", h.status)
	applications.Post("/stages/:stage/advance", h.advance)
	applications.Put("/stages/:stage/score", h.score)
	applications.Put("/stages/:stage/schedule", h.schedule)
	applications.Post("/stages/:stage/complete", h.complete)

	sessions := router.Group("/sessions/:id")
	sessions.Get("/", h.session)
	sessions.Post("/regrade", h.regrade)
	sessions.Patch("/answers/:answer_id/review", h.reviewEssay)

	router.Post("/assessments/sweep", h.sweep)
}

func stageRequest(c *fiber.Ctx) (uint, models.Stage, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return 0, "", err
	}
	stage, ok := parseStageParam(c)
	if !ok {
		return 0, "", service.ErrUnknownStage
	}
	return id, stage, nil
}

func (h *HRHandler) status(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	status, err := h.pipeline.CurrentStatus(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load application status")
	}
	return utils.SendSuccess(c, "application status", status)
}

func (h *HRHandler) advance(c *fiber.Ctx) error {
	id, stage, err := stageRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.StageAdvanceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	status, err := h.pipeline.Advance(requestContext(c), id, stage, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to advance stage")
	}
	return utils.SendSuccess(c, "stage decided", status)
}

func (h *HRHandler) score(c *fiber.Ctx) error {
	id, stage, err := stageRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.StageScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if payload.Score == nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", []fiber.Map{{"field": "score", "rule": "required", "param": ""}})
	}

	record, err := h.pipeline.RecordScore(requestContext(c), id, stage, *payload.Score, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record score")
	}
	return utils.SendSuccess(c, "score recorded", record)
}

func (h *HRHandler) schedule(c *fiber.Ctx) error {
	id, stage, err := stageRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.StageScheduleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.pipeline.Schedule(requestContext(c), id, stage, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to schedule stage")
	}
	return utils.SendSuccess(c, "stage scheduled", record)
}

func (h *HRHandler) complete(c *fiber.Ctx) error {
	id, stage, err := stageRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.pipeline.Complete(requestContext(c), id, stage, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to complete stage")
	}
	return utils.SendSuccess(c, "stage completed", record)
}

func (h *HRHandler) session(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	review, err := h.assessment.ReviewSession(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load session")
	}
	return utils.SendSuccess(c, "assessment session", review)
}

func (h *HRHandler) regrade(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	result, err := h.grading.Regrade(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to regrade session")
	}
	return utils.SendSuccess(c, "session regraded", result)
}

func (h *HRHandler) reviewEssay(c *fiber.Ctx) error {
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	answerID, err := parseIDParam(c, "answer_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EssayReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	answer, err := h.grading.ReviewEssay(requestContext(c), sessionID, answerID, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to review answer")
	}
	return utils.SendSuccess(c, "answer reviewed", answer)
}

func (h *HRHandler) sweep(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit == 0 || limit > 1000 {
		limit = h.sweepBatch
	}

	result, err := h.assessment.SweepExpired(requestContext(c), limit)
	if err != nil {
		return respondError(c, h.logger, err, "failed to sweep sessions")
	}
	requestLogger(h.logger, c).Info().Int("scanned", result.Scanned).Int("sealed", result.Sealed).Msg("manual sweep completed")
	return utils.SendSuccess(c, "expired sessions sealed", result)
}
