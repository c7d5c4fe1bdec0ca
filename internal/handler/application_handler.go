package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

// ApplicationHandler exposes the candidate side of the pipeline.
type ApplicationHandler struct {
	pipeline service.PipelineService
	logger   zerolog.Logger
}

// NewApplicationHandler constructs the candidate application handler.
func NewApplicationHandler(pipeline service.PipelineService, logger zerolog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		pipeline: pipeline,
		logger:   logger.With().Str("component", "application_handler").Logger(),
	}
}

// Register binds candidate application routes.
func (h *ApplicationHandler) Register(router fiber.Router) {
	router.Post("/", h.apply)
	router.Get("/", h.list)
	router.Get("/:id/status", h.status)
	router.Post("/:id/withdraw", h.withdraw)
}

func (h *ApplicationHandler) apply(c *fiber.Ctx) error {
	var payload dto.ApplyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	application, err := h.pipeline.Apply(requestContext(c), actorFromContext(c), middleware.ProfileComplete(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit application")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "application submitted", application)
}

func (h *ApplicationHandler) list(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	applications, err := h.pipeline.ListForCandidate(requestContext(c), actor.ID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list applications")
	}
	return utils.SendSuccess(c, "applications", applications)
}

func (h *ApplicationHandler) status(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, err := h.pipeline.CandidateStatus(requestContext(c), id, actorFromContext(c).ID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load application status")
	}
	return utils.SendSuccess(c, "application status", status)
}

func (h *ApplicationHandler) withdraw(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	application, err := h.pipeline.Withdraw(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to withdraw application")
	}
	return utils.SendSuccess(c, "application withdrawn", application)
}
