package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/utils"
)

// SeedHandler exposes tooling endpoints for loading question banks.
type SeedHandler struct {
	service service.SeedService
	logger  zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service: service,
		logger:  logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/assessments", h.assessments)
}

func (h *SeedHandler) assessments(c *fiber.Ctx) error {
	token := c.Get(middleware.HeaderSeedToken)
	var payload dto.SeedAssessmentsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.SeedAssessments(requestContext(c), token, payload)
	if err != nil {
		return respondError(c, h.logger, err, "seed operation failed")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessments seeded", result)
}
