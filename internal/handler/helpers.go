package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/models"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + strings.ReplaceAll(key, "_", " "))
	}
	return uint(parsed), nil
}

func parseStageParam(c *fiber.Ctx) (models.Stage, bool) {
	return models.ParseStage(c.Params("stage"))
}

func actorFromContext(c *fiber.Ctx) service.ActivityActor {
	id, _ := middleware.UserID(c)
	return service.ActivityActor{ID: id, Role: middleware.UserRole(c)}
}

func userIDString(c *fiber.Ctx) string {
	id, ok := middleware.UserID(c)
	if !ok {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := middleware.RequestLogger(c, base)
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) []fiber.Map {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]fiber.Map, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, fiber.Map{
			"field": strings.ToLower(fe.Field()),
			"rule":  fe.Tag(),
			"param": fe.Param(),
		})
	}
	return details
}
