package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/recruitment-go-api/internal/config"
	"github.com/noah-isme/recruitment-go-api/internal/handler"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ApplicationHandler  *handler.ApplicationHandler
	AssessmentHandler   *handler.AssessmentHandler
	ExamSocketHandler   *handler.ExamSocketHandler
	HRHandler           *handler.HRHandler
	ActivityHandler     *handler.ActivityHandler
	NotificationHandler *handler.NotificationHandler
	SeedHandler         *handler.SeedHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	candidateOnly := middleware.RequireRole(middleware.RoleCandidate)
	reviewerOnly := middleware.RequireRole(middleware.ReviewerRoles...)

	if deps.ApplicationHandler != nil {
		applications := app.Group("/api/v2/applications", jwtMiddleware, candidateOnly)
		deps.ApplicationHandler.Register(applications)
	}

	if deps.AssessmentHandler != nil || deps.ExamSocketHandler != nil {
		assessments := app.Group("/api/v2/assessments", jwtMiddleware, candidateOnly)
		if deps.ExamSocketHandler != nil {
			deps.ExamSocketHandler.Register(assessments)
		}
		if deps.AssessmentHandler != nil {
			deps.AssessmentHandler.Register(assessments)
		}
	}

	if deps.HRHandler != nil || deps.ActivityHandler != nil {
		hr := app.Group("/api/v2/hr", jwtMiddleware, reviewerOnly)
		if deps.ActivityHandler != nil {
			deps.ActivityHandler.Register(hr.Group("/activity"))
		}
		if deps.HRHandler != nil {
			deps.HRHandler.Register(hr)
		}
	}

	if deps.NotificationHandler != nil {
		signedIn := middleware.WithAuth(func(c *fiber.Ctx) error { return c.Next() }, middleware.AuthOptions{RequireUser: true})
		notifications := app.Group("/api/v2/notifications", jwtMiddleware, signedIn)
		deps.NotificationHandler.Register(notifications)
	}

	// Seeding is guarded by its own token header instead of a user session.
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(app.Group("/api/v2/tools/seed"))
	}
}
