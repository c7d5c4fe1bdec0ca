package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/config"
	"github.com/noah-isme/recruitment-go-api/internal/database"
	"github.com/noah-isme/recruitment-go-api/internal/handler"
	"github.com/noah-isme/recruitment-go-api/internal/middleware"
	"github.com/noah-isme/recruitment-go-api/internal/observability"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
	"github.com/noah-isme/recruitment-go-api/internal/router"
	"github.com/noah-isme/recruitment-go-api/internal/service"
	"github.com/noah-isme/recruitment-go-api/internal/worker"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	pipelineRepo := repository.NewPipelineRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	bankRepo := repository.NewQuestionBankRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.RealtimeChannel, natsConn, validate, logger)
	pipelineService := service.NewPipelineService(pipelineRepo, validate, activityService, notificationService, logger)
	bankService := service.NewQuestionBankService(bankRepo, redisClient, cfg.PaperCacheTTL, validate, logger)
	gradingService := service.NewGradingService(sessionRepo, bankService, pipelineService, activityService, logger)
	assessmentService := service.NewAssessmentService(sessionRepo, bankService, pipelineService, gradingService, notificationService, activityService, validate, logger)
	integrityService := service.NewIntegrityService(sessionRepo, assessmentService, service.IntegrityLimits{
		FocusLoss:    cfg.FocusLossLimit,
		ClipboardKey: cfg.ClipboardKeyLimit,
	}, validate, logger)
	seedService := service.NewSeedService(bankService, cfg.SeedEnabled, cfg.SeedToken, logger)

	notificationService.Start(ctx)

	sweeper := worker.NewSessionSweeper(assessmentService, cfg.SweepInterval, cfg.SweepBatchSize, logger)
	sweeper.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		ApplicationHandler:  handler.NewApplicationHandler(pipelineService, logger),
		AssessmentHandler:   handler.NewAssessmentHandler(assessmentService, integrityService, logger),
		ExamSocketHandler:   handler.NewExamSocketHandler(assessmentService, integrityService, cfg.SocketTick, logger),
		HRHandler:           handler.NewHRHandler(pipelineService, assessmentService, gradingService, cfg.SweepBatchSize, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.NotificationKeepAlive),
		SeedHandler:         handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, sweeper, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, sweeper *worker.SessionSweeper, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sweeper.Stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
