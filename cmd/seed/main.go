package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/noah-isme/recruitment-go-api/internal/config"
	"github.com/noah-isme/recruitment-go-api/internal/database"
	"github.com/noah-isme/recruitment-go-api/internal/repository"
	"github.com/noah-isme/recruitment-go-api/internal/service"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "seed").Logger()

	flags := pflag.NewFlagSet("seed", pflag.ExitOnError)
	file := flags.StringP("file", "f", "", "YAML question pack to import")
	dryRun := flags.Bool("dry-run", false, "validate the pack without writing to the database")
	timeout := flags.Duration("timeout", time.Minute, "overall import timeout")
	_ = flags.Parse(os.Args[1:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: seed --file pack.yaml [--dry-run]")
		os.Exit(2)
	}

	pack, err := readPackFile(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("failed to read question pack")
	}
	if err := validatePack(pack); err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("question pack rejected")
	}
	if *dryRun {
		logger.Info().Int("definitions", len(pack.Definitions)).Msg("question pack is valid")
		return
	}

	cfg, err := config.LoadTooling()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	bank := service.NewQuestionBankService(repository.NewQuestionBankRepository(db), nil, cfg.PaperCacheTTL, validate, logger)

	result, err := bank.Import(ctx, pack)
	if err != nil {
		logger.Fatal().Err(err).Msg("import failed")
	}
	for _, def := range result.Definitions {
		logger.Info().Uint("definition_id", def.ID).Str("title", def.Title).Int("questions", def.Questions).Msg("definition imported")
	}
	logger.Info().Int("bindings", result.Bindings).Msg("import completed")
}
