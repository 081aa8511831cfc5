package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rpattn/invoiceflow/internal/cache"
	"github.com/rpattn/invoiceflow/internal/config"
	"github.com/rpattn/invoiceflow/internal/db"
	"github.com/rpattn/invoiceflow/internal/extraction"
	"github.com/rpattn/invoiceflow/internal/ingestion"
	"github.com/rpattn/invoiceflow/internal/mapping"
	"github.com/rpattn/invoiceflow/internal/middleware"
	"github.com/rpattn/invoiceflow/internal/processing"
	"github.com/rpattn/invoiceflow/internal/repository"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// App holds the wired service graph shared by the server and the CLI.
type App struct {
	Config  config.Config
	Logger  logrus.FieldLogger
	Service *ingestion.Service

	closers []func() error
}

// New connects to postgres, storage and redis and wires the ingestion service.
func New(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error { conn.Close(); return nil })

	files, err := a.buildStorage(ctx, cfg.Storage)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	proposals, err := cache.NewProposalCache(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.ProposalTTL,
	})
	if err != nil {
		logger.WithError(err).Warn("proposal cache disabled")
		proposals = nil
	}
	if proposals != nil {
		a.closers = append(a.closers, proposals.Close)
	}

	generator := mapping.NewGeminiGenerator(mapping.GeminiConfig{
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		BaseURL:         cfg.LLM.BaseURL,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		Timeout:         cfg.LLM.Timeout,
	}, nil)
	if cfg.LLM.APIKey == "" {
		logger.Warn("llm api key is not set; every mapping proposal will be unavailable")
	}

	uploads := repository.NewUploadRepository(conn.Pool)
	logs := repository.NewProcessingLogRepository(conn.Pool)

	a.Service = ingestion.NewService(ingestion.Dependencies{
		Uploads:   uploads,
		Logs:      logs,
		Records:   repository.NewRecordRepository(conn.Pool),
		Files:     files.Primary(),
		Extractor: extraction.NewExtractor(files),
		Proposer:  mapping.NewMapper(generator, logger.WithField("module", "mapping")),
		Batch:     processing.NewBatchProcessor(uploads, logs, repository.NewUnitOfWorkFactory(conn.Pool), logger.WithField("module", "processing")),
		Cache:     proposals,
		Logger:    logger,
	}, ingestion.Options{
		MaxFileSize:  cfg.Upload.MaxFileSize,
		AllowedTypes: cfg.Upload.AllowedTypes,
		SampleRows:   cfg.Upload.SampleRows,
	})

	return a, nil
}

// Handler returns the REST API wrapped in CORS and request logging.
func (a *App) Handler() http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   a.Config.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	api := ingestion.NewHTTPHandler(a.Service, a.Config.Server.APIPrefix, a.Logger)
	return corsHandler.Handler(middleware.LoggingMiddleware(a.Logger)(api))
}

// Close releases every connection opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
