package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/invoiceflow/internal/app"
	"github.com/rpattn/invoiceflow/internal/config"
	"github.com/rpattn/invoiceflow/internal/db"
	"github.com/rpattn/invoiceflow/internal/logging"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := os.Getenv("INVOICEFLOW_CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()
	if file := config.UsedFile(configPath); file != "" {
		logger.WithField("file", file).Info("using config file")
	}

	// Run migrations
	if err := db.RunMigrations(cfg.Database, logger); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start application: %v", err)
	}
	defer application.Close()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      application.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   cfg.Server.Addr,
			"prefix": cfg.Server.APIPrefix,
		}).Info("starting invoice upload server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}
