package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rpattn/invoiceflow/internal/config"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Output goes to stdout and, when configured, is
// teed into an append-only log file. The returned closer releases that file.
func New(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level := logrus.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)

	if cfg.File == "" {
		return logger, io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file, nil
}

// LogError writes an error with the module/function context used across services.
func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
