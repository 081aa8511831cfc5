package domain

import (
	"time"
)

// LogLevel mirrors the levels stored on processing log rows.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// ProcessingLog is an append-only audit entry tied to an upload.
type ProcessingLog struct {
	ID           int64          `json:"log_id"`
	FileUploadID int64          `json:"file_upload_id"`
	Level        LogLevel       `json:"log_level"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewProcessingLog builds an entry stamped with the current time.
func NewProcessingLog(uploadID int64, level LogLevel, message string, details map[string]any) ProcessingLog {
	return ProcessingLog{
		FileUploadID: uploadID,
		Level:        level,
		Message:      message,
		Details:      details,
		Timestamp:    time.Now(),
	}
}
