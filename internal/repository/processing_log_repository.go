package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type processingLogRepository struct {
	pool *pgxpool.Pool
}

// NewProcessingLogRepository wires a repository backed by pgxpool.
func NewProcessingLogRepository(pool *pgxpool.Pool) ProcessingLogRepository {
	return &processingLogRepository{pool: pool}
}

func (r *processingLogRepository) Record(ctx context.Context, entry domain.ProcessingLog) error {
	if r.pool == nil {
		return fmt.Errorf("processing log repository not initialized")
	}

	var details []byte
	if entry.Details != nil {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode processing log details: %w", err)
		}
		details = encoded
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO processing_logs (file_upload_id, log_level, message, details, logged_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.FileUploadID,
		string(entry.Level),
		entry.Message,
		details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record processing log: %w", err)
	}

	return nil
}

func (r *processingLogRepository) List(ctx context.Context, uploadID int64, limit int, offset int) ([]domain.ProcessingLog, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("processing log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT log_id, file_upload_id, log_level, message, details, logged_at
		 FROM processing_logs
		 WHERE file_upload_id = $1
		 ORDER BY logged_at DESC, log_id DESC
		 LIMIT $2 OFFSET $3`,
		uploadID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.ProcessingLog{}
	for rows.Next() {
		var (
			entry   domain.ProcessingLog
			level   string
			details []byte
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.FileUploadID,
			&level,
			&entry.Message,
			&details,
			&entry.Timestamp,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan processing log: %w", scanErr)
		}

		entry.Level = domain.LogLevel(level)
		if len(details) > 0 {
			if decodeErr := json.Unmarshal(details, &entry.Details); decodeErr != nil {
				return nil, fmt.Errorf("failed to decode processing log details: %w", decodeErr)
			}
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate processing logs: %w", rowsErr)
	}

	return logs, nil
}
