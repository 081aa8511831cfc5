package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uploadColumns = `file_upload_id, original_filename, file_path, file_size, file_type, storage_location,
	upload_timestamp, processing_status, processing_started_at, processing_completed_at,
	total_records_found, successful_records, failed_records, error_summary, unmapped_columns`

type uploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository wires a repository backed by pgxpool.
func NewUploadRepository(pool *pgxpool.Pool) UploadRepository {
	return &uploadRepository{pool: pool}
}

func (r *uploadRepository) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	unmapped, err := marshalColumns(upload.UnmappedColumns)
	if err != nil {
		return domain.Upload{}, err
	}
	if upload.Status == "" {
		upload.Status = domain.ProcessingStatusPending
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO file_uploads (original_filename, file_path, file_size, file_type, storage_location,
		   upload_timestamp, processing_status, unmapped_columns)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+uploadColumns,
		upload.OriginalFilename,
		upload.FilePath,
		upload.FileSize,
		upload.FileType,
		string(upload.StorageLocation),
		upload.UploadedAt,
		string(upload.Status),
		unmapped,
	)

	created, err := scanUpload(row)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to create file upload: %w", err)
	}
	return created, nil
}

func (r *uploadRepository) GetByID(ctx context.Context, id int64) (domain.Upload, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM file_uploads WHERE file_upload_id = $1`, id)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Upload{}, fmt.Errorf("%w: %d", domain.ErrUploadNotFound, id)
		}
		return domain.Upload{}, fmt.Errorf("failed to get file upload: %w", err)
	}
	return upload, nil
}

func (r *uploadRepository) List(ctx context.Context, limit int, offset int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+uploadColumns+`
		 FROM file_uploads
		 ORDER BY upload_timestamp DESC, file_upload_id DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list file uploads: %w", err)
	}
	defer rows.Close()

	uploads := []domain.Upload{}
	for rows.Next() {
		upload, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan file upload: %w", scanErr)
		}
		uploads = append(uploads, upload)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate file uploads: %w", rowsErr)
	}
	return uploads, nil
}

// MarkProcessing resets the counters of a previous run; a re-run overwrites rather
// than accumulates.
func (r *uploadRepository) MarkProcessing(ctx context.Context, id int64, startedAt time.Time, totalRecords int) error {
	return r.exec(ctx, "mark file upload processing", id,
		`UPDATE file_uploads
		 SET processing_status = $2,
		     processing_started_at = $3,
		     processing_completed_at = NULL,
		     total_records_found = $4,
		     successful_records = 0,
		     failed_records = 0,
		     error_summary = NULL
		 WHERE file_upload_id = $1`,
		id, string(domain.ProcessingStatusProcessing), startedAt, totalRecords,
	)
}

func (r *uploadRepository) Complete(ctx context.Context, id int64, outcome domain.BatchOutcome) error {
	return r.exec(ctx, "complete file upload", id,
		`UPDATE file_uploads
		 SET processing_status = $2,
		     processing_completed_at = $3,
		     successful_records = $4,
		     failed_records = $5,
		     error_summary = $6
		 WHERE file_upload_id = $1`,
		id, string(outcome.Status), outcome.CompletedAt, outcome.SuccessfulRecords, outcome.FailedRecords, outcome.ErrorSummary,
	)
}

func (r *uploadRepository) MarkFailed(ctx context.Context, id int64, errorSummary string) error {
	return r.exec(ctx, "mark file upload failed", id,
		`UPDATE file_uploads
		 SET processing_status = $2,
		     processing_completed_at = now(),
		     error_summary = $3
		 WHERE file_upload_id = $1`,
		id, string(domain.ProcessingStatusFailed), errorSummary,
	)
}

func (r *uploadRepository) SetUnmappedColumns(ctx context.Context, id int64, columns []string) error {
	payload, err := marshalColumns(columns)
	if err != nil {
		return err
	}
	return r.exec(ctx, "store unmapped columns", id,
		`UPDATE file_uploads SET unmapped_columns = $2 WHERE file_upload_id = $1`,
		id, payload,
	)
}

func (r *uploadRepository) exec(ctx context.Context, action string, id int64, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to %s: %w: %d", action, domain.ErrUploadNotFound, id)
	}
	return nil
}

func marshalColumns(columns []string) ([]byte, error) {
	if columns == nil {
		columns = []string{}
	}
	payload, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode unmapped columns: %w", err)
	}
	return payload, nil
}

func scanUpload(row pgx.Row) (domain.Upload, error) {
	var (
		upload      domain.Upload
		location    string
		status      string
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
		summary     pgtype.Text
		unmapped    []byte
	)
	if err := row.Scan(
		&upload.ID,
		&upload.OriginalFilename,
		&upload.FilePath,
		&upload.FileSize,
		&upload.FileType,
		&location,
		&upload.UploadedAt,
		&status,
		&startedAt,
		&completedAt,
		&upload.TotalRecordsFound,
		&upload.SuccessfulRecords,
		&upload.FailedRecords,
		&summary,
		&unmapped,
	); err != nil {
		return domain.Upload{}, err
	}

	upload.StorageLocation = domain.StorageLocation(location)
	upload.Status = domain.ProcessingStatus(status)
	if startedAt.Valid {
		ts := startedAt.Time
		upload.ProcessingStartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		upload.ProcessingCompletedAt = &ts
	}
	if summary.Valid {
		value := summary.String
		upload.ErrorSummary = &value
	}
	upload.UnmappedColumns = []string{}
	if len(unmapped) > 0 {
		if err := json.Unmarshal(unmapped, &upload.UnmappedColumns); err != nil {
			return domain.Upload{}, fmt.Errorf("failed to decode unmapped columns: %w", err)
		}
	}
	return upload, nil
}
