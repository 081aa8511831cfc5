package domain

import (
	"time"
)

// ProcessingStatus captures lifecycle state for an upload.
type ProcessingStatus string

const (
	ProcessingStatusPending        ProcessingStatus = "pending"
	ProcessingStatusProcessing     ProcessingStatus = "processing"
	ProcessingStatusCompleted      ProcessingStatus = "completed"
	ProcessingStatusPartialSuccess ProcessingStatus = "partial_success"
	ProcessingStatusFailed         ProcessingStatus = "failed"
)

// StorageLocation identifies the backend an uploaded file was written to.
type StorageLocation string

const (
	StorageLocationLocal StorageLocation = "local"
	StorageLocationGCS   StorageLocation = "gcs"
	StorageLocationS3    StorageLocation = "s3"
)

// ErrorSummaryLimit bounds how many record errors are folded into Upload.ErrorSummary.
const ErrorSummaryLimit = 5

// Display returns the casing presented to clients.
func (s ProcessingStatus) Display() string {
	switch s {
	case ProcessingStatusPending:
		return "Pending"
	case ProcessingStatusProcessing:
		return "Processing"
	case ProcessingStatusCompleted:
		return "Completed"
	case ProcessingStatusPartialSuccess:
		return "Partial success"
	case ProcessingStatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Upload is the parent unit of work for one submitted file.
type Upload struct {
	ID                    int64            `json:"file_upload_id"`
	OriginalFilename      string           `json:"original_filename"`
	FilePath              string           `json:"file_path"`
	FileSize              int64            `json:"file_size"`
	FileType              string           `json:"file_type"`
	StorageLocation       StorageLocation  `json:"storage_location"`
	UploadedAt            time.Time        `json:"upload_timestamp"`
	Status                ProcessingStatus `json:"processing_status"`
	ProcessingStartedAt   *time.Time       `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time       `json:"processing_completed_at,omitempty"`
	TotalRecordsFound     int              `json:"total_records_found"`
	SuccessfulRecords     int              `json:"successful_records"`
	FailedRecords         int              `json:"failed_records"`
	ErrorSummary          *string          `json:"error_summary,omitempty"`
	UnmappedColumns       []string         `json:"unmapped_columns"`
}

// NewUpload creates a pending upload for a stored file.
func NewUpload(filename, path string, size int64, fileType string, location StorageLocation) Upload {
	return Upload{
		OriginalFilename: filename,
		FilePath:         path,
		FileSize:         size,
		FileType:         fileType,
		StorageLocation:  location,
		UploadedAt:       time.Now(),
		Status:           ProcessingStatusPending,
		UnmappedColumns:  []string{},
	}
}

// BatchOutcome carries the final state written to an upload after a batch run.
type BatchOutcome struct {
	Status            ProcessingStatus
	CompletedAt       time.Time
	SuccessfulRecords int
	FailedRecords     int
	ErrorSummary      *string
}
