package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/extraction"
	"github.com/rpattn/invoiceflow/internal/logging"
	"github.com/rpattn/invoiceflow/internal/processing"
	"github.com/rpattn/invoiceflow/internal/repository"

	"github.com/sirupsen/logrus"
)

const overviewLimit = 200

// FileStore persists accepted uploads.
type FileStore interface {
	Location() domain.StorageLocation
	Save(ctx context.Context, filename string, data []byte) (string, error)
}

// Extractor re-derives columns and rows from a stored upload.
type Extractor interface {
	Extract(ctx context.Context, upload domain.Upload) (extraction.Result, error)
}

// Proposer suggests field mappings for extracted columns.
type Proposer interface {
	ProposeMapping(ctx context.Context, columns []string, sample []domain.SourceRecord) domain.MappingProposal
}

// BatchRunner writes confirmed records.
type BatchRunner interface {
	Process(ctx context.Context, uploadID int64, records []domain.SourceRecord, set domain.MappingSet) (processing.BatchResult, error)
}

// ProposalCache remembers available proposals between requests.
type ProposalCache interface {
	Get(ctx context.Context, uploadID int64) (domain.MappingProposal, bool, error)
	Set(ctx context.Context, uploadID int64, proposal domain.MappingProposal) error
	Delete(ctx context.Context, uploadID int64) error
}

// Options bounds accepted uploads.
type Options struct {
	MaxFileSize  int64
	AllowedTypes []string
	SampleRows   int
}

// Service drives an upload from acceptance through mapping to insertion.
type Service struct {
	uploads   repository.UploadRepository
	logs      repository.ProcessingLogRepository
	records   repository.RecordRepository
	files     FileStore
	extractor Extractor
	proposer  Proposer
	batch     BatchRunner
	cache     ProposalCache
	logger    logrus.FieldLogger
	opts      Options
}

// Dependencies groups the collaborators of a Service.
type Dependencies struct {
	Uploads   repository.UploadRepository
	Logs      repository.ProcessingLogRepository
	Records   repository.RecordRepository
	Files     FileStore
	Extractor Extractor
	Proposer  Proposer
	Batch     BatchRunner
	Cache     ProposalCache
	Logger    logrus.FieldLogger
}

// NewService creates a new ingestion service. Cache may be nil.
func NewService(deps Dependencies, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cache := deps.Cache
	if cache == nil {
		cache = noCache{}
	}
	return &Service{
		uploads:   deps.Uploads,
		logs:      deps.Logs,
		records:   deps.Records,
		files:     deps.Files,
		extractor: deps.Extractor,
		proposer:  deps.Proposer,
		batch:     deps.Batch,
		cache:     cache,
		logger:    logger.WithField("module", "ingestion"),
		opts:      opts,
	}
}

// UploadRequest describes a submitted file.
type UploadRequest struct {
	FileName string
	Data     io.Reader
}

// UploadResponse returns the stored upload with its first mapping proposal.
type UploadResponse struct {
	Upload  domain.Upload   `json:"upload"`
	Mapping MappingResponse `json:"mapping"`
}

// MappingResponse is the proposal shown to the user for confirmation.
type MappingResponse struct {
	UploadID         int64                        `json:"upload_id"`
	ExtractedColumns []string                     `json:"extracted_columns"`
	Mappings         []domain.FieldMapping        `json:"mappings"`
	ExpectedSchema   map[string]map[string]string `json:"expected_schema"`
	UnmappedFields   []string                     `json:"unmapped_fields"`
	MappingAvailable bool                         `json:"mapping_available"`
	Reason           string                       `json:"reason,omitempty"`
}

// InsertionReport summarizes a confirmed batch.
type InsertionReport struct {
	UploadID         int64                  `json:"upload_id"`
	ExtractedColumns []string               `json:"extracted_columns"`
	Mappings         []domain.FieldMapping  `json:"mappings"`
	Unmapped         []string               `json:"unmapped"`
	ProcessingStats  domain.ProcessingStats `json:"processing_stats"`
	Status           string                 `json:"status"`
}

// UploadSummary is one row of the dashboard's recent uploads.
type UploadSummary struct {
	UploadID         int64  `json:"file_upload_id"`
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	UploadTime       string `json:"upload_time"`
	RecordsProcessed int    `json:"records_processed"`
}

// Overview aggregates the most recent uploads.
type Overview struct {
	TotalFilesUploaded  int             `json:"total_files_uploaded"`
	CompletedProcessing int             `json:"completed_processing"`
	FailedProcessing    int             `json:"failed_processing"`
	PartialFiles        int             `json:"partial_files"`
	RecentUploads       []UploadSummary `json:"recent_uploads"`
}

// Upload validates and stores a file, records a pending upload and proposes a
// mapping for it.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResponse, error) {
	name := strings.TrimSpace(filepath.Base(req.FileName))
	if name == "" || name == "." {
		return UploadResponse{}, errors.New("file name is required")
	}
	if req.Data == nil {
		return UploadResponse{}, errors.New("data reader is required")
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !s.allowed(fileType) {
		return UploadResponse{}, fmt.Errorf("%w: %q (allowed: %s)",
			domain.ErrUnsupportedFileType, fileType, strings.Join(s.opts.AllowedTypes, ", "))
	}

	reader := req.Data
	if s.opts.MaxFileSize > 0 {
		reader = io.LimitReader(req.Data, s.opts.MaxFileSize+1)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return UploadResponse{}, domain.ErrEmptyFile
	}
	if s.opts.MaxFileSize > 0 && int64(len(payload)) > s.opts.MaxFileSize {
		return UploadResponse{}, fmt.Errorf("%w: limit is %d bytes", domain.ErrFileTooLarge, s.opts.MaxFileSize)
	}

	key, err := s.files.Save(ctx, name, payload)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to store upload: %w", err)
	}

	upload, err := s.uploads.Create(ctx, domain.NewUpload(name, key, int64(len(payload)), fileType, s.files.Location()))
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to create upload: %w", err)
	}
	s.audit(ctx, domain.NewProcessingLog(upload.ID, domain.LogLevelInfo, "File accepted", map[string]any{
		"filename":         name,
		"file_size":        len(payload),
		"file_type":        fileType,
		"storage_location": string(upload.StorageLocation),
	}))
	s.logger.WithFields(logrus.Fields{"upload_id": upload.ID, "filename": name}).Info("file accepted")

	mapping, err := s.ProposeMapping(ctx, upload.ID)
	if err != nil {
		s.fail(ctx, upload.ID, "Upload", err)
		return UploadResponse{}, err
	}

	upload, err = s.uploads.GetByID(ctx, upload.ID)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to reload upload: %w", err)
	}
	return UploadResponse{Upload: upload, Mapping: mapping}, nil
}

// ProposeMapping extracts the upload and asks for a mapping. An unavailable
// proposal is returned as data, not as an error.
func (s *Service) ProposeMapping(ctx context.Context, uploadID int64) (MappingResponse, error) {
	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return MappingResponse{}, err
	}

	result, err := s.extractor.Extract(ctx, upload)
	if err != nil {
		return MappingResponse{}, err
	}

	proposal, hit := s.cachedProposal(ctx, uploadID)
	if !hit {
		proposal = s.proposer.ProposeMapping(ctx, result.Columns, result.Sample(s.opts.SampleRows))
		if proposal.Available {
			if err := s.uploads.SetUnmappedColumns(ctx, uploadID, proposal.UnmappedFields); err != nil {
				return MappingResponse{}, fmt.Errorf("failed to record unmapped columns: %w", err)
			}
			if err := s.cache.Set(ctx, uploadID, proposal); err != nil {
				s.logger.WithError(err).WithField("upload_id", uploadID).Warn("failed to cache proposal")
			}
			s.audit(ctx, domain.NewProcessingLog(uploadID, domain.LogLevelInfo, "Mapping proposed", map[string]any{
				"mappings":        len(proposal.Mappings),
				"unmapped_fields": proposal.UnmappedFields,
			}))
		} else {
			s.audit(ctx, domain.NewProcessingLog(uploadID, domain.LogLevelWarning, "Mapping unavailable", map[string]any{
				"reason": proposal.Reason,
			}))
		}
	}

	return MappingResponse{
		UploadID:         uploadID,
		ExtractedColumns: result.Columns,
		Mappings:         proposal.Mappings,
		ExpectedSchema:   domain.ExpectedSchema(),
		UnmappedFields:   proposal.UnmappedFields,
		MappingAvailable: proposal.Available,
		Reason:           proposal.Reason,
	}, nil
}

// ConfirmMappings re-extracts the upload and inserts its records with the
// user-confirmed mappings. Any failure marks the upload failed and is returned.
func (s *Service) ConfirmMappings(ctx context.Context, uploadID int64, mappings []domain.FieldMapping) (InsertionReport, error) {
	report, err := s.confirm(ctx, uploadID, mappings)
	if err != nil {
		s.fail(ctx, uploadID, "ConfirmMappings", err)
		return InsertionReport{}, err
	}
	return report, nil
}

func (s *Service) confirm(ctx context.Context, uploadID int64, mappings []domain.FieldMapping) (InsertionReport, error) {
	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return InsertionReport{}, err
	}

	set, err := domain.NewMappingSet(mappings)
	if err != nil {
		return InsertionReport{}, err
	}

	result, err := s.extractor.Extract(ctx, upload)
	if err != nil {
		return InsertionReport{}, err
	}

	s.audit(ctx, domain.NewProcessingLog(uploadID, domain.LogLevelInfo, "Mappings confirmed", map[string]any{
		"mappings": set.Mappings(),
		"records":  len(result.Rows),
	}))

	batch, err := s.batch.Process(ctx, uploadID, result.Rows, set)
	if err != nil {
		return InsertionReport{}, err
	}
	if err := s.cache.Delete(ctx, uploadID); err != nil {
		s.logger.WithError(err).WithField("upload_id", uploadID).Warn("failed to drop cached proposal")
	}

	unmapped := upload.UnmappedColumns
	if unmapped == nil {
		unmapped = []string{}
	}
	return InsertionReport{
		UploadID:         uploadID,
		ExtractedColumns: result.Columns,
		Mappings:         set.Mappings(),
		Unmapped:         unmapped,
		ProcessingStats:  batch.Stats,
		Status:           batch.Status.Display(),
	}, nil
}

// Logs lists the processing log of an upload, newest first.
func (s *Service) Logs(ctx context.Context, uploadID int64, limit, offset int) ([]domain.ProcessingLog, error) {
	if _, err := s.uploads.GetByID(ctx, uploadID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.logs.List(ctx, uploadID, limit, offset)
}

// Uploads lists uploads, newest first.
func (s *Service) Uploads(ctx context.Context, limit, offset int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.uploads.List(ctx, limit, offset)
}

// Overview counts the most recent uploads by display status.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	uploads, err := s.uploads.List(ctx, overviewLimit, 0)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to list uploads: %w", err)
	}

	overview := Overview{
		TotalFilesUploaded: len(uploads),
		RecentUploads:      make([]UploadSummary, 0, len(uploads)),
	}
	for _, upload := range uploads {
		switch upload.Status {
		case domain.ProcessingStatusCompleted:
			overview.CompletedProcessing++
		case domain.ProcessingStatusFailed:
			overview.FailedProcessing++
		case domain.ProcessingStatusPartialSuccess:
			overview.PartialFiles++
		}
		overview.RecentUploads = append(overview.RecentUploads, UploadSummary{
			UploadID:         upload.ID,
			Filename:         upload.OriginalFilename,
			Status:           upload.Status.Display(),
			UploadTime:       upload.UploadedAt.UTC().Format(time.RFC3339),
			RecordsProcessed: upload.SuccessfulRecords,
		})
	}
	return overview, nil
}

// ProcessingSummary returns every row written for an upload.
func (s *Service) ProcessingSummary(ctx context.Context, uploadID int64) (domain.UploadRecords, error) {
	if _, err := s.uploads.GetByID(ctx, uploadID); err != nil {
		return domain.UploadRecords{}, err
	}
	return s.records.ListByUpload(ctx, uploadID)
}

func (s *Service) cachedProposal(ctx context.Context, uploadID int64) (domain.MappingProposal, bool) {
	proposal, ok, err := s.cache.Get(ctx, uploadID)
	if err != nil {
		s.logger.WithError(err).WithField("upload_id", uploadID).Warn("proposal cache read failed")
		return domain.MappingProposal{}, false
	}
	return proposal, ok
}

func (s *Service) allowed(fileType string) bool {
	for _, t := range s.opts.AllowedTypes {
		if strings.EqualFold(strings.TrimPrefix(t, "."), fileType) {
			return true
		}
	}
	return false
}

// fail records err against the upload and forces it to failed. A missing upload
// has nothing to update.
func (s *Service) fail(ctx context.Context, uploadID int64, funcName string, err error) {
	logging.LogError(s.logger, "ingestion", funcName, "upload processing failed", map[string]any{"upload_id": uploadID}, err)
	if errors.Is(err, domain.ErrUploadNotFound) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.audit(ctx, domain.NewProcessingLog(uploadID, domain.LogLevelError, fmt.Sprintf("Processing failed: %v", err), nil))
	if markErr := s.uploads.MarkFailed(ctx, uploadID, err.Error()); markErr != nil {
		s.logger.WithError(markErr).WithField("upload_id", uploadID).Error("failed to mark upload as failed")
	}
}

func (s *Service) audit(ctx context.Context, entry domain.ProcessingLog) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("upload_id", entry.FileUploadID).Warn("failed to write processing log")
	}
}

type noCache struct{}

func (noCache) Get(context.Context, int64) (domain.MappingProposal, bool, error) {
	return domain.MappingProposal{}, false, nil
}

func (noCache) Set(context.Context, int64, domain.MappingProposal) error { return nil }

func (noCache) Delete(context.Context, int64) error { return nil }
