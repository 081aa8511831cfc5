package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/logging"
	"github.com/rpattn/invoiceflow/internal/repository"

	"github.com/sirupsen/logrus"
)

// BatchResult is the outcome of a completed batch.
type BatchResult struct {
	Stats  domain.ProcessingStats  `json:"processing_stats"`
	Status domain.ProcessingStatus `json:"status"`
}

// BatchProcessor writes the records of one upload, committing each record on
// its own unit of work.
type BatchProcessor struct {
	uploads repository.UploadRepository
	logs    repository.ProcessingLogRepository
	units   repository.UnitOfWorkFactory
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewBatchProcessor wires the processor to its repositories.
func NewBatchProcessor(
	uploads repository.UploadRepository,
	logs repository.ProcessingLogRepository,
	units repository.UnitOfWorkFactory,
	logger logrus.FieldLogger,
) *BatchProcessor {
	return &BatchProcessor{
		uploads: uploads,
		logs:    logs,
		units:   units,
		logger:  logger,
		now:     time.Now,
	}
}

// Process runs records through the transformer and writer. A bad record is
// rolled back and counted; the batch only aborts on a configuration error or
// when the upload row itself cannot be updated, in which case the upload is
// marked failed and the error returned.
func (p *BatchProcessor) Process(ctx context.Context, uploadID int64, records []domain.SourceRecord, set domain.MappingSet) (BatchResult, error) {
	if err := ValidateMappingSet(set); err != nil {
		return BatchResult{}, p.abort(ctx, uploadID, err)
	}

	log := p.logger.WithFields(logrus.Fields{"upload_id": uploadID, "records": len(records)})
	if err := p.uploads.MarkProcessing(ctx, uploadID, p.now(), len(records)); err != nil {
		return BatchResult{}, p.abort(ctx, uploadID, fmt.Errorf("failed to start processing: %w", err))
	}
	log.Info("batch processing started")

	writer := NewEntityWriter(uploadID)
	stats := domain.NewProcessingStats(len(records))
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, p.abort(ctx, uploadID, err)
		}

		uow, err := p.units.Begin(ctx)
		if err != nil {
			return BatchResult{}, p.abort(ctx, uploadID, fmt.Errorf("failed to begin unit of work: %w", err))
		}

		if err := p.processRecord(ctx, uow, writer, record, set); err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return BatchResult{}, p.abort(ctx, uploadID, err)
			}
			message := fmt.Sprintf("Failed to process record %s: %v", businessKey(record, set), err)
			stats.RecordFailure(message)
			log.WithField("record_index", i).Warn(message)
			p.recordLog(ctx, domain.NewProcessingLog(uploadID, domain.LogLevelError, message, map[string]any{
				"record": record,
			}))
			continue
		}
		stats.RecordSuccess()
	}

	status := stats.FinalStatus()
	outcome := domain.BatchOutcome{
		Status:            status,
		CompletedAt:       p.now(),
		SuccessfulRecords: stats.SuccessfulRecords,
		FailedRecords:     stats.FailedRecords,
		ErrorSummary:      stats.ErrorSummary(domain.ErrorSummaryLimit),
	}
	if err := p.uploads.Complete(ctx, uploadID, outcome); err != nil {
		return BatchResult{}, p.abort(ctx, uploadID, fmt.Errorf("failed to save batch outcome: %w", err))
	}

	log.WithFields(logrus.Fields{
		"successful": stats.SuccessfulRecords,
		"failed":     stats.FailedRecords,
		"status":     status,
	}).Info("batch processing finished")
	p.recordLog(ctx, domain.NewProcessingLog(uploadID, domain.LogLevelInfo, "Batch processing finished", map[string]any{
		"total_records":      stats.TotalRecords,
		"successful_records": stats.SuccessfulRecords,
		"failed_records":     stats.FailedRecords,
		"status":             string(status),
	}))

	return BatchResult{Stats: stats, Status: status}, nil
}

// processRecord writes one record and commits it. Any failure, including a
// panic inside the writer, rolls back every row staged for the record.
func (p *BatchProcessor) processRecord(ctx context.Context, uow repository.UnitOfWork, writer *EntityWriter, record domain.SourceRecord, set domain.MappingSet) (err error) {
	committed := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if committed {
			return
		}
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			p.logger.WithError(rbErr).Warn("rollback failed")
		}
	}()

	payload, err := Transform(record, set)
	if err != nil {
		return err
	}
	if err := writer.WriteRecord(ctx, uow, payload); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	committed = true
	return nil
}

// abort forces the upload to failed and returns cause.
func (p *BatchProcessor) abort(ctx context.Context, uploadID int64, cause error) error {
	logging.LogError(p.logger, "processing", "Process", "batch aborted", map[string]any{"upload_id": uploadID}, cause)
	if err := p.uploads.MarkFailed(context.WithoutCancel(ctx), uploadID, cause.Error()); err != nil {
		p.logger.WithError(err).WithField("upload_id", uploadID).Error("failed to mark upload as failed")
	}
	return cause
}

func (p *BatchProcessor) recordLog(ctx context.Context, entry domain.ProcessingLog) {
	if err := p.logs.Record(ctx, entry); err != nil {
		p.logger.WithError(err).WithField("upload_id", entry.FileUploadID).Warn("failed to write processing log")
	}
}

// businessKey identifies a record in error messages by its invoice number, read
// through the mapping first and then from a literal invoice_number field.
func businessKey(record domain.SourceRecord, set domain.MappingSet) string {
	candidates := []string{}
	if source, ok := set.SourceFieldFor(domain.TableInvoice, "invoice_number"); ok {
		candidates = append(candidates, source)
	}
	candidates = append(candidates, "invoice_number")
	for _, name := range candidates {
		if value, ok := record.Get(name); ok && value != nil {
			if key := strings.TrimSpace(fmt.Sprint(value)); key != "" {
				return key
			}
		}
	}
	return "Unknown"
}
