package repository

import (
	"context"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"
)

// UploadRepository defines the interface for file upload lifecycle operations
type UploadRepository interface {
	Create(ctx context.Context, upload domain.Upload) (domain.Upload, error)
	GetByID(ctx context.Context, id int64) (domain.Upload, error)
	List(ctx context.Context, limit int, offset int) ([]domain.Upload, error)
	MarkProcessing(ctx context.Context, id int64, startedAt time.Time, totalRecords int) error
	Complete(ctx context.Context, id int64, outcome domain.BatchOutcome) error
	MarkFailed(ctx context.Context, id int64, errorSummary string) error
	SetUnmappedColumns(ctx context.Context, id int64, columns []string) error
}

// ProcessingLogRepository stores the append-only audit trail of an upload.
type ProcessingLogRepository interface {
	Record(ctx context.Context, entry domain.ProcessingLog) error
	List(ctx context.Context, uploadID int64, limit int, offset int) ([]domain.ProcessingLog, error)
}

// RecordRepository reads back the rows written for an upload.
type RecordRepository interface {
	ListByUpload(ctx context.Context, uploadID int64) (domain.UploadRecords, error)
}

// UnitOfWork stages the writes of a single source record. Nothing is visible to
// other sessions until Commit; Rollback discards every staged row.
type UnitOfWork interface {
	InsertVendor(ctx context.Context, vendor domain.Vendor) (int64, error)
	InsertCustomer(ctx context.Context, customer domain.Customer) (int64, error)
	InsertInvoice(ctx context.Context, invoice domain.Invoice) (int64, error)
	InsertInvoiceItem(ctx context.Context, item domain.InvoiceItem) (int64, error)
	InsertPayment(ctx context.Context, payment domain.Payment) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory opens a fresh unit of work.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
