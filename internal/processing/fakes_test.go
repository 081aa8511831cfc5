package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/repository"
)

type stubUploadRepo struct {
	mu            sync.Mutex
	uploads       map[int64]domain.Upload
	processingErr error
	completeErr   error
	failedWith    []string
}

func newStubUploadRepo(ids ...int64) *stubUploadRepo {
	repo := &stubUploadRepo{uploads: map[int64]domain.Upload{}}
	for _, id := range ids {
		upload := domain.NewUpload("invoices.csv", "uploads/invoices.csv", 10, "csv", domain.StorageLocationLocal)
		upload.ID = id
		repo.uploads[id] = upload
	}
	return repo
}

func (r *stubUploadRepo) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload.ID = int64(len(r.uploads) + 1)
	r.uploads[upload.ID] = upload
	return upload, nil
}

func (r *stubUploadRepo) GetByID(ctx context.Context, id int64) (domain.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.uploads[id]
	if !ok {
		return domain.Upload{}, domain.ErrUploadNotFound
	}
	return upload, nil
}

func (r *stubUploadRepo) List(ctx context.Context, limit int, offset int) ([]domain.Upload, error) {
	return nil, errors.New("not implemented")
}

func (r *stubUploadRepo) MarkProcessing(ctx context.Context, id int64, startedAt time.Time, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processingErr != nil {
		return r.processingErr
	}
	upload, ok := r.uploads[id]
	if !ok {
		return domain.ErrUploadNotFound
	}
	upload.Status = domain.ProcessingStatusProcessing
	upload.ProcessingStartedAt = &startedAt
	upload.ProcessingCompletedAt = nil
	upload.TotalRecordsFound = total
	upload.SuccessfulRecords = 0
	upload.FailedRecords = 0
	upload.ErrorSummary = nil
	r.uploads[id] = upload
	return nil
}

func (r *stubUploadRepo) Complete(ctx context.Context, id int64, outcome domain.BatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return r.completeErr
	}
	upload, ok := r.uploads[id]
	if !ok {
		return domain.ErrUploadNotFound
	}
	upload.Status = outcome.Status
	upload.ProcessingCompletedAt = &outcome.CompletedAt
	upload.SuccessfulRecords = outcome.SuccessfulRecords
	upload.FailedRecords = outcome.FailedRecords
	upload.ErrorSummary = outcome.ErrorSummary
	r.uploads[id] = upload
	return nil
}

func (r *stubUploadRepo) MarkFailed(ctx context.Context, id int64, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedWith = append(r.failedWith, summary)
	upload, ok := r.uploads[id]
	if !ok {
		return domain.ErrUploadNotFound
	}
	upload.Status = domain.ProcessingStatusFailed
	upload.ErrorSummary = &summary
	r.uploads[id] = upload
	return nil
}

func (r *stubUploadRepo) SetUnmappedColumns(ctx context.Context, id int64, columns []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.uploads[id]
	if !ok {
		return domain.ErrUploadNotFound
	}
	upload.UnmappedColumns = columns
	r.uploads[id] = upload
	return nil
}

type stubLogRepo struct {
	mu      sync.Mutex
	entries []domain.ProcessingLog
}

func (r *stubLogRepo) Record(ctx context.Context, entry domain.ProcessingLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubLogRepo) List(ctx context.Context, uploadID int64, limit int, offset int) ([]domain.ProcessingLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProcessingLog
	for _, entry := range r.entries {
		if entry.FileUploadID == uploadID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *stubLogRepo) byLevel(level domain.LogLevel) []domain.ProcessingLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProcessingLog
	for _, entry := range r.entries {
		if entry.Level == level {
			out = append(out, entry)
		}
	}
	return out
}

// memoryStore keeps committed rows; each unit of work stages rows until Commit.
type memoryStore struct {
	mu        sync.Mutex
	nextID    int64
	vendors   []domain.Vendor
	customers []domain.Customer
	invoices  []domain.Invoice
	items     []domain.InvoiceItem
	payments  []domain.Payment

	begun      int
	rollbacks  int
	beginErr   error
	failInsert func(table domain.TargetTable) error
}

func (s *memoryStore) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begun++
	return &memoryUnit{store: s}, nil
}

func (s *memoryStore) id() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *memoryStore) check(table domain.TargetTable) error {
	if s.failInsert == nil {
		return nil
	}
	return s.failInsert(table)
}

type memoryUnit struct {
	store     *memoryStore
	vendors   []domain.Vendor
	customers []domain.Customer
	invoices  []domain.Invoice
	items     []domain.InvoiceItem
	payments  []domain.Payment
	closed    bool
}

func (u *memoryUnit) InsertVendor(ctx context.Context, vendor domain.Vendor) (int64, error) {
	if err := u.store.check(domain.TableVendor); err != nil {
		return 0, err
	}
	vendor.ID = u.store.id()
	u.vendors = append(u.vendors, vendor)
	return vendor.ID, nil
}

func (u *memoryUnit) InsertCustomer(ctx context.Context, customer domain.Customer) (int64, error) {
	if err := u.store.check(domain.TableCustomer); err != nil {
		return 0, err
	}
	customer.ID = u.store.id()
	u.customers = append(u.customers, customer)
	return customer.ID, nil
}

func (u *memoryUnit) InsertInvoice(ctx context.Context, invoice domain.Invoice) (int64, error) {
	if err := u.store.check(domain.TableInvoice); err != nil {
		return 0, err
	}
	invoice.ID = u.store.id()
	u.invoices = append(u.invoices, invoice)
	return invoice.ID, nil
}

func (u *memoryUnit) InsertInvoiceItem(ctx context.Context, item domain.InvoiceItem) (int64, error) {
	if err := u.store.check(domain.TableInvoiceItem); err != nil {
		return 0, err
	}
	item.ID = u.store.id()
	u.items = append(u.items, item)
	return item.ID, nil
}

func (u *memoryUnit) InsertPayment(ctx context.Context, payment domain.Payment) (int64, error) {
	if err := u.store.check(domain.TablePayment); err != nil {
		return 0, err
	}
	payment.ID = u.store.id()
	u.payments = append(u.payments, payment)
	return payment.ID, nil
}

func (u *memoryUnit) Commit(ctx context.Context) error {
	if u.closed {
		return errors.New("tx closed")
	}
	u.closed = true
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors = append(s.vendors, u.vendors...)
	s.customers = append(s.customers, u.customers...)
	s.invoices = append(s.invoices, u.invoices...)
	s.items = append(s.items, u.items...)
	s.payments = append(s.payments, u.payments...)
	return nil
}

func (u *memoryUnit) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.store.mu.Lock()
	u.store.rollbacks++
	u.store.mu.Unlock()
	return nil
}
