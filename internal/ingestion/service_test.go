package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/extraction"
	"github.com/rpattn/invoiceflow/internal/processing"
	"github.com/rpattn/invoiceflow/internal/repository"
)

const invoiceCSV = `Invoice No,Supplier,Qty,Notes
INV1,Acme,5,rush
INV2,Globex,bad,
`

type stubUploadRepo struct {
	mu      sync.Mutex
	nextID  int64
	uploads map[int64]domain.Upload
	failed  map[int64]string
}

func newStubUploadRepo() *stubUploadRepo {
	return &stubUploadRepo{uploads: map[int64]domain.Upload{}, failed: map[int64]string{}}
}

func (r *stubUploadRepo) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	upload.ID = r.nextID
	r.uploads[upload.ID] = upload
	return upload, nil
}

func (r *stubUploadRepo) GetByID(ctx context.Context, id int64) (domain.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.uploads[id]
	if !ok {
		return domain.Upload{}, fmt.Errorf("%w: %d", domain.ErrUploadNotFound, id)
	}
	return upload, nil
}

func (r *stubUploadRepo) List(ctx context.Context, limit int, offset int) ([]domain.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Upload
	for id := r.nextID; id > 0 && len(out) < limit; id-- {
		if upload, ok := r.uploads[id]; ok {
			out = append(out, upload)
		}
	}
	return out, nil
}

func (r *stubUploadRepo) MarkProcessing(ctx context.Context, id int64, startedAt time.Time, total int) error {
	return r.update(id, func(u *domain.Upload) {
		u.Status = domain.ProcessingStatusProcessing
		u.TotalRecordsFound = total
	})
}

func (r *stubUploadRepo) Complete(ctx context.Context, id int64, outcome domain.BatchOutcome) error {
	return r.update(id, func(u *domain.Upload) {
		u.Status = outcome.Status
		u.SuccessfulRecords = outcome.SuccessfulRecords
		u.FailedRecords = outcome.FailedRecords
	})
}

func (r *stubUploadRepo) MarkFailed(ctx context.Context, id int64, summary string) error {
	r.mu.Lock()
	r.failed[id] = summary
	r.mu.Unlock()
	return r.update(id, func(u *domain.Upload) {
		u.Status = domain.ProcessingStatusFailed
		u.ErrorSummary = &summary
	})
}

func (r *stubUploadRepo) SetUnmappedColumns(ctx context.Context, id int64, columns []string) error {
	return r.update(id, func(u *domain.Upload) { u.UnmappedColumns = columns })
}

func (r *stubUploadRepo) update(id int64, fn func(*domain.Upload)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.uploads[id]
	if !ok {
		return domain.ErrUploadNotFound
	}
	fn(&upload)
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
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].FileUploadID == uploadID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *stubLogRepo) messages(level domain.LogLevel) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, entry := range r.entries {
		if entry.Level == level {
			out = append(out, entry.Message)
		}
	}
	return out
}

type stubRecordRepo struct {
	records domain.UploadRecords
}

func (r *stubRecordRepo) ListByUpload(ctx context.Context, uploadID int64) (domain.UploadRecords, error) {
	out := r.records
	out.FileUploadID = uploadID
	return out, nil
}

// memoryFiles stores uploads in memory and serves them back to the extractor.
type memoryFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{files: map[string][]byte{}}
}

func (m *memoryFiles) Location() domain.StorageLocation { return domain.StorageLocationLocal }

func (m *memoryFiles) Save(ctx context.Context, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d_%s", len(m.files)+1, filename)
	m.files[key] = bytes.Clone(data)
	return key, nil
}

func (m *memoryFiles) ReadAll(ctx context.Context, location domain.StorageLocation, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("no such file %s", key)
	}
	return data, nil
}

type stubProposer struct {
	proposal domain.MappingProposal
	calls    int
	columns  []string
	sample   int
}

func (p *stubProposer) ProposeMapping(ctx context.Context, columns []string, sample []domain.SourceRecord) domain.MappingProposal {
	p.calls++
	p.columns = columns
	p.sample = len(sample)
	return p.proposal
}

type stubBatch struct {
	result  processing.BatchResult
	err     error
	calls   int
	records []domain.SourceRecord
	set     domain.MappingSet
}

func (b *stubBatch) Process(ctx context.Context, uploadID int64, records []domain.SourceRecord, set domain.MappingSet) (processing.BatchResult, error) {
	b.calls++
	b.records = records
	b.set = set
	return b.result, b.err
}

type memoryCache struct {
	proposals map[int64]domain.MappingProposal
	deleted   []int64
}

func (c *memoryCache) Get(ctx context.Context, uploadID int64) (domain.MappingProposal, bool, error) {
	p, ok := c.proposals[uploadID]
	return p, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, uploadID int64, proposal domain.MappingProposal) error {
	if c.proposals == nil {
		c.proposals = map[int64]domain.MappingProposal{}
	}
	c.proposals[uploadID] = proposal
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, uploadID int64) error {
	delete(c.proposals, uploadID)
	c.deleted = append(c.deleted, uploadID)
	return nil
}

var (
	_ repository.UploadRepository        = (*stubUploadRepo)(nil)
	_ repository.ProcessingLogRepository = (*stubLogRepo)(nil)
	_ repository.RecordRepository        = (*stubRecordRepo)(nil)
	_ FileStore                          = (*memoryFiles)(nil)
	_ ProposalCache                      = (*memoryCache)(nil)
)

type fixture struct {
	service  *Service
	uploads  *stubUploadRepo
	logs     *stubLogRepo
	files    *memoryFiles
	proposer *stubProposer
	batch    *stubBatch
	cache    *memoryCache
}

func availableProposal() domain.MappingProposal {
	return domain.MappingProposal{
		Available: true,
		Mappings: []domain.FieldMapping{
			{SourceField: "Invoice No", TargetTable: "invoice", TargetColumn: "invoice_number"},
			{SourceField: "Supplier", TargetTable: "vendor", TargetColumn: "vendor_name"},
			{SourceField: "Qty", TargetTable: "invoiceitem", TargetColumn: "quantity"},
		},
		UnmappedFields: []string{"Notes"},
	}
}

func newFixture() *fixture {
	f := &fixture{
		uploads:  newStubUploadRepo(),
		logs:     &stubLogRepo{},
		files:    newMemoryFiles(),
		proposer: &stubProposer{proposal: availableProposal()},
		batch:    &stubBatch{},
		cache:    &memoryCache{},
	}
	f.service = NewService(Dependencies{
		Uploads:   f.uploads,
		Logs:      f.logs,
		Records:   &stubRecordRepo{},
		Files:     f.files,
		Extractor: extraction.NewExtractor(f.files),
		Proposer:  f.proposer,
		Batch:     f.batch,
		Cache:     f.cache,
	}, Options{
		MaxFileSize:  1024,
		AllowedTypes: []string{"csv", "tsv", "xlsx", "pdf", "docx"},
		SampleRows:   1,
	})
	return f
}

func (f *fixture) upload(t *testing.T) domain.Upload {
	t.Helper()
	resp, err := f.service.Upload(context.Background(), UploadRequest{FileName: "invoices.csv", Data: strings.NewReader(invoiceCSV)})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp.Upload
}

func TestUploadStoresFileAndProposesMapping(t *testing.T) {
	f := newFixture()

	resp, err := f.service.Upload(context.Background(), UploadRequest{FileName: "invoices.csv", Data: strings.NewReader(invoiceCSV)})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	upload := resp.Upload
	if upload.ID == 0 || upload.FileType != "csv" || upload.Status != domain.ProcessingStatusPending {
		t.Fatalf("unexpected upload %+v", upload)
	}
	if upload.FileSize != int64(len(invoiceCSV)) || upload.StorageLocation != domain.StorageLocationLocal {
		t.Fatalf("unexpected file metadata %+v", upload)
	}
	if _, err := f.files.ReadAll(context.Background(), upload.StorageLocation, upload.FilePath); err != nil {
		t.Fatalf("file not stored: %v", err)
	}
	if len(upload.UnmappedColumns) != 1 || upload.UnmappedColumns[0] != "Notes" {
		t.Fatalf("expected unmapped columns on the upload, got %v", upload.UnmappedColumns)
	}

	mapping := resp.Mapping
	if !mapping.MappingAvailable || len(mapping.Mappings) != 3 || mapping.UploadID != upload.ID {
		t.Fatalf("unexpected mapping response %+v", mapping)
	}
	if len(mapping.ExpectedSchema) != 5 || mapping.ExpectedSchema["invoice"]["invoice_number"] != "String(20)" {
		t.Fatalf("unexpected expected schema %v", mapping.ExpectedSchema)
	}
	if strings.Join(f.proposer.columns, ",") != "Invoice No,Supplier,Qty,Notes" || f.proposer.sample != 1 {
		t.Fatalf("proposer got columns %v and %d sample rows", f.proposer.columns, f.proposer.sample)
	}
	if _, ok := f.cache.proposals[upload.ID]; !ok {
		t.Fatalf("expected proposal to be cached")
	}

	info := f.logs.messages(domain.LogLevelInfo)
	if len(info) < 2 || info[0] != "File accepted" || info[1] != "Mapping proposed" {
		t.Fatalf("unexpected info logs %v", info)
	}
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		data     string
		want     error
	}{
		{name: "unsupported type", filename: "invoice.exe", data: "MZ", want: domain.ErrUnsupportedFileType},
		{name: "empty", filename: "invoice.csv", data: "", want: domain.ErrEmptyFile},
		{name: "too large", filename: "invoice.csv", data: strings.Repeat("a", 1025), want: domain.ErrFileTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.service.Upload(context.Background(), UploadRequest{FileName: tc.filename, Data: strings.NewReader(tc.data)})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.files.files) != 0 || len(f.uploads.uploads) != 0 {
				t.Fatalf("rejected upload must not be stored")
			}
		})
	}
}

func TestUploadMarksFailedWhenExtractionFails(t *testing.T) {
	f := newFixture()
	_, err := f.service.Upload(context.Background(), UploadRequest{FileName: "invoice.pdf", Data: strings.NewReader("not a pdf")})
	if err == nil {
		t.Fatalf("expected extraction error")
	}
	upload := f.uploads.uploads[1]
	if upload.Status != domain.ProcessingStatusFailed {
		t.Fatalf("expected failed upload, got %s", upload.Status)
	}
	if len(f.logs.messages(domain.LogLevelError)) != 1 {
		t.Fatalf("expected an error processing log")
	}
}

func TestProposeMappingUnavailableIsData(t *testing.T) {
	f := newFixture()
	f.proposer.proposal = domain.MappingUnavailable("malformed response")

	upload := f.upload(t)
	resp, err := f.service.ProposeMapping(context.Background(), upload.ID)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if resp.MappingAvailable || resp.Reason != "malformed response" || len(resp.Mappings) != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(f.uploads.uploads[upload.ID].UnmappedColumns) != 0 {
		t.Fatalf("unavailable proposals must not record unmapped columns")
	}
	if len(f.cache.proposals) != 0 {
		t.Fatalf("unavailable proposals must not be cached")
	}
	if warnings := f.logs.messages(domain.LogLevelWarning); len(warnings) == 0 {
		t.Fatalf("expected a warning processing log")
	}
}

func TestProposeMappingServesCachedProposal(t *testing.T) {
	f := newFixture()
	upload := f.upload(t)
	calls := f.proposer.calls

	resp, err := f.service.ProposeMapping(context.Background(), upload.ID)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if f.proposer.calls != calls {
		t.Fatalf("expected cached proposal, proposer called again")
	}
	if !resp.MappingAvailable || len(resp.ExtractedColumns) != 4 {
		t.Fatalf("unexpected cached response %+v", resp)
	}
}

func TestProposeMappingUnknownUpload(t *testing.T) {
	f := newFixture()
	if _, err := f.service.ProposeMapping(context.Background(), 404); !errors.Is(err, domain.ErrUploadNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfirmMappingsRunsBatchWithConfirmedMappings(t *testing.T) {
	f := newFixture()
	upload := f.upload(t)

	stats := domain.NewProcessingStats(2)
	stats.RecordSuccess()
	stats.RecordFailure("Failed to process record INV2: bad quantity")
	f.batch.result = processing.BatchResult{Stats: stats, Status: domain.ProcessingStatusPartialSuccess}

	confirmed := []domain.FieldMapping{
		{SourceField: "Invoice No", TargetTable: "invoice", TargetColumn: "invoice_number"},
		{SourceField: "Notes", TargetTable: "invoiceitem", TargetColumn: "description"},
	}
	report, err := f.service.ConfirmMappings(context.Background(), upload.ID, confirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if f.batch.calls != 1 || len(f.batch.records) != 2 {
		t.Fatalf("expected batch over 2 re-extracted rows, got %d calls and %d rows", f.batch.calls, len(f.batch.records))
	}
	if f.batch.set.Len() != 2 {
		t.Fatalf("expected the confirmed mappings, got %d", f.batch.set.Len())
	}
	if report.Status != "Partial success" {
		t.Fatalf("unexpected status %q", report.Status)
	}
	if report.ProcessingStats.FailedRecords != 1 || len(report.ProcessingStats.Errors) != 1 {
		t.Fatalf("unexpected stats %+v", report.ProcessingStats)
	}
	if len(report.Unmapped) != 1 || report.Unmapped[0] != "Notes" {
		t.Fatalf("expected unmapped fields recorded at proposal time, got %v", report.Unmapped)
	}
	if len(report.ExtractedColumns) != 4 || len(report.Mappings) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(f.cache.deleted) != 1 {
		t.Fatalf("expected cached proposal to be dropped after confirmation")
	}
}

func TestConfirmMappingsConfigurationError(t *testing.T) {
	f := newFixture()
	upload := f.upload(t)

	_, err := f.service.ConfirmMappings(context.Background(), upload.ID, []domain.FieldMapping{
		{SourceField: "Invoice No", TargetTable: "ledger", TargetColumn: "invoice_number"},
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if f.batch.calls != 0 {
		t.Fatalf("batch must not run with an invalid mapping set")
	}
	if f.uploads.uploads[upload.ID].Status != domain.ProcessingStatusFailed {
		t.Fatalf("expected upload forced to failed")
	}
	if len(f.logs.messages(domain.LogLevelError)) != 1 {
		t.Fatalf("expected an error processing log")
	}
}

func TestConfirmMappingsPropagatesBatchFailure(t *testing.T) {
	f := newFixture()
	upload := f.upload(t)
	f.batch.err = errors.New("connection lost")

	_, err := f.service.ConfirmMappings(context.Background(), upload.ID, availableProposal().Mappings)
	if err == nil || !strings.Contains(err.Error(), "connection lost") {
		t.Fatalf("expected batch error, got %v", err)
	}
	if summary := f.uploads.failed[upload.ID]; !strings.Contains(summary, "connection lost") {
		t.Fatalf("expected failure summary, got %q", summary)
	}
}

func TestConfirmMappingsUnknownUpload(t *testing.T) {
	f := newFixture()
	_, err := f.service.ConfirmMappings(context.Background(), 77, availableProposal().Mappings)
	if !errors.Is(err, domain.ErrUploadNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(f.logs.entries) != 0 {
		t.Fatalf("nothing should be logged against a missing upload")
	}
}

func TestOverviewCountsByStatus(t *testing.T) {
	f := newFixture()
	statuses := []domain.ProcessingStatus{
		domain.ProcessingStatusCompleted,
		domain.ProcessingStatusCompleted,
		domain.ProcessingStatusFailed,
		domain.ProcessingStatusPartialSuccess,
		domain.ProcessingStatusPending,
	}
	for i, status := range statuses {
		upload := domain.NewUpload(fmt.Sprintf("f%d.csv", i), "key", 1, "csv", domain.StorageLocationLocal)
		upload.Status = status
		upload.SuccessfulRecords = i
		if _, err := f.uploads.Create(context.Background(), upload); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	overview, err := f.service.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.TotalFilesUploaded != 5 || overview.CompletedProcessing != 2 || overview.FailedProcessing != 1 || overview.PartialFiles != 1 {
		t.Fatalf("unexpected overview %+v", overview)
	}
	if overview.RecentUploads[0].Status != "Pending" || overview.RecentUploads[0].RecordsProcessed != 4 {
		t.Fatalf("expected newest first with display status, got %+v", overview.RecentUploads[0])
	}
}
