package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Result is the tabular view of an uploaded file.
type Result struct {
	Columns   []string              `json:"columns"`
	Rows      []domain.SourceRecord `json:"rows"`
	TotalRows int                   `json:"total_rows"`
	// Text holds the plain text of document sources (pdf, docx).
	Text string `json:"-"`
}

// Sample returns up to n rows for prompting. n <= 0 returns every row.
func (r Result) Sample(n int) []domain.SourceRecord {
	if n <= 0 || n >= len(r.Rows) {
		return r.Rows
	}
	return r.Rows[:n]
}

// FileSource reads the stored bytes of an upload.
type FileSource interface {
	ReadAll(ctx context.Context, location domain.StorageLocation, key string) ([]byte, error)
}

// Extractor turns stored uploads into columns and rows. It never mutates the
// stored file, so extracting the same upload twice yields the same result.
type Extractor struct {
	files FileSource
}

// NewExtractor reads files through source.
func NewExtractor(files FileSource) *Extractor {
	return &Extractor{files: files}
}

// Extract loads the upload's file and parses it according to its file type.
func (e *Extractor) Extract(ctx context.Context, upload domain.Upload) (Result, error) {
	data, err := e.files.ReadAll(ctx, upload.StorageLocation, upload.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load %s: %w", upload.OriginalFilename, err)
	}
	result, err := ExtractBytes(upload.FileType, data)
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract %s: %w", upload.OriginalFilename, err)
	}
	return result, nil
}

// ExtractBytes parses payload as fileType (extension without the dot).
func ExtractBytes(fileType string, payload []byte) (Result, error) {
	if len(payload) == 0 {
		return Result{}, domain.ErrEmptyFile
	}

	switch strings.ToLower(strings.TrimPrefix(fileType, ".")) {
	case "csv":
		return tabular(parseDelimited(payload, ','))
	case "tsv":
		return tabular(parseDelimited(payload, '\t'))
	case "xlsx":
		return tabular(parseExcel(payload))
	case "pdf":
		text, err := extractPDFText(payload)
		if err != nil {
			return Result{}, err
		}
		return documentResult(text), nil
	case "docx":
		text, err := extractDocxText(payload)
		if err != nil {
			return Result{}, err
		}
		return documentResult(text), nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileType)
	}
}

func tabular(records [][]string, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	table, err := normalizeTable(records)
	if err != nil {
		return Result{}, err
	}
	return table.result(), nil
}

func documentResult(text string) Result {
	columns, rows := ColumnsFromText(text)
	return Result{
		Columns:   columns,
		Rows:      rows,
		TotalRows: len(rows),
		Text:      text,
	}
}
