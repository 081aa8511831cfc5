package extraction

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

type tableData struct {
	headers []string
	rows    [][]string
}

func (t tableData) result() Result {
	rows := make([]domain.SourceRecord, 0, len(t.rows))
	for _, row := range t.rows {
		var record domain.SourceRecord
		for idx, header := range t.headers {
			record.Set(header, cellValue(row[idx]))
		}
		rows = append(rows, record)
	}
	return Result{
		Columns:   t.headers,
		Rows:      rows,
		TotalRows: len(rows),
	}
}

// cellValue maps blank cells to nil so they land as NULL columns.
func cellValue(raw string) any {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	return value
}

func parseDelimited(payload []byte, delimiter rune) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	// Trimming would swallow consecutive tab delimiters.
	csvReader.TrimLeadingSpace = delimiter != '\t'
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited file: %w", err)
	}
	return records, nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

// normalizeTable takes the first non-empty row as header and pads or truncates
// every data row to the header width.
func normalizeTable(records [][]string) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := normalizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{
		headers: headers,
		rows:    dataRows,
	}, nil
}

// normalizeHeaders trims labels, names blank columns and suffixes duplicates.
// Labels otherwise stay as the user wrote them because mappings refer to them.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)
	emitted := make(map[string]bool, len(raw))

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		for emitted[name] {
			count++
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1
		emitted[name] = true

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
