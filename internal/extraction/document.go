package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/ledongthuc/pdf"
)

func extractPDFText(payload []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// extractDocxText reads word/document.xml and emits one line per paragraph.
func extractDocxText(payload []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", errors.New("docx has no word/document.xml part")
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open docx body: %w", err)
	}
	defer rc.Close()

	var (
		out       strings.Builder
		paragraph strings.Builder
		inText    bool
	)
	decoder := xml.NewDecoder(rc)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx body: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				paragraph.WriteByte('\t')
			case "br", "cr":
				paragraph.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString(paragraph.String())
				out.WriteByte('\n')
				paragraph.Reset()
			case "tc":
				// Table cells become tab separated so tables read as rows.
				paragraph.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				paragraph.Write(t)
			}
		}
	}
	out.WriteString(paragraph.String())
	return out.String(), nil
}

var (
	labelValueLine = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 _./#()-]{0,39}?)\s*[:=]\s*(.*?)\s*$`)
	columnSplitter = regexp.MustCompile(`\t+| {2,}`)
)

// ColumnsFromText derives columns from document text. Documents written as
// "Label: value" lines become a single record keyed by label; otherwise the
// first line with two or more tab or wide-space separated cells is treated as a
// header and following such lines as rows.
func ColumnsFromText(text string) ([]string, []domain.SourceRecord) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	if columns, record, ok := labelValueRecord(lines); ok {
		return columns, []domain.SourceRecord{record}
	}
	return textTable(lines)
}

func labelValueRecord(lines []string) ([]string, domain.SourceRecord, bool) {
	var (
		labels []string
		values []string
	)
	for _, line := range lines {
		match := labelValueLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		labels = append(labels, match[1])
		values = append(values, match[2])
	}
	if len(labels) < 2 {
		return nil, domain.SourceRecord{}, false
	}

	columns := normalizeHeaders(labels)
	var record domain.SourceRecord
	for i, column := range columns {
		record.Set(column, cellValue(values[i]))
	}
	return columns, record, true
}

func textTable(lines []string) ([]string, []domain.SourceRecord) {
	var (
		headers []string
		rows    [][]string
	)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := columnSplitter.Split(strings.TrimSpace(line), -1)
		if len(cells) < 2 {
			continue
		}
		if headers == nil {
			headers = normalizeHeaders(cells)
			continue
		}
		rows = append(rows, padRow(cells, len(headers)))
	}
	if headers == nil {
		return []string{}, []domain.SourceRecord{}
	}

	table := tableData{headers: headers, rows: rows}
	result := table.result()
	return result.Columns, result.Rows
}
