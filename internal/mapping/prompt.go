package mapping

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"
)

// BuildPrompt renders the mapping instructions for the source columns, a sample
// of rows and the fixed target schema.
func BuildPrompt(columns []string, sample []domain.SourceRecord) (string, error) {
	rows, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("failed to encode sample rows: %w", err)
	}
	cols, err := json.Marshal(columns)
	if err != nil {
		return "", fmt.Errorf("failed to encode columns: %w", err)
	}

	var b strings.Builder
	b.WriteString("You map columns extracted from an uploaded invoice document onto a fixed database schema.\n\n")
	fmt.Fprintf(&b, "Sample rows (JSON): %s\n\n", rows)
	fmt.Fprintf(&b, "Extracted columns: %s\n\n", cols)
	b.WriteString("Available database schema (table: column type, ...):\n")
	for _, table := range domain.TargetTables {
		schema, _ := domain.SchemaFor(table)
		parts := make([]string, 0, len(schema.Columns))
		for _, col := range schema.Columns {
			parts = append(parts, fmt.Sprintf("%s %s", col.Name, col.TypeLabel()))
		}
		fmt.Fprintf(&b, "- %s: %s\n", table, strings.Join(parts, ", "))
	}
	b.WriteString(`
Respond ONLY with a JSON object of this shape, no markdown and no explanations:
{
  "mappings": [
    {"source_field": "<exact extracted column name>", "target_table": "<table>", "target_column": "<column>", "confidence": 0.0}
  ],
  "unmapped_fields": ["<extracted column with no suitable target>"]
}

Guidelines:
- source_field must be copied exactly from the extracted columns.
- target_table and target_column must come from the schema above.
- confidence is a number between 0.0 and 1.0.
- Consider common invoice terminology variations (e.g. "Bill To" is a customer, "Supplier" is a vendor).
`)
	return b.String(), nil
}
