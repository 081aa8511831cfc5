package domain

import (
	"fmt"
	"strings"
)

// TargetTable names one of the five fixed tables records are written into.
type TargetTable string

const (
	TableInvoice     TargetTable = "invoice"
	TableVendor      TargetTable = "vendor"
	TableCustomer    TargetTable = "customer"
	TablePayment     TargetTable = "payment"
	TableInvoiceItem TargetTable = "invoiceitem"
)

// TargetTables lists every table in foreign key write order.
var TargetTables = []TargetTable{
	TableVendor,
	TableCustomer,
	TableInvoice,
	TableInvoiceItem,
	TablePayment,
}

var tableAliases = map[string]TargetTable{
	"invoice":       TableInvoice,
	"invoices":      TableInvoice,
	"vendor":        TableVendor,
	"vendors":       TableVendor,
	"customer":      TableCustomer,
	"customers":     TableCustomer,
	"payment":       TablePayment,
	"payments":      TablePayment,
	"invoiceitem":   TableInvoiceItem,
	"invoiceitems":  TableInvoiceItem,
	"invoice_item":  TableInvoiceItem,
	"invoice_items": TableInvoiceItem,
}

// ParseTargetTable resolves a table name, accepting plural and snake_case aliases.
func ParseTargetTable(name string) (TargetTable, error) {
	table, ok := tableAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: unknown target table %q", ErrConfiguration, name)
	}
	return table, nil
}

// ColumnType is the storage type of a target column.
type ColumnType string

const (
	ColumnTypeString  ColumnType = "String"
	ColumnTypeText    ColumnType = "Text"
	ColumnTypeDate    ColumnType = "Date"
	ColumnTypeDecimal ColumnType = "DECIMAL"
	ColumnTypeInteger ColumnType = "Integer"
)

// Column describes one column of a target table.
type Column struct {
	Name      string     `json:"name"`
	Type      ColumnType `json:"type"`
	MaxLength int        `json:"max_length,omitempty"`
}

// TypeLabel renders the column type the way it is shown to the model, e.g. String(20).
func (c Column) TypeLabel() string {
	if c.MaxLength > 0 {
		return fmt.Sprintf("%s(%d)", c.Type, c.MaxLength)
	}
	return string(c.Type)
}

// TableSchema is the ordered column list of one target table.
type TableSchema struct {
	Table   TargetTable `json:"table"`
	Columns []Column    `json:"columns"`
}

// Column looks up a column by name.
func (t TableSchema) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

var schemaRegistry = map[TargetTable]TableSchema{
	TableInvoice: {
		Table: TableInvoice,
		Columns: []Column{
			{Name: "invoice_number", Type: ColumnTypeString, MaxLength: 20},
			{Name: "issue_date", Type: ColumnTypeDate},
			{Name: "due_date", Type: ColumnTypeDate},
			{Name: "total_amount", Type: ColumnTypeDecimal},
		},
	},
	TableVendor: {
		Table: TableVendor,
		Columns: []Column{
			{Name: "vendor_name", Type: ColumnTypeString},
			{Name: "email", Type: ColumnTypeString},
			{Name: "phone", Type: ColumnTypeString},
			{Name: "address", Type: ColumnTypeText},
		},
	},
	TableInvoiceItem: {
		Table: TableInvoiceItem,
		Columns: []Column{
			{Name: "description", Type: ColumnTypeText},
			{Name: "quantity", Type: ColumnTypeInteger},
			{Name: "unit_price", Type: ColumnTypeDecimal},
			{Name: "total_price", Type: ColumnTypeDecimal},
		},
	},
	TableCustomer: {
		Table: TableCustomer,
		Columns: []Column{
			{Name: "customer_name", Type: ColumnTypeString},
			{Name: "customer_email", Type: ColumnTypeString},
			{Name: "customer_phone", Type: ColumnTypeString},
			{Name: "customer_address", Type: ColumnTypeText},
		},
	},
	TablePayment: {
		Table: TablePayment,
		Columns: []Column{
			{Name: "payment_date", Type: ColumnTypeDate},
			{Name: "amount_paid", Type: ColumnTypeDecimal},
			{Name: "payment_method", Type: ColumnTypeString},
		},
	},
}

// SchemaFor returns the registered schema of a table.
func SchemaFor(table TargetTable) (TableSchema, bool) {
	schema, ok := schemaRegistry[table]
	return schema, ok
}

// ExpectedSchema renders the registry as table -> column -> type label, the shape
// returned alongside mapping proposals.
func ExpectedSchema() map[string]map[string]string {
	out := make(map[string]map[string]string, len(schemaRegistry))
	for table, schema := range schemaRegistry {
		cols := make(map[string]string, len(schema.Columns))
		for _, col := range schema.Columns {
			cols[col.Name] = col.TypeLabel()
		}
		out[string(table)] = cols
	}
	return out
}
