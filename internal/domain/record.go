package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourceField is one named value of an extracted record.
type SourceField struct {
	Name  string
	Value any
}

// SourceRecord is an ordered bag of extracted fields. Column order follows the
// source file so logs and error details read like the original row.
type SourceRecord struct {
	fields []SourceField
	index  map[string]int
}

// NewSourceRecord builds a record from ordered fields. A repeated name keeps the
// last value in the first position.
func NewSourceRecord(fields ...SourceField) SourceRecord {
	r := SourceRecord{}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Set adds or replaces a field.
func (r *SourceRecord) Set(name string, value any) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if idx, ok := r.index[name]; ok {
		r.fields[idx].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, SourceField{Name: name, Value: value})
}

// Get returns a field value and whether the field is present. A present field may
// hold nil.
func (r SourceRecord) Get(name string) (any, bool) {
	idx, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[idx].Value, true
}

// Fields returns the ordered fields.
func (r SourceRecord) Fields() []SourceField {
	out := make([]SourceField, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len reports the number of fields.
func (r SourceRecord) Len() int {
	return len(r.fields)
}

// Map flattens the record, losing order. Used for JSON log details.
func (r SourceRecord) Map() map[string]any {
	out := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		out[f.Name] = f.Value
	}
	return out
}

// MarshalJSON writes the record as an object in field order.
func (r SourceRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ColumnValues maps target column names to raw, uncoerced values.
type ColumnValues map[string]any

// Has reports whether column is present.
func (c ColumnValues) Has(column string) bool {
	_, ok := c[column]
	return ok
}

// GroupedPayload splits one record into the five target tables. Every group is
// always non-nil, possibly empty.
type GroupedPayload struct {
	Vendor      ColumnValues
	Customer    ColumnValues
	Invoice     ColumnValues
	InvoiceItem ColumnValues
	Payment     ColumnValues
}

// NewGroupedPayload initializes five empty groups.
func NewGroupedPayload() GroupedPayload {
	return GroupedPayload{
		Vendor:      ColumnValues{},
		Customer:    ColumnValues{},
		Invoice:     ColumnValues{},
		InvoiceItem: ColumnValues{},
		Payment:     ColumnValues{},
	}
}

// Group returns the column values for table.
func (g GroupedPayload) Group(table TargetTable) (ColumnValues, error) {
	switch table {
	case TableVendor:
		return g.Vendor, nil
	case TableCustomer:
		return g.Customer, nil
	case TableInvoice:
		return g.Invoice, nil
	case TableInvoiceItem:
		return g.InvoiceItem, nil
	case TablePayment:
		return g.Payment, nil
	default:
		return nil, fmt.Errorf("%w: unknown target table %q", ErrConfiguration, table)
	}
}
