package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestProcessingStatusDisplay(t *testing.T) {
	cases := map[ProcessingStatus]string{
		ProcessingStatusPending:        "Pending",
		ProcessingStatusProcessing:     "Processing",
		ProcessingStatusCompleted:      "Completed",
		ProcessingStatusPartialSuccess: "Partial success",
		ProcessingStatusFailed:         "Failed",
	}
	for status, want := range cases {
		if got := status.Display(); got != want {
			t.Fatalf("%s: expected %q, got %q", status, want, got)
		}
	}
}

func TestProcessingStatsSummary(t *testing.T) {
	stats := NewProcessingStats(7)
	if stats.ErrorSummary(ErrorSummaryLimit) != nil {
		t.Fatalf("expected nil summary without errors")
	}
	if stats.FinalStatus() != ProcessingStatusCompleted {
		t.Fatalf("expected completed without failures")
	}

	stats.RecordSuccess()
	for _, msg := range []string{"e1", "e2", "e3", "e4", "e5", "e6"} {
		stats.RecordFailure(msg)
	}
	if stats.SuccessfulRecords+stats.FailedRecords != stats.TotalRecords {
		t.Fatalf("counts do not add up: %+v", stats)
	}
	summary := stats.ErrorSummary(ErrorSummaryLimit)
	if summary == nil || *summary != "e1; e2; e3; e4; e5" {
		t.Fatalf("unexpected summary %v", summary)
	}
	if stats.FinalStatus() != ProcessingStatusPartialSuccess {
		t.Fatalf("expected partial_success, got %s", stats.FinalStatus())
	}
}

func TestParseTargetTable(t *testing.T) {
	for alias, want := range map[string]TargetTable{
		"Invoices":      TableInvoice,
		" vendor ":      TableVendor,
		"invoice_items": TableInvoiceItem,
		"payments":      TablePayment,
	} {
		got, err := ParseTargetTable(alias)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s, %v", alias, want, got, err)
		}
	}
	if _, err := ParseTargetTable("ledger"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExpectedSchemaCoversEveryTable(t *testing.T) {
	schema := ExpectedSchema()
	if len(schema) != len(TargetTables) {
		t.Fatalf("expected %d tables, got %d", len(TargetTables), len(schema))
	}
	if schema["invoiceitem"]["quantity"] != "Integer" || schema["payment"]["amount_paid"] != "DECIMAL" {
		t.Fatalf("unexpected column types %v", schema)
	}
}

func TestSourceRecordKeepsFieldOrder(t *testing.T) {
	rec := NewSourceRecord(
		SourceField{Name: "z", Value: "last"},
		SourceField{Name: "a", Value: nil},
	)
	rec.Set("m", 3)
	rec.Set("z", "replaced")

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"z":"replaced","a":null,"m":3}` {
		t.Fatalf("unexpected json %s", data)
	}
	if v, ok := rec.Get("a"); !ok || v != nil {
		t.Fatalf("expected present null field")
	}
	if _, ok := rec.Get("missing"); ok {
		t.Fatalf("expected missing field")
	}
}

func TestMappingSetLookup(t *testing.T) {
	set, err := NewMappingSet([]FieldMapping{
		{SourceField: "Invoice No", TargetTable: "invoices", TargetColumn: "invoice_number"},
	})
	if err != nil {
		t.Fatalf("mapping set: %v", err)
	}
	if source, ok := set.SourceFieldFor(TableInvoice, "INVOICE_NUMBER"); !ok || source != "Invoice No" {
		t.Fatalf("expected lookup through alias, got %q", source)
	}
	if _, err := NewMappingSet([]FieldMapping{{SourceField: "x", TargetTable: "nope", TargetColumn: "y"}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
