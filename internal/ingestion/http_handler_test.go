package ingestion

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/invoiceflow/internal/logging"
)

const testPrefix = "/file-parser/api"

func newTestServer(f *fixture) *httptest.Server {
	return httptest.NewServer(NewHTTPHandler(f.service, testPrefix, logging.Discard()))
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHandlerUploadAndConfirm(t *testing.T) {
	f := newFixture()
	server := newTestServer(f)
	defer server.Close()

	body, contentType := multipartBody(t, "invoices.csv", invoiceCSV)
	resp, err := http.Post(server.URL+testPrefix+"/upload/", contentType, body)
	if err != nil {
		t.Fatalf("post upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var uploaded UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if !uploaded.Mapping.MappingAvailable || uploaded.Upload.ID == 0 {
		t.Fatalf("unexpected upload response %+v", uploaded)
	}

	confirm := `{"mappings":[{"source_field":"Invoice No","target_table":"invoice","target_column":"invoice_number"}]}`
	resp2, err := http.Post(server.URL+testPrefix+"/upload/1/confirm", "application/json", strings.NewReader(confirm))
	if err != nil {
		t.Fatalf("post confirm: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	var report map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	for _, key := range []string{"upload_id", "extracted_columns", "mappings", "unmapped", "processing_stats", "status"} {
		if _, ok := report[key]; !ok {
			t.Fatalf("report missing %q: %v", key, report)
		}
	}
}

func TestHandlerErrorStatuses(t *testing.T) {
	f := newFixture()
	f.upload(t)
	server := newTestServer(f)
	defer server.Close()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown upload", method: http.MethodGet, path: "/upload/99/mapping", want: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/upload/abc/logs", want: http.StatusBadRequest},
		{name: "empty mappings", method: http.MethodPost, path: "/upload/1/confirm", body: `{"mappings":[]}`, want: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/upload/1/confirm", body: `{"mappings":`, want: http.StatusBadRequest},
		{name: "unknown table", method: http.MethodPost, path: "/upload/1/confirm", body: `{"mappings":[{"source_field":"Qty","target_table":"ledger","target_column":"qty"}]}`, want: http.StatusUnprocessableEntity},
		{name: "logs", method: http.MethodGet, path: "/upload/1/logs", want: http.StatusOK},
		{name: "overview", method: http.MethodGet, path: "/dashboard/overview", want: http.StatusOK},
		{name: "summary", method: http.MethodGet, path: "/dashboard/processing-summary/1", want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, server.URL+testPrefix+tc.path, strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestHandlerRejectsUnsupportedUpload(t *testing.T) {
	f := newFixture()
	server := newTestServer(f)
	defer server.Close()

	body, contentType := multipartBody(t, "malware.exe", "MZ")
	resp, err := http.Post(server.URL+testPrefix+"/upload/", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var detail errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil || detail.Detail == "" {
		t.Fatalf("expected error detail, got %+v, %v", detail, err)
	}
}
