package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/extraction"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is the slack allowed on top of the file size limit for
// form boundaries and headers.
const multipartOverhead = 1 << 20

// Handler exposes the upload flow over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   logrus.FieldLogger
}

type confirmRequest struct {
	Mappings []domain.FieldMapping `json:"mappings" validate:"required,min=1,dive"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewHTTPHandler registers the upload and dashboard routes under prefix.
func NewHTTPHandler(service *Service, prefix string, logger logrus.FieldLogger) http.Handler {
	h := &Handler{service: service, validate: validator.New(), logger: logger}
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix+"/upload/{$}", h.upload)
	mux.HandleFunc("POST "+prefix+"/upload", h.upload)
	mux.HandleFunc("GET "+prefix+"/upload/{$}", h.listUploads)
	mux.HandleFunc("GET "+prefix+"/upload/{id}/mapping", h.mapping)
	mux.HandleFunc("POST "+prefix+"/upload/{id}/confirm", h.confirm)
	mux.HandleFunc("GET "+prefix+"/upload/{id}/logs", h.logs)
	mux.HandleFunc("GET "+prefix+"/dashboard/overview", h.overview)
	mux.HandleFunc("GET "+prefix+"/dashboard/processing-summary/{id}", h.processingSummary)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if limit := h.service.opts.MaxFileSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, domain.ErrFileTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid form data: %v", err)})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "No file provided"})
		return
	}
	defer file.Close()

	resp, err := h.service.Upload(r.Context(), UploadRequest{FileName: header.Filename, Data: file})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listUploads(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	uploads, err := h.service.Uploads(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}

func (h *Handler) mapping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uploadID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.ProposeMapping(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uploadID(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid mappings: %v", err)})
		return
	}

	report, err := h.service.ConfirmMappings(r.Context(), id, req.Mappings)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uploadID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Logs(r.Context(), id, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) processingSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uploadID(w, r)
	if !ok {
		return
	}
	records, err := h.service.ProcessingSummary(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) uploadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid upload id %q", r.PathValue("id"))})
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto status codes. Only configuration and
// infrastructure failures surface as 422/500; per-record failures are data.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
		detail = "Internal server error"
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnsupportedFileType),
		errors.Is(err, domain.ErrFileTooLarge),
		errors.Is(err, domain.ErrEmptyFile),
		errors.Is(err, extraction.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
