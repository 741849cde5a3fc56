package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/extract"
	"github.com/spherical/doc-extractor/internal/observability"
)

// statusClientClosedRequest is the nginx convention for a request the client abandoned.
const statusClientClosedRequest = 499

// ExtractionHandler handles extraction requests.
type ExtractionHandler struct {
	ext            Extractor
	maxUploadBytes int64
	logger         *observability.Logger
}

// NewExtractionHandler creates a new extraction handler.
func NewExtractionHandler(ext Extractor, maxUploadBytes int64, logger *observability.Logger) *ExtractionHandler {
	return &ExtractionHandler{
		ext:            ext,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// ExtractRequestDTO represents the API request for extracting a file from the source directory.
type ExtractRequestDTO struct {
	File       string `json:"file"`
	BestEffort bool   `json:"best_effort,omitempty"`
}

// ErrorDTO is the body of every error response.
type ErrorDTO struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Document string `json:"document,omitempty"`
	Page     int    `json:"page,omitempty"`
}

// Extract handles POST /api/v1/extract.
func (h *ExtractionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequestDTO
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationError("invalid request body", err))
		return
	}
	if req.File == "" {
		h.writeError(w, domain.ValidationError("file is required", nil))
		return
	}

	result, err := h.ext.Extract(r.Context(), req.File, runOptions(req.BestEffort)...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Upload handles POST /api/v1/extract/upload with a multipart "file" field.
func (h *ExtractionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSONError(w, http.StatusRequestEntityTooLarge, ErrorDTO{Error: "upload too large", Kind: string(domain.KindValidation)})
			return
		}
		h.writeError(w, domain.ValidationError("invalid multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, domain.ValidationError("file field is required", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, domain.IOError("failed to read upload", err))
		return
	}

	bestEffort, _ := strconv.ParseBool(r.FormValue("best_effort"))

	h.logger.Info().Str("file", header.Filename).Int64("size", header.Size).Bool("best_effort", bestEffort).Msg("Extracting upload")

	result, err := h.ext.ExtractBytes(r.Context(), header.Filename, data, runOptions(bestEffort)...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetResult handles GET /api/v1/results/{id}.
func (h *ExtractionHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.ext.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func runOptions(bestEffort bool) []extract.Option {
	if bestEffort {
		return []extract.Option{extract.WithBestEffort()}
	}
	return nil
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case domain.KindPathTraversal:
		return http.StatusForbidden
	case domain.KindPageLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindRasterization:
		return http.StatusUnprocessableEntity
	case domain.KindEngineUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindPageFailed:
		return http.StatusBadGateway
	case domain.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *ExtractionHandler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	body := ErrorDTO{Error: err.Error(), Kind: string(kind)}
	var de *domain.DomainError
	if errors.As(err, &de) {
		body.Error = de.Message
		body.Document = de.Document
		body.Page = de.Page
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Int("status", status).Msg("Request failed")
		// internal details stay in the log
		if kind == domain.KindInternal || kind == domain.KindStorage || kind == domain.KindIO || kind == domain.KindConfig {
			body.Error = "internal error"
		}
	}
	h.writeJSONError(w, status, body)
}

func (h *ExtractionHandler) writeJSONError(w http.ResponseWriter, status int, body ErrorDTO) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
