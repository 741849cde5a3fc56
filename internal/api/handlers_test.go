package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	err      error
	lastName string
	lastData []byte
	lastOpts int
	results  map[string]*domain.ExtractionResult
}

func (f *fakeExtractor) result(name string) *domain.ExtractionResult {
	return &domain.ExtractionResult{
		ID:               "run-1",
		Text:             "--- Page 1 ---\nhello",
		PageCount:        1,
		CharacterCount:   20,
		SourceFile:       name,
		ExtractionMethod: domain.MethodNative,
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, name string, opts ...extract.Option) (*domain.ExtractionResult, error) {
	f.lastName, f.lastOpts = name, len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(name), nil
}

func (f *fakeExtractor) ExtractBytes(ctx context.Context, name string, data []byte, opts ...extract.Option) (*domain.ExtractionResult, error) {
	f.lastName, f.lastData, f.lastOpts = name, data, len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(name), nil
}

func (f *fakeExtractor) Result(ctx context.Context, id string) (*domain.ExtractionResult, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, domain.NotFoundError("result "+id+" not found", nil)
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDTO {
	t.Helper()
	var body ErrorDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestExtract_Success(t *testing.T) {
	ext := &fakeExtractor{}
	h := NewRouter(ext, Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(`{"file":"rc.pdf","best_effort":true}`))
	rec := serve(t, h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "rc.pdf", ext.lastName)
	assert.Equal(t, 1, ext.lastOpts)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "native", body["extraction_method"])
	assert.Equal(t, float64(1), body["page_count"])
	assert.Equal(t, float64(20), body["character_count"])
	assert.Equal(t, "rc.pdf", body["source_file"])
	assert.NotContains(t, body, "failed_pages")
}

func TestExtract_BadRequests(t *testing.T) {
	h := NewRouter(&fakeExtractor{}, Config{}, nil)

	for _, body := range []string{`{`, `{}`, `{"file":""}`} {
		rec := serve(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "validation", decodeError(t, rec).Kind)
	}
}

func TestExtract_ErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.NotFoundError("missing.pdf not found", nil), http.StatusNotFound},
		{domain.UnsupportedTypeError("report.exe", nil), http.StatusUnsupportedMediaType},
		{domain.PathTraversalError("../../etc/passwd", nil), http.StatusForbidden},
		{domain.PageLimitError("too many pages", nil), http.StatusRequestEntityTooLarge},
		{domain.RasterizationError("corrupt", nil), http.StatusUnprocessableEntity},
		{domain.EngineUnavailableError("no tesseract", nil), http.StatusServiceUnavailable},
		{domain.PageFailedError(3, "OCR failed", nil), http.StatusBadGateway},
		{domain.CanceledError(context.Canceled), statusClientClosedRequest},
		{domain.StorageError("db down", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(domain.KindOf(tt.err)), func(t *testing.T) {
			h := NewRouter(&fakeExtractor{err: tt.err}, Config{}, nil)
			rec := serve(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(`{"file":"x.pdf"}`)))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(domain.KindOf(tt.err)), decodeError(t, rec).Kind)
		})
	}
}

func TestExtract_ErrorBodyCarriesPage(t *testing.T) {
	err := domain.PageFailedError(3, "OCR failed", nil).WithDocument("scan.pdf")
	h := NewRouter(&fakeExtractor{err: err}, Config{}, nil)

	rec := serve(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(`{"file":"scan.pdf"}`)))
	body := decodeError(t, rec)
	assert.Equal(t, 3, body.Page)
	assert.Equal(t, "scan.pdf", body.Document)
	assert.Equal(t, "OCR failed", body.Error)
}

func TestExtract_InternalDetailsHidden(t *testing.T) {
	h := NewRouter(&fakeExtractor{err: domain.StorageError("password=secret", nil)}, Config{}, nil)

	rec := serve(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(`{"file":"a.pdf"}`)))
	assert.Equal(t, "internal error", decodeError(t, rec).Error)
}

func multipartBody(t *testing.T, field, filename string, data []byte, bestEffort string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	if bestEffort != "" {
		require.NoError(t, mw.WriteField("best_effort", bestEffort))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	ext := &fakeExtractor{}
	h := NewRouter(ext, Config{}, nil)

	body, contentType := multipartBody(t, "file", "scan.png", []byte("image bytes"), "true")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scan.png", ext.lastName)
	assert.Equal(t, []byte("image bytes"), ext.lastData)
	assert.Equal(t, 1, ext.lastOpts)
}

func TestUpload_MissingFile(t *testing.T) {
	h := NewRouter(&fakeExtractor{}, Config{}, nil)

	body, contentType := multipartBody(t, "", "", nil, "false")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	h := NewRouter(&fakeExtractor{}, Config{MaxUploadBytes: 1024}, nil)

	body, contentType := multipartBody(t, "file", "big.pdf", bytes.Repeat([]byte("x"), 4096), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(t, h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetResult(t *testing.T) {
	ext := &fakeExtractor{results: map[string]*domain.ExtractionResult{
		"abc": {ID: "abc", Text: "--- Page 1 ---\nx", PageCount: 1, CharacterCount: 16, ExtractionMethod: domain.MethodOCR},
	}}
	h := NewRouter(ext, Config{}, nil)

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/results/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"abc"`)

	rec = serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/results/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("doc_extractor_pages_total 0\n"))
	})
	h := NewRouter(&fakeExtractor{}, Config{Metrics: metrics, OCRAvailable: true}, nil)

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"doc-extractor","ocr":true}`, rec.Body.String())

	rec = serve(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doc_extractor_pages_total")

	rec = serve(t, NewRouter(&fakeExtractor{}, Config{}, nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
