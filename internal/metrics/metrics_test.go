package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.DocumentProcessed(domain.MethodOCR, "success", 2*time.Second)
	m.DocumentProcessed(domain.MethodOCR, "success", time.Second)
	m.DocumentProcessed(domain.MethodNative, "partial", time.Second)
	m.PageProcessed(domain.MethodOCR, 100*time.Millisecond)
	m.PageFailed(domain.KindPageFailed)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("ocr", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("native", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pages.WithLabelValues("ocr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pageFailures.WithLabelValues("page_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.docDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PageProcessed(domain.MethodNative, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `doc_extractor_pages_total{method="native"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
