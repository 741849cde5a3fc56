// Package metrics exposes pipeline counters and histograms for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spherical/doc-extractor/internal/domain"
)

const namespace = "doc_extractor"

// Metrics records document and page level measurements.
type Metrics struct {
	registry     *prometheus.Registry
	documents    *prometheus.CounterVec
	docDuration  *prometheus.HistogramVec
	pages        *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec
	pageFailures *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed by extraction method and status.",
		}, []string{"method", "status"}),
		docDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Time to extract a whole document.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"method"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages extracted by method.",
		}, []string{"method"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_duration_seconds",
			Help:      "Time to extract a single page.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 9),
		}, []string{"method"}),
		pageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_failures_total",
			Help:      "Pages that failed, by error kind.",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.documents, m.docDuration, m.pages, m.pageDuration, m.pageFailures, m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// DocumentProcessed counts a finished document. status is success, partial or an error kind.
func (m *Metrics) DocumentProcessed(method domain.ExtractionMethod, status string, d time.Duration) {
	m.documents.WithLabelValues(string(method), status).Inc()
	m.docDuration.WithLabelValues(string(method)).Observe(d.Seconds())
}

// PageProcessed counts a successfully extracted page.
func (m *Metrics) PageProcessed(method domain.ExtractionMethod, d time.Duration) {
	m.pages.WithLabelValues(string(method)).Inc()
	m.pageDuration.WithLabelValues(string(method)).Observe(d.Seconds())
}

// PageFailed counts a failed page.
func (m *Metrics) PageFailed(kind domain.ErrorKind) {
	m.pageFailures.WithLabelValues(string(kind)).Inc()
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
