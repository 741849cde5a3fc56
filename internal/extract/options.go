package extract

import (
	"context"
	"time"

	"github.com/spherical/doc-extractor/internal/domain"
)

// Config holds the page aggregation settings.
type Config struct {
	MaxPages   int
	BatchSize  int
	DPI        float64
	Workers    int
	BestEffort bool
	Preprocess domain.PreprocessingConfig

	// Variant describes settings outside this package that change the output,
	// such as OCR language or normalizer rules. It only feeds the cache key.
	Variant string
}

// DefaultConfig returns strict mode, 100 pages max, batches of 10 at 300 DPI.
func DefaultConfig() Config {
	return Config{
		MaxPages:   100,
		BatchSize:  10,
		DPI:        300,
		Workers:    1,
		Preprocess: domain.DefaultPreprocessingConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.DPI <= 0 {
		c.DPI = d.DPI
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Preprocess.Method == "" {
		c.Preprocess = d.Preprocess
	}
	c.Preprocess = c.Preprocess.WithDefaults()
	return c
}

// Option adjusts a single extraction run.
type Option func(*runOptions)

type runOptions struct {
	bestEffort bool
	skipCache  bool
	events     chan<- domain.StreamEvent
}

// WithBestEffort records failed pages instead of aborting the document.
func WithBestEffort() Option {
	return func(o *runOptions) { o.bestEffort = true }
}

// WithStrict aborts the document on the first page failure, overriding config.
func WithStrict() Option {
	return func(o *runOptions) { o.bestEffort = false }
}

// WithEvents streams progress events to ch. Events are dropped when ch is full.
func WithEvents(ch chan<- domain.StreamEvent) Option {
	return func(o *runOptions) { o.events = ch }
}

// WithoutCache bypasses the result cache for lookup and store.
func WithoutCache() Option {
	return func(o *runOptions) { o.skipCache = true }
}

// ResultCache stores finished results by content key. Get returns an error on miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.ExtractionResult, error)
	Put(ctx context.Context, key string, result *domain.ExtractionResult) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	DocumentProcessed(method domain.ExtractionMethod, status string, d time.Duration)
	PageProcessed(method domain.ExtractionMethod, d time.Duration)
	PageFailed(kind domain.ErrorKind)
	CacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) DocumentProcessed(domain.ExtractionMethod, string, time.Duration) {}
func (nopRecorder) PageProcessed(domain.ExtractionMethod, time.Duration)             {}
func (nopRecorder) PageFailed(domain.ErrorKind)                                      {}
func (nopRecorder) CacheLookup(bool)                                                 {}
