// Package extractor is the library entry point. It wires the pipeline from a
// config and exposes extraction by name, by buffer and as an event stream.
package extractor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spherical/doc-extractor/internal/cache"
	"github.com/spherical/doc-extractor/internal/classify"
	"github.com/spherical/doc-extractor/internal/config"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/extract"
	"github.com/spherical/doc-extractor/internal/metrics"
	"github.com/spherical/doc-extractor/internal/normalize"
	"github.com/spherical/doc-extractor/internal/observability"
	"github.com/spherical/doc-extractor/internal/ocr"
	"github.com/spherical/doc-extractor/internal/pdf"
	"github.com/spherical/doc-extractor/internal/source"
	"github.com/spherical/doc-extractor/internal/storage"
)

// Re-export types for the public API
type (
	Result      = domain.ExtractionResult
	PageFailure = domain.PageFailure
	StreamEvent = domain.StreamEvent
	EventType   = domain.EventType
	ErrorKind   = domain.ErrorKind
	Option      = extract.Option
	Config      = config.Config
)

// Event type constants
const (
	EventStart          = domain.EventStart
	EventClassified     = domain.EventClassified
	EventBatchStart     = domain.EventBatchStart
	EventPageProcessing = domain.EventPageProcessing
	EventPageComplete   = domain.EventPageComplete
	EventPageFailed     = domain.EventPageFailed
	EventError          = domain.EventError
	EventComplete       = domain.EventComplete
)

// Per-call options
var (
	WithBestEffort = extract.WithBestEffort
	WithStrict     = extract.WithStrict
	WithoutCache   = extract.WithoutCache
	WithEvents     = extract.WithEvents
)

// KindOf returns the error kind of err.
func KindOf(err error) ErrorKind {
	return domain.KindOf(err)
}

// Client is the main entry point for the document extractor library
type Client struct {
	service *extract.Service
	engine  domain.OCREngine
	cache   *cache.ResultCache
	db      *sql.DB
	store   *storage.ResultRepository
	metrics *metrics.Metrics
	logger  *observability.Logger
}

// NewClient loads .env and the config file named by CONFIG_PATH, if any, and
// builds a client from it.
func NewClient(ctx context.Context) (*Client, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	return New(ctx, cfg, logger)
}

// New wires every component described by cfg. A missing OCR engine is not
// fatal: native PDFs still extract and scanned ones fail with engine_unavailable.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Client, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	c := &Client{logger: logger, metrics: metrics.New()}

	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	resolver, err := source.NewResolver(cfg.Source.Dir, logger)
	if err != nil {
		return nil, err
	}

	var reader domain.NativeTextReader = pdf.NewFitzReader()
	if cfg.Extraction.NativeReader == "pure" {
		reader = pdf.NewPureReader()
	}

	engine, err := ocr.NewTesseract(ocr.Config{
		Language:    cfg.OCR.Language,
		PageSegMode: ocr.PageSegMode(cfg.OCR.PageSegMode),
		Timeout:     cfg.OCR.Timeout,
		DPI:         cfg.Extraction.DPI,
		Variables:   cfg.OCR.Variables,
	}, logger)
	switch {
	case err == nil:
		c.engine = engine
	case domain.KindOf(err) == domain.KindEngineUnavailable:
		logger.Warn().Err(err).Msg("OCR engine unavailable, only native PDFs can be extracted")
	default:
		return nil, err
	}

	rules := normalize.Rules{
		UnicodeNFKC:         cfg.Normalize.UnicodeNFKC,
		NoiseAlphabet:       cfg.Normalize.NoiseAlphabet,
		MaxNoiseTokenLength: cfg.Normalize.MaxNoiseTokenLength,
		FragmentLength:      cfg.Normalize.FragmentLength,
		FixConfusions:       cfg.Normalize.FixConfusions,
		DropRepeatedLines:   cfg.Normalize.DropRepeatedLines,
	}

	c.cache, err = cache.New(ctx, cache.Options{
		Driver:     cfg.Cache.Driver,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		Redis: cache.RedisConfig{
			URL:      cfg.Cache.Redis.URL,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
		},
		BoltPath: cfg.Cache.Bolt.Path,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver != "" && cfg.Database.Driver != "none" {
		opts := storage.Options{Driver: cfg.Database.Driver, DSN: cfg.DatabaseDSN()}
		if cfg.Database.Driver == "sqlite" {
			opts.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
		} else {
			opts.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
			opts.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
			opts.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
			opts.Retry = storage.DefaultRetryConfig()
		}
		c.db, err = storage.Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		c.store = storage.NewResultRepository(c.db)
	}

	deps := extract.Dependencies{
		Resolver:   resolver,
		Classifier: classify.NewClassifier(reader, cfg.Extraction.NativeTextThreshold, logger),
		Rasterizer: pdf.NewFitzReader(),
		Images:     pdf.NewImageLoader(),
		Normalizer: normalize.New(rules),
		Metrics:    c.metrics,
		Logger:     logger,
	}
	// typed nils must not reach the interfaces
	if c.engine != nil {
		deps.Engine = c.engine
	}
	if c.cache != nil {
		deps.Cache = c.cache
	}
	if c.store != nil {
		deps.Store = c.store
	}

	c.service, err = extract.NewService(deps, extract.Config{
		MaxPages:   cfg.Extraction.MaxPages,
		BatchSize:  cfg.Extraction.BatchSize,
		DPI:        cfg.Extraction.DPI,
		Workers:    cfg.Extraction.Workers,
		BestEffort: cfg.Extraction.BestEffort,
		Preprocess: cfg.Preprocess,
		Variant:    fmt.Sprintf("ocr=%s/%d;normalize=%+v;reader=%s", cfg.OCR.Language, cfg.OCR.PageSegMode, rules, cfg.Extraction.NativeReader),
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("source_dir", resolver.Root()).
		Bool("ocr", c.engine != nil).
		Str("cache", cfg.Cache.Driver).
		Str("database", cfg.Database.Driver).
		Msg("Extractor ready")

	ok = true
	return c, nil
}

// Extract resolves name inside the source directory and extracts its text.
func (c *Client) Extract(ctx context.Context, name string, opts ...Option) (*Result, error) {
	return c.service.ExtractFile(ctx, name, opts...)
}

// ExtractBytes extracts text from an in-memory document. name supplies the
// extension and the reported source file.
func (c *Client) ExtractBytes(ctx context.Context, name string, data []byte, opts ...Option) (*Result, error) {
	doc, err := source.FromBytes(name, data)
	if err != nil {
		return nil, err
	}
	return c.service.Extract(ctx, doc, opts...)
}

// Process extracts name in the background and streams progress events.
// The channel is closed after the complete or error event.
func (c *Client) Process(ctx context.Context, name string, opts ...Option) <-chan StreamEvent {
	eventCh := make(chan StreamEvent, 100)

	go func() {
		defer close(eventCh)
		_, _ = c.service.ExtractFile(ctx, name, append(opts, extract.WithEvents(eventCh))...)
	}()

	return eventCh
}

// Result loads a stored result by ID.
func (c *Client) Result(ctx context.Context, id string) (*Result, error) {
	if c.store == nil {
		return nil, domain.NotFoundError("no result store configured", nil)
	}
	return c.store.Get(ctx, id)
}

// HasStore reports whether results are persisted.
func (c *Client) HasStore() bool {
	return c.store != nil
}

// OCRAvailable reports whether scanned documents can be processed.
func (c *Client) OCRAvailable() bool {
	return c.engine != nil
}

// Metrics returns the client's metric collectors.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// Close cleans up resources
func (c *Client) Close() error {
	var errs []error
	if c.engine != nil {
		errs = append(errs, c.engine.Close())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
