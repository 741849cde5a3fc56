// Package extract runs the document pipeline: classify, then either read the
// native text layer or rasterize, preprocess and OCR page batches, normalize
// every page and assemble the result.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/doc-extractor/internal/classify"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/normalize"
	"github.com/spherical/doc-extractor/internal/observability"
	"github.com/spherical/doc-extractor/internal/preprocess"
)

// Resolver maps a caller supplied name to a document inside the source root.
type Resolver interface {
	Resolve(name string) (domain.SourceDocument, error)
}

// Dependencies are the collaborators of a Service. Engine, Cache, Store and
// Metrics are optional; without an engine only native PDFs can be extracted.
type Dependencies struct {
	Resolver   Resolver
	Classifier *classify.Classifier
	Rasterizer domain.Rasterizer
	Images     domain.ImageLoader
	Engine     domain.OCREngine
	Normalizer domain.Normalizer
	Cache      ResultCache
	Store      domain.ResultStore
	Metrics    Recorder
	Logger     *observability.Logger
}

// Service orchestrates the extraction process
type Service struct {
	resolver   Resolver
	classifier *classify.Classifier
	rasterizer domain.Rasterizer
	images     domain.ImageLoader
	engine     domain.OCREngine
	normalizer domain.Normalizer
	cache      ResultCache
	store      domain.ResultStore
	metrics    Recorder
	cfg        Config
	logger     *observability.Logger
}

// NewService creates a new extraction service
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if deps.Classifier == nil {
		return nil, domain.ConfigError("extract: classifier is required", nil)
	}
	if deps.Rasterizer == nil {
		return nil, domain.ConfigError("extract: rasterizer is required", nil)
	}
	if deps.Images == nil {
		return nil, domain.ConfigError("extract: image loader is required", nil)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Preprocess.Validate(); err != nil {
		return nil, domain.ConfigError("extract: invalid preprocessing config", err)
	}

	s := &Service{
		resolver:   deps.Resolver,
		classifier: deps.Classifier,
		rasterizer: deps.Rasterizer,
		images:     deps.Images,
		engine:     deps.Engine,
		normalizer: deps.Normalizer,
		cache:      deps.Cache,
		store:      deps.Store,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     deps.Logger,
	}
	if s.normalizer == nil {
		s.normalizer = normalize.Default()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = observability.Nop()
	}
	s.logger = s.logger.WithComponent("extract")
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// ExtractFile resolves name inside the source directory and extracts it.
func (s *Service) ExtractFile(ctx context.Context, name string, opts ...Option) (*domain.ExtractionResult, error) {
	if s.resolver == nil {
		return nil, domain.ConfigError("extract: no source directory configured", nil)
	}
	doc, err := s.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.Extract(ctx, doc, opts...)
}

// run carries the per-call state through the pipeline.
type run struct {
	id     string
	doc    domain.SourceDocument
	opts   runOptions
	logger *observability.Logger
}

// Extract handles the complete extraction workflow for one document.
func (s *Service) Extract(ctx context.Context, doc domain.SourceDocument, opts ...Option) (*domain.ExtractionResult, error) {
	startTime := time.Now()

	o := runOptions{bestEffort: s.cfg.BestEffort}
	for _, opt := range opts {
		opt(&o)
	}

	r := &run{id: uuid.NewString(), doc: doc, opts: o}
	ctx = observability.ContextWithRunID(ctx, r.id)
	r.logger = s.logger.WithRun(r.id).WithDocument(doc.Name)

	s.emitEvent(r, domain.StreamEvent{
		Type:    domain.EventStart,
		Payload: fmt.Sprintf("Starting extraction of %s", doc.Name),
	})
	r.logger.Info().Str("type", string(doc.Type)).Int64("size", doc.Size).Bool("best_effort", o.bestEffort).Msg("Starting extraction")

	var cacheKey string
	if s.cache != nil && !o.skipCache {
		key, err := s.cacheKey(doc)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Cannot compute cache key, skipping cache")
		} else {
			cacheKey = key
			if cached, err := s.cache.Get(ctx, key); err == nil && cached != nil {
				s.metrics.CacheLookup(true)
				r.logger.Info().Str("cache_key", key).Msg("Cache hit")
				s.emitEvent(r, domain.StreamEvent{
					Type:       domain.EventComplete,
					TotalPages: cached.PageCount,
					Payload:    cached,
				})
				return cached, nil
			}
			s.metrics.CacheLookup(false)
		}
	}

	result, err := s.process(ctx, r)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) && de.Document == "" {
			err = de.WithDocument(doc.Name)
		}
		method := domain.MethodOCR
		if result != nil {
			method = result.ExtractionMethod
		}
		s.metrics.DocumentProcessed(method, string(domain.KindOf(err)), time.Since(startTime))
		r.logger.Error().Err(err).Msg("Extraction failed")
		s.emitError(r, err)
		return nil, err
	}

	result.ID = r.id
	result.Duration = time.Since(startTime)
	result.CreatedAt = time.Now().UTC()

	if s.store != nil {
		if err := s.store.Save(ctx, result); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to persist result")
		}
	}
	if cacheKey != "" {
		if err := s.cache.Put(ctx, cacheKey, result); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to cache result")
		}
	}

	status := "success"
	if len(result.FailedPages) > 0 {
		status = "partial"
	}
	s.metrics.DocumentProcessed(result.ExtractionMethod, status, result.Duration)

	r.logger.Info().
		Str("method", string(result.ExtractionMethod)).
		Int("pages", result.PageCount).
		Int("characters", result.CharacterCount).
		Int("failed_pages", len(result.FailedPages)).
		Dur("duration", result.Duration).
		Msg("Extraction complete")

	s.emitEvent(r, domain.StreamEvent{
		Type:       domain.EventComplete,
		TotalPages: result.PageCount,
		Payload:    result,
	})
	return result, nil
}

func (s *Service) process(ctx context.Context, r *run) (*domain.ExtractionResult, error) {
	switch r.doc.Type {
	case domain.DocumentImage:
		return s.extractImage(ctx, r)
	case domain.DocumentPDF:
	default:
		return nil, domain.UnsupportedTypeError(fmt.Sprintf("Unsupported document type %q", r.doc.Type), nil)
	}

	// The ceiling applies before any page is read, on both paths.
	total, err := s.rasterizer.PageCount(ctx, r.doc)
	if err != nil {
		return nil, err
	}
	if total < 1 {
		return nil, domain.RasterizationError("Document has no pages", nil)
	}
	if total > s.cfg.MaxPages {
		return nil, domain.PageLimitError(fmt.Sprintf("Document has %d pages, limit is %d", total, s.cfg.MaxPages), nil)
	}

	cls, err := s.classifier.Classify(ctx, r.doc)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("method", string(cls.Method())).
		Int("native_chars", cls.NativeChars).
		Int("threshold", s.classifier.Threshold()).
		Msg("Document classified")
	s.emitEvent(r, domain.StreamEvent{
		Type:       domain.EventClassified,
		TotalPages: len(cls.Pages),
		Payload:    string(cls.Method()),
	})

	if !cls.Scanned && len(cls.Pages) > 0 {
		return s.extractNative(r, cls), nil
	}
	return s.extractScanned(ctx, r, total)
}

// extractNative normalizes the text layer page by page. No page is rendered.
func (s *Service) extractNative(r *run, cls classify.Classification) *domain.ExtractionResult {
	units := make([]domain.ExtractionUnit, len(cls.Pages))
	for i, text := range cls.Pages {
		start := time.Now()
		units[i] = domain.ExtractionUnit{Page: i + 1, Text: s.normalizer.Normalize(text)}
		s.metrics.PageProcessed(domain.MethodNative, time.Since(start))
	}
	return buildResult(r.doc, domain.MethodNative, units, nil)
}

func (s *Service) extractImage(ctx context.Context, r *run) (*domain.ExtractionResult, error) {
	if s.engine == nil {
		return nil, domain.EngineUnavailableError("No OCR engine configured", nil)
	}

	page, err := s.images.Load(ctx, r.doc)
	if err != nil {
		return nil, err
	}
	page.Page = 1

	outcomes, err := s.recognizeBatch(ctx, r, []domain.PageImage{page}, 1)
	if err != nil {
		return nil, err
	}
	return s.finish(r, outcomes)
}

// extractScanned processes the document in batches so only one batch of
// rasters is held in memory.
func (s *Service) extractScanned(ctx context.Context, r *run, total int) (*domain.ExtractionResult, error) {
	if s.engine == nil {
		return nil, domain.EngineUnavailableError("No OCR engine configured", nil)
	}

	outcomes := make([]pageOutcome, 0, total)
	for first := 1; first <= total; first += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, domain.CanceledError(err)
		}
		last := min(first+s.cfg.BatchSize-1, total)

		r.logger.Info().Batch(first, last, total).Msg("Processing batch")
		s.emitEvent(r, domain.StreamEvent{
			Type:       domain.EventBatchStart,
			PageNumber: first,
			TotalPages: total,
			Payload:    fmt.Sprintf("Pages %d-%d of %d", first, last, total),
		})

		images, err := s.rasterizer.Rasterize(ctx, r.doc, first, last, s.cfg.DPI)
		if err != nil {
			return nil, err
		}

		batch, err := s.recognizeBatch(ctx, r, images, total)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, batch...)
	}

	return s.finish(r, outcomes)
}

type pageOutcome struct {
	unit    domain.ExtractionUnit
	failure *domain.PageFailure
}

// recognizeBatch runs preprocess, OCR and normalize for every page of a batch
// on up to Workers goroutines. Outcomes come back sorted by page.
func (s *Service) recognizeBatch(ctx context.Context, r *run, images []domain.PageImage, total int) ([]pageOutcome, error) {
	outcomes := make([]pageOutcome, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, img := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return domain.CanceledError(err)
			}

			s.emitEvent(r, domain.StreamEvent{
				Type:       domain.EventPageProcessing,
				PageNumber: img.Page,
				TotalPages: total,
			})

			start := time.Now()
			text, err := s.recognizePage(gctx, img)
			if err != nil {
				err = pageError(img.Page, err)
				kind := domain.KindOf(err)
				if kind == domain.KindCanceled || kind == domain.KindEngineUnavailable || !r.opts.bestEffort {
					return err
				}

				s.metrics.PageFailed(kind)
				r.logger.Warn().Page(img.Page).Err(err).Msg("Page failed, continuing")
				s.emitEvent(r, domain.StreamEvent{
					Type:       domain.EventPageFailed,
					PageNumber: img.Page,
					TotalPages: total,
					Payload:    err.Error(),
				})
				outcomes[i] = pageOutcome{
					unit:    domain.ExtractionUnit{Page: img.Page},
					failure: &domain.PageFailure{Page: img.Page, Kind: kind, Message: err.Error()},
				}
				return nil
			}

			s.metrics.PageProcessed(domain.MethodOCR, time.Since(start))
			r.logger.Debug().Page(img.Page).Int("characters", utf8.RuneCountInString(text)).Dur("duration", time.Since(start)).Msg("Page complete")
			s.emitEvent(r, domain.StreamEvent{
				Type:       domain.EventPageComplete,
				PageNumber: img.Page,
				TotalPages: total,
			})
			outcomes[i] = pageOutcome{unit: domain.ExtractionUnit{Page: img.Page, Text: text}}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if domain.KindOf(err) == domain.KindPageFailed {
			s.metrics.PageFailed(domain.KindPageFailed)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.CanceledError(err)
	}

	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].unit.Page < outcomes[b].unit.Page })
	return outcomes, nil
}

func (s *Service) recognizePage(ctx context.Context, img domain.PageImage) (string, error) {
	gray, err := preprocess.Process(img.Image, s.cfg.Preprocess)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", domain.CanceledError(err)
	}
	text, err := s.engine.Recognize(ctx, gray)
	if err != nil {
		return "", err
	}
	return s.normalizer.Normalize(text), nil
}

// pageError attaches the page number. Anything that is not already fatal
// becomes a page failure.
func pageError(page int, err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindCanceled, domain.KindEngineUnavailable, domain.KindPageFailed:
			return de.WithPage(page)
		}
		return domain.PageFailedError(page, de.Message, de)
	}
	return domain.PageFailedError(page, "Page extraction failed", err)
}

func (s *Service) finish(r *run, outcomes []pageOutcome) (*domain.ExtractionResult, error) {
	units := make([]domain.ExtractionUnit, len(outcomes))
	var failures []domain.PageFailure
	for i, o := range outcomes {
		units[i] = o.unit
		if o.failure != nil {
			failures = append(failures, *o.failure)
		}
	}
	if len(outcomes) > 0 && len(failures) == len(outcomes) {
		return nil, domain.NewError(domain.KindPageFailed, fmt.Sprintf("All %d pages failed", len(outcomes)), nil)
	}
	return buildResult(r.doc, domain.MethodOCR, units, failures), nil
}

// PageMarker is the line that opens each page in the assembled text.
func PageMarker(page int) string {
	return fmt.Sprintf("--- Page %d ---", page)
}

// Assemble joins page texts under their markers, separated by a blank line.
func Assemble(units []domain.ExtractionUnit) string {
	parts := make([]string, len(units))
	for i, u := range units {
		if u.Text == "" {
			parts[i] = PageMarker(u.Page)
			continue
		}
		parts[i] = PageMarker(u.Page) + "\n" + u.Text
	}
	return strings.Join(parts, "\n\n")
}

func buildResult(doc domain.SourceDocument, method domain.ExtractionMethod, units []domain.ExtractionUnit, failures []domain.PageFailure) *domain.ExtractionResult {
	text := Assemble(units)
	return &domain.ExtractionResult{
		Text:             text,
		PageCount:        len(units),
		CharacterCount:   utf8.RuneCountInString(text),
		SourceFile:       doc.Name,
		ExtractionMethod: method,
		FailedPages:      failures,
	}
}

// cacheKey combines the document content hash with a fingerprint of every
// setting that changes the output.
func (s *Service) cacheKey(doc domain.SourceDocument) (string, error) {
	h := sha256.New()
	if doc.InMemory() {
		h.Write(doc.Data)
	} else {
		f, err := os.Open(doc.Path)
		if err != nil {
			return "", domain.IOError("Failed to read document for hashing", err)
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return "", domain.IOError("Failed to read document for hashing", err)
		}
	}
	content := hex.EncodeToString(h.Sum(nil))

	settings, err := json.Marshal(struct {
		Config    Config
		Threshold int
	}{s.cfg, s.classifier.Threshold()})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(settings)
	return "result:" + content + ":" + hex.EncodeToString(sum[:8]), nil
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(r *run, event domain.StreamEvent) {
	if r.opts.events == nil {
		return
	}
	event.RunID = r.id
	event.Timestamp = time.Now()
	select {
	case r.opts.events <- event:
	default:
		r.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
	}
}

// emitError emits an error event
func (s *Service) emitError(r *run, err error) {
	s.emitEvent(r, domain.StreamEvent{
		Type:    domain.EventError,
		Payload: err.Error(),
	})
}
