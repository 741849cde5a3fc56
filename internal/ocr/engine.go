// Package ocr invokes the Tesseract OCR engine on preprocessed page images.
//
// The engine itself is only compiled in with the "ocr" build tag, which
// requires the Tesseract and Leptonica development libraries:
//
//	apt-get install libtesseract-dev libleptonica-dev tesseract-ocr-eng
//	go build -tags ocr ./...
//
// Without the tag NewTesseract reports the engine as unavailable, so native
// PDFs still work on hosts without Tesseract.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/observability"
)

// PageSegMode controls how Tesseract analyzes the page layout.
type PageSegMode int

// Page segmentation modes.
const (
	PSM_OSD_ONLY               PageSegMode = 0  // Orientation and script detection only
	PSM_AUTO_OSD               PageSegMode = 1  // Automatic with OSD
	PSM_AUTO_ONLY              PageSegMode = 2  // Automatic, no OSD or OCR
	PSM_AUTO                   PageSegMode = 3  // Fully automatic
	PSM_SINGLE_COLUMN          PageSegMode = 4  // Single column of variable sizes
	PSM_SINGLE_BLOCK_VERT_TEXT PageSegMode = 5  // Single uniform block of vertically aligned text
	PSM_SINGLE_BLOCK           PageSegMode = 6  // Single uniform block of text
	PSM_SINGLE_LINE            PageSegMode = 7  // Single text line
	PSM_SINGLE_WORD            PageSegMode = 8  // Single word
	PSM_CIRCLE_WORD            PageSegMode = 9  // Single word in a circle
	PSM_SINGLE_CHAR            PageSegMode = 10 // Single character
	PSM_SPARSE_TEXT            PageSegMode = 11 // Find as much text as possible
	PSM_SPARSE_TEXT_OSD        PageSegMode = 12 // Sparse text with OSD
	PSM_RAW_LINE               PageSegMode = 13 // Treat image as single text line
)

// Config holds engine settings. Timeout applies to a single page; zero disables it.
type Config struct {
	Language    string
	PageSegMode PageSegMode
	Timeout     time.Duration
	DPI         float64
	Variables   map[string]string
}

// DefaultConfig returns English, single block segmentation and a two minute page timeout.
func DefaultConfig() Config {
	return Config{
		Language:    "eng",
		PageSegMode: PSM_SINGLE_BLOCK,
		Timeout:     2 * time.Minute,
	}
}

// backend is one recognizer instance. It is not safe for concurrent use.
type backend interface {
	Text(png []byte) (string, error)
	Close() error
}

// Engine serializes recognition calls onto a single backend instance and
// enforces the per-page timeout.
type Engine struct {
	mu      sync.Mutex
	backend backend
	cfg     Config
	closed  bool
	logger  *observability.Logger
}

// NewTesseract creates the Tesseract engine. The engine is probed once so a
// missing installation or language pack fails here instead of on every page.
func NewTesseract(cfg Config, logger *observability.Logger) (*Engine, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	b, err := newTesseractBackend(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(b, cfg, logger), nil
}

func newEngine(b backend, cfg Config, logger *observability.Logger) *Engine {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Engine{
		backend: b,
		cfg:     cfg,
		logger:  logger.WithComponent("ocr"),
	}
}

// Name identifies the engine in logs and metrics
func (e *Engine) Name() string {
	return "tesseract"
}

type recognition struct {
	text string
	err  error
}

// Recognize returns the text found in img. Engine failures and timeouts are
// reported as page_failed; a missing engine as engine_unavailable.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.CanceledError(err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", domain.PageFailedError(0, "Failed to encode page image", err)
	}

	done := make(chan recognition, 1)
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			done <- recognition{err: domain.EngineUnavailableError("OCR engine is closed", nil)}
			return
		}
		text, err := e.backend.Text(buf.Bytes())
		done <- recognition{text: text, err: err}
	}()

	var timeout <-chan time.Time
	if e.cfg.Timeout > 0 {
		timer := time.NewTimer(e.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err != nil {
			var de *domain.DomainError
			if errors.As(r.err, &de) {
				return "", de
			}
			return "", domain.PageFailedError(0, "OCR failed", r.err)
		}
		return r.text, nil

	case <-timeout:
		// The call keeps the engine busy until it returns; later pages wait for it.
		e.logger.WithContext(ctx).Warn().Dur("timeout", e.cfg.Timeout).Msg("OCR call timed out")
		return "", domain.PageFailedError(0, fmt.Sprintf("OCR timed out after %s", e.cfg.Timeout), context.DeadlineExceeded)

	case <-ctx.Done():
		return "", domain.CanceledError(ctx.Err())
	}
}

// Close releases the engine once any running call has finished
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.backend.Close()
}
