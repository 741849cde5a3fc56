// Package classify decides whether a PDF carries a usable native text layer.
package classify

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/observability"
)

// DefaultThreshold is the minimum number of native characters for a document to count as digital
const DefaultThreshold = 100

// Classification is the once-per-document routing decision
type Classification struct {
	Scanned     bool
	NativeChars int
	// Pages holds the native text of every page so the native path never reads the document twice.
	Pages []string
}

// Method returns the extraction method implied by the decision.
func (c Classification) Method() domain.ExtractionMethod {
	if c.Scanned {
		return domain.MethodOCR
	}
	return domain.MethodNative
}

// Classifier routes documents to the native or OCR path
type Classifier struct {
	reader    domain.NativeTextReader
	threshold int
	logger    *observability.Logger
}

// NewClassifier creates a classifier. A negative threshold selects DefaultThreshold.
func NewClassifier(reader domain.NativeTextReader, threshold int, logger *observability.Logger) *Classifier {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Classifier{
		reader:    reader,
		threshold: threshold,
		logger:    logger.WithComponent("classify"),
	}
}

// Threshold returns the configured character threshold
func (c *Classifier) Threshold() int {
	return c.threshold
}

// Classify reads every page's native text once and decides the path. A
// document is scanned when its trimmed native text has fewer characters than
// the threshold, counted in runes.
func (c *Classifier) Classify(ctx context.Context, doc domain.SourceDocument) (Classification, error) {
	if doc.Type != domain.DocumentPDF {
		return Classification{}, domain.ValidationError("only PDF documents can be classified", nil).WithDocument(doc.Name)
	}

	pages, err := c.reader.PageTexts(ctx, doc)
	if err != nil {
		return Classification{}, err
	}

	chars := utf8.RuneCountInString(strings.TrimSpace(strings.Join(pages, "\n")))
	result := Classification{
		Scanned:     chars < c.threshold,
		NativeChars: chars,
		Pages:       pages,
	}

	c.logger.WithContext(ctx).Debug().
		Str("document", doc.Name).
		Int("pages", len(pages)).
		Int("native_chars", chars).
		Int("threshold", c.threshold).
		Bool("scanned", result.Scanned).
		Msg("Classified document")

	return result, nil
}
