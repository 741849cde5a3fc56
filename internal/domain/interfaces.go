package domain

import (
	"context"
	"image"
)

// NativeTextReader reads the embedded text layer of a PDF
type NativeTextReader interface {
	// PageTexts returns the native text of every page, in page order
	PageTexts(ctx context.Context, doc SourceDocument) ([]string, error)
}

// Rasterizer renders PDF pages to images
type Rasterizer interface {
	// PageCount reads the number of pages without rendering anything
	PageCount(ctx context.Context, doc SourceDocument) (int, error)

	// Rasterize renders pages first..last (1-based, inclusive) at the given DPI
	Rasterize(ctx context.Context, doc SourceDocument, first, last int, dpi float64) ([]PageImage, error)
}

// ImageLoader decodes a raster image input into a single page
type ImageLoader interface {
	Load(ctx context.Context, doc SourceDocument) (PageImage, error)
}

// OCREngine recognizes text in a preprocessed page image
type OCREngine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
	Name() string
	Close() error
}

// Normalizer turns raw page text into its canonical form
type Normalizer interface {
	Normalize(text string) string
}

// ResultStore persists extraction results
type ResultStore interface {
	Save(ctx context.Context, result *ExtractionResult) error
	Get(ctx context.Context, id string) (*ExtractionResult, error)
}
