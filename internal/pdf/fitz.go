// Package pdf reads page counts, native text and page rasters from documents.
package pdf

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/doc-extractor/internal/domain"
)

// DefaultDPI is the rendering resolution used when none is configured
const DefaultDPI = 300

// FitzReader implements page counting, native text reading and rasterization using go-fitz (MuPDF)
type FitzReader struct{}

// NewFitzReader creates a new MuPDF backed reader
func NewFitzReader() *FitzReader {
	return &FitzReader{}
}

// open loads the document from disk or from its in-memory buffer
func (f *FitzReader) open(doc domain.SourceDocument) (*fitz.Document, error) {
	if doc.Type != domain.DocumentPDF {
		return nil, domain.ValidationError(fmt.Sprintf("%s is not a PDF", doc.Name), nil)
	}

	var (
		d   *fitz.Document
		err error
	)
	if doc.InMemory() {
		d, err = fitz.NewFromMemory(doc.Data)
	} else {
		d, err = fitz.New(doc.Path)
	}
	if err != nil {
		return nil, domain.RasterizationError("Failed to open PDF", err).WithDocument(doc.Name)
	}
	return d, nil
}

// PageCount returns the number of pages without rendering any of them
func (f *FitzReader) PageCount(ctx context.Context, doc domain.SourceDocument) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.CanceledError(err)
	}

	d, err := f.open(doc)
	if err != nil {
		return 0, err
	}
	defer d.Close()

	return d.NumPage(), nil
}

// PageTexts returns the embedded text of every page in order
func (f *FitzReader) PageTexts(ctx context.Context, doc domain.SourceDocument) ([]string, error) {
	d, err := f.open(doc)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	pageCount := d.NumPage()
	texts := make([]string, 0, pageCount)

	for n := 0; n < pageCount; n++ {
		select {
		case <-ctx.Done():
			return nil, domain.CanceledError(ctx.Err())
		default:
		}

		text, err := d.Text(n)
		if err != nil {
			return nil, domain.RasterizationError("Failed to read text layer", err).WithDocument(doc.Name).WithPage(n + 1)
		}
		texts = append(texts, text)
	}

	return texts, nil
}

// Rasterize renders pages first..last (1-based, inclusive) at dpi
func (f *FitzReader) Rasterize(ctx context.Context, doc domain.SourceDocument, first, last int, dpi float64) ([]domain.PageImage, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	d, err := f.open(doc)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	pageCount := d.NumPage()
	if first < 1 || last < first || last > pageCount {
		return nil, domain.RasterizationError(
			fmt.Sprintf("page range %d-%d out of bounds for %d pages", first, last, pageCount), nil).WithDocument(doc.Name)
	}

	images := make([]domain.PageImage, 0, last-first+1)

	for page := first; page <= last; page++ {
		select {
		case <-ctx.Done():
			return nil, domain.CanceledError(ctx.Err())
		default:
		}

		img, err := d.ImageDPI(page-1, dpi)
		if err != nil {
			return nil, domain.RasterizationError("Failed to render page", err).WithDocument(doc.Name).WithPage(page)
		}

		images = append(images, domain.PageImage{
			Page:  page,
			Image: img,
			DPI:   dpi,
		})
	}

	return images, nil
}
