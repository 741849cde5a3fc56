package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/spherical/doc-extractor/internal/domain"
)

// ImageLoader decodes image inputs into a single page
type ImageLoader struct{}

// NewImageLoader creates a new image loader
func NewImageLoader() *ImageLoader {
	return &ImageLoader{}
}

// Load decodes the document as page 1. EXIF orientation is applied so the
// text is upright before preprocessing.
func (l *ImageLoader) Load(ctx context.Context, doc domain.SourceDocument) (domain.PageImage, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageImage{}, domain.CanceledError(err)
	}
	if doc.Type != domain.DocumentImage {
		return domain.PageImage{}, domain.ValidationError(fmt.Sprintf("%s is not an image", doc.Name), nil)
	}

	var (
		img image.Image
		err error
	)
	if doc.InMemory() {
		img, err = imaging.Decode(bytes.NewReader(doc.Data), imaging.AutoOrientation(true))
	} else {
		img, err = imaging.Open(doc.Path, imaging.AutoOrientation(true))
	}
	if err != nil {
		return domain.PageImage{}, domain.RasterizationError("Failed to decode image", err).WithDocument(doc.Name).WithPage(1)
	}

	return domain.PageImage{Page: 1, Image: img}, nil
}
