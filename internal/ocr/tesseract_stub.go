//go:build !ocr

package ocr

import "github.com/spherical/doc-extractor/internal/domain"

// ErrOCRNotEnabled is returned when OCR support was not compiled in.
var ErrOCRNotEnabled = domain.EngineUnavailableError("OCR support not enabled; rebuild with -tags ocr", nil)

func newTesseractBackend(cfg Config) (backend, error) {
	return nil, ErrOCRNotEnabled
}
