//go:build !ocr

package extractor

import (
	"context"
	"testing"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/pdf/pdftest"
	"github.com/stretchr/testify/assert"
)

func TestClient_ScannedWithoutOCR(t *testing.T) {
	c := newClient(t, testConfig(t))
	assert.False(t, c.OCRAvailable())

	_, err := c.ExtractBytes(context.Background(), "scan.pdf", pdftest.Build("", ""))
	assert.Equal(t, domain.KindEngineUnavailable, KindOf(err))
}
