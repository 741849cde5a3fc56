package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKind(t *testing.T) {
	err := NotFoundError("missing.pdf does not exist", nil).WithDocument("missing.pdf")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnsupportedType))

	wrapped := fmt.Errorf("resolve: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestDomainError_UnwrapKeepsCause(t *testing.T) {
	err := CanceledError(context.Canceled)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrCanceled))
}

func TestDomainError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{
			name: "kind and message",
			err:  ValidationError("bad input", nil),
			want: "[validation] bad input",
		},
		{
			name: "document and page",
			err:  PageFailedError(3, "ocr failed", errors.New("timeout")).WithDocument("scan.pdf"),
			want: "[page_failed] ocr failed (document scan.pdf, page 3): timeout",
		},
		{
			name: "page only",
			err:  RasterizationError("render failed", nil).WithPage(2),
			want: "[rasterization] render failed (page 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWithDocument_DoesNotMutateSentinel(t *testing.T) {
	_ = ErrNotFound.WithDocument("a.pdf")
	assert.Empty(t, ErrNotFound.Document)
}

func TestTypeForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want DocumentType
		ok   bool
	}{
		{".pdf", DocumentPDF, true},
		{".PDF", DocumentPDF, true},
		{".png", DocumentImage, true},
		{".JPEG", DocumentImage, true},
		{".tiff", DocumentImage, true},
		{".bmp", DocumentImage, true},
		{".exe", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := TypeForExtension(tt.ext)
		assert.Equal(t, tt.ok, ok, tt.ext)
		assert.Equal(t, tt.want, got, tt.ext)
	}
}

func TestPreprocessingConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPreprocessingConfig().Validate())

	cfg := PreprocessingConfig{Method: "sharpen"}.WithDefaults()
	assert.ErrorIs(t, cfg.Validate(), &DomainError{Kind: KindValidation})

	cfg = PreprocessingConfig{Method: PreprocessOtsu, DenoiseStrength: -1}.WithDefaults()
	assert.Error(t, cfg.Validate())

	cfg = PreprocessingConfig{Method: PreprocessSimple, AdaptiveBlockSize: 10}.WithDefaults()
	assert.Error(t, cfg.Validate())
}

func TestPreprocessingConfig_WithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := PreprocessingConfig{Method: PreprocessOtsu, MorphKernel: 3}.WithDefaults()

	assert.Equal(t, PreprocessOtsu, cfg.Method)
	assert.Equal(t, 3, cfg.MorphKernel)
	assert.Equal(t, 11, cfg.AdaptiveBlockSize)
	assert.Equal(t, 0, cfg.DenoiseStrength)
}
