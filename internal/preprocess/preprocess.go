// Package preprocess prepares page images for OCR: grayscale conversion,
// optional deskew and contrast enhancement, then one of three binarization
// chains. Every function here is a pure transformation of its input.
package preprocess

import (
	"image"

	"github.com/spherical/doc-extractor/internal/domain"
)

// Gaussian sigmas matching 5x5 and 3x3 kernels with automatic sigma.
const (
	otsuBlurSigma   = 1.1
	simpleBlurSigma = 0.8
	simpleThreshold = 127

	nlmTemplateSize = 7
	nlmSearchSize   = 21
)

// Process converts img to grayscale and applies the configured chain.
// The returned image has the same dimensions as the input.
func Process(img image.Image, cfg domain.PreprocessingConfig) (*image.Gray, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, domain.ValidationError("cannot preprocess an empty image", nil)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gray := toGray(img)

	if cfg.Deskew {
		gray = Deskew(gray)
	}

	if cfg.EnhanceContrast {
		gray = clahe(gray, cfg.CLAHEClipLimit, cfg.CLAHETiles)
	}

	switch cfg.Method {
	case domain.PreprocessAdaptive:
		gray = bilateral(gray, cfg.BilateralDiameter, cfg.BilateralSigma, cfg.BilateralSigma)
		gray = adaptiveThreshold(gray, cfg.AdaptiveBlockSize, cfg.AdaptiveC)
		gray = closing(gray, cfg.MorphKernel)
		if cfg.DenoiseStrength > 0 {
			gray = nlMeans(gray, float64(cfg.DenoiseStrength), nlmTemplateSize, nlmSearchSize)
		}
	case domain.PreprocessOtsu:
		gray = gaussianBlur(gray, otsuBlurSigma)
		gray = otsuThreshold(gray)
	case domain.PreprocessSimple:
		gray = gaussianBlur(gray, simpleBlurSigma)
		gray = fixedThreshold(gray, simpleThreshold)
	}

	return gray, nil
}
