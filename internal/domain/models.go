package domain

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"
)

// DocumentType is the broad kind of a source document
type DocumentType string

const (
	DocumentPDF   DocumentType = "pdf"
	DocumentImage DocumentType = "image"
)

// ImageExtensions lists the raster formats accepted as direct OCR input
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp"}

// TypeForExtension maps a file extension to a document type.
func TypeForExtension(ext string) (DocumentType, bool) {
	ext = strings.ToLower(ext)
	if ext == ".pdf" {
		return DocumentPDF, true
	}
	for _, e := range ImageExtensions {
		if e == ext {
			return DocumentImage, true
		}
	}
	return "", false
}

// SourceDocument is an immutable reference to an input file or buffer
type SourceDocument struct {
	Path string // resolved absolute path, empty for buffers
	Name string // basename reported as source_file
	Type DocumentType
	Size int64
	Data []byte // set for in-memory inputs
}

// InMemory reports whether the document is backed by a byte buffer.
func (d SourceDocument) InMemory() bool {
	return d.Data != nil
}

// Extension returns the lower-case extension of the document name
func (d SourceDocument) Extension() string {
	return strings.ToLower(filepath.Ext(d.Name))
}

// PageImage represents a single rasterized page
type PageImage struct {
	Page  int // 1-based
	Image image.Image
	DPI   float64
}

// ExtractionMethod records which path produced the text
type ExtractionMethod string

const (
	MethodNative ExtractionMethod = "native"
	MethodOCR    ExtractionMethod = "ocr"
)

// ExtractionUnit is the normalized text of one page
type ExtractionUnit struct {
	Page int
	Text string
}

// PageFailure records a page that could not be extracted in best-effort mode
type PageFailure struct {
	Page    int       `json:"page"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ExtractionResult is the structured output of one pipeline run
type ExtractionResult struct {
	ID               string           `json:"id,omitempty"`
	Text             string           `json:"text"`
	PageCount        int              `json:"page_count"`
	CharacterCount   int              `json:"character_count"`
	SourceFile       string           `json:"source_file"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	FailedPages      []PageFailure    `json:"failed_pages,omitempty"`
	Duration         time.Duration    `json:"-"`
	CreatedAt        time.Time        `json:"created_at,omitempty"`
}

// PreprocessMethod selects the binarization chain
type PreprocessMethod string

const (
	PreprocessAdaptive PreprocessMethod = "adaptive"
	PreprocessOtsu     PreprocessMethod = "otsu"
	PreprocessSimple   PreprocessMethod = "simple"
)

// PreprocessingConfig controls the image preparation applied before OCR
type PreprocessingConfig struct {
	Method          PreprocessMethod `yaml:"method" json:"method"`
	Deskew          bool             `yaml:"deskew" json:"deskew"`
	EnhanceContrast bool             `yaml:"enhance_contrast" json:"enhance_contrast"`
	DenoiseStrength int              `yaml:"denoise_strength" json:"denoise_strength"`

	// Tuning knobs. Zero values fall back to the defaults below.
	BilateralDiameter int     `yaml:"bilateral_diameter" json:"bilateral_diameter,omitempty"`
	BilateralSigma    float64 `yaml:"bilateral_sigma" json:"bilateral_sigma,omitempty"`
	AdaptiveBlockSize int     `yaml:"adaptive_block_size" json:"adaptive_block_size,omitempty"`
	AdaptiveC         float64 `yaml:"adaptive_c" json:"adaptive_c,omitempty"`
	MorphKernel       int     `yaml:"morph_kernel" json:"morph_kernel,omitempty"`
	CLAHEClipLimit    float64 `yaml:"clahe_clip_limit" json:"clahe_clip_limit,omitempty"`
	CLAHETiles        int     `yaml:"clahe_tiles" json:"clahe_tiles,omitempty"`
}

// DefaultPreprocessingConfig returns the adaptive chain with deskew and contrast enhancement on.
func DefaultPreprocessingConfig() PreprocessingConfig {
	return PreprocessingConfig{
		Method:            PreprocessAdaptive,
		Deskew:            true,
		EnhanceContrast:   true,
		DenoiseStrength:   10,
		BilateralDiameter: 9,
		BilateralSigma:    75,
		AdaptiveBlockSize: 11,
		AdaptiveC:         2,
		MorphKernel:       2,
		CLAHEClipLimit:    2.0,
		CLAHETiles:        8,
	}
}

// WithDefaults fills unset tuning knobs from DefaultPreprocessingConfig.
func (c PreprocessingConfig) WithDefaults() PreprocessingConfig {
	d := DefaultPreprocessingConfig()
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.BilateralDiameter == 0 {
		c.BilateralDiameter = d.BilateralDiameter
	}
	if c.BilateralSigma == 0 {
		c.BilateralSigma = d.BilateralSigma
	}
	if c.AdaptiveBlockSize == 0 {
		c.AdaptiveBlockSize = d.AdaptiveBlockSize
	}
	if c.AdaptiveC == 0 {
		c.AdaptiveC = d.AdaptiveC
	}
	if c.MorphKernel == 0 {
		c.MorphKernel = d.MorphKernel
	}
	if c.CLAHEClipLimit == 0 {
		c.CLAHEClipLimit = d.CLAHEClipLimit
	}
	if c.CLAHETiles == 0 {
		c.CLAHETiles = d.CLAHETiles
	}
	return c
}

// Validate rejects unknown methods and out-of-range knobs
func (c PreprocessingConfig) Validate() error {
	switch c.Method {
	case PreprocessAdaptive, PreprocessOtsu, PreprocessSimple:
	default:
		return ValidationError(fmt.Sprintf("unknown preprocessing method %q", c.Method), nil)
	}
	if c.DenoiseStrength < 0 {
		return ValidationError(fmt.Sprintf("denoise strength must be >= 0, got %d", c.DenoiseStrength), nil)
	}
	if c.AdaptiveBlockSize < 3 || c.AdaptiveBlockSize%2 == 0 {
		return ValidationError(fmt.Sprintf("adaptive block size must be odd and >= 3, got %d", c.AdaptiveBlockSize), nil)
	}
	if c.BilateralDiameter < 0 || c.MorphKernel < 0 || c.CLAHETiles < 0 {
		return ValidationError("preprocessing knobs must not be negative", nil)
	}
	return nil
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventClassified     EventType = "classified"
	EventBatchStart     EventType = "batch_start"
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventPageFailed     EventType = "page_failed"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	RunID      string      `json:"run_id,omitempty"`
	PageNumber int         `json:"page_number,omitempty"`
	TotalPages int         `json:"total_pages,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
