//go:build ocr

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/spherical/doc-extractor/internal/domain"
)

type tesseractBackend struct {
	client *gosseract.Client
}

func newTesseractBackend(cfg Config) (backend, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(strings.Split(cfg.Language, "+")...); err != nil {
		client.Close()
		return nil, domain.EngineUnavailableError("Failed to set OCR language", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		client.Close()
		return nil, domain.EngineUnavailableError("Failed to set page segmentation mode", err)
	}
	if cfg.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(int(cfg.DPI))); err != nil {
			client.Close()
			return nil, domain.EngineUnavailableError("Failed to set DPI", err)
		}
	}
	for k, v := range cfg.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			client.Close()
			return nil, domain.EngineUnavailableError(fmt.Sprintf("Failed to set variable %s", k), err)
		}
	}

	b := &tesseractBackend{client: client}
	if err := b.probe(); err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

// probe runs one recognition on a blank image, which forces Tesseract to
// load its language data.
func (b *tesseractBackend) probe() error {
	var buf bytes.Buffer
	blank := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	if err := png.Encode(&buf, blank); err != nil {
		return domain.EngineUnavailableError("Failed to encode probe image", err)
	}
	if err := b.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return domain.EngineUnavailableError("Tesseract rejected probe image", err)
	}
	if _, err := b.client.Text(); err != nil {
		return domain.EngineUnavailableError("Tesseract is not usable", err)
	}
	return nil
}

func (b *tesseractBackend) Text(data []byte) (string, error) {
	if err := b.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := b.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

func (b *tesseractBackend) Close() error {
	return b.client.Close()
}
