package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/spherical/doc-extractor/internal/domain"
)

// PureReader reads the native text layer with a pure Go PDF parser.
// It needs no MuPDF runtime, so it serves as the native reader on hosts
// where only classification and native extraction are wanted.
type PureReader struct{}

// NewPureReader creates a pure Go native text reader
func NewPureReader() *PureReader {
	return &PureReader{}
}

// PageTexts returns the embedded text of every page in order. Pages without
// content yield an empty string.
func (p *PureReader) PageTexts(ctx context.Context, doc domain.SourceDocument) (texts []string, err error) {
	if doc.Type != domain.DocumentPDF {
		return nil, domain.ValidationError(fmt.Sprintf("%s is not a PDF", doc.Name), nil)
	}

	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = domain.RasterizationError(fmt.Sprintf("malformed PDF: %v", r), nil).WithDocument(doc.Name)
		}
	}()

	reader, closer, err := p.open(doc)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	pageCount := reader.NumPage()
	texts = make([]string, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, domain.CanceledError(ctx.Err())
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.RasterizationError("Failed to read text layer", err).WithDocument(doc.Name).WithPage(i)
		}
		texts = append(texts, text)
	}

	return texts, nil
}

// PageCount returns the number of pages in the document
func (p *PureReader) PageCount(ctx context.Context, doc domain.SourceDocument) (n int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.CanceledError(err)
	}

	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = domain.RasterizationError(fmt.Sprintf("malformed PDF: %v", r), nil).WithDocument(doc.Name)
		}
	}()

	reader, closer, err := p.open(doc)
	if err != nil {
		return 0, err
	}
	if closer != nil {
		defer closer.Close()
	}
	return reader.NumPage(), nil
}

func (p *PureReader) open(doc domain.SourceDocument) (*pdf.Reader, io.Closer, error) {
	if doc.InMemory() {
		r, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
		if err != nil {
			return nil, nil, domain.RasterizationError("Failed to open PDF", err).WithDocument(doc.Name)
		}
		return r, nil, nil
	}

	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, nil, domain.IOError("Failed to open PDF", err).WithDocument(doc.Name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, domain.IOError("Failed to stat PDF", err).WithDocument(doc.Name)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, domain.RasterizationError("Failed to open PDF", err).WithDocument(doc.Name)
	}
	return r, f, nil
}
