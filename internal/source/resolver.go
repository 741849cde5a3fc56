// Package source resolves requested document names against a source directory.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/observability"
)

// LargeFileSize is the size above which a warning is logged. Large files are still accepted.
const LargeFileSize = 100 * 1024 * 1024

// Resolver maps requested names to documents inside a single root directory
type Resolver struct {
	root   string
	logger *observability.Logger
}

// NewResolver creates a resolver rooted at dir
func NewResolver(dir string, logger *observability.Logger) (*Resolver, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, domain.ConfigError("source directory cannot be empty", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("cannot resolve source directory %s", dir), err)
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Resolver{root: abs, logger: logger.WithComponent("source")}, nil
}

// Root returns the absolute source directory
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates a requested name and returns the document it refers to.
// The name may be relative to the root or absolute, but the result must stay
// inside the root. Nothing outside the root is ever opened.
func (r *Resolver) Resolve(name string) (domain.SourceDocument, error) {
	if strings.TrimSpace(name) == "" {
		return domain.SourceDocument{}, domain.ValidationError("file path cannot be empty", nil)
	}

	target := name
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.root, target)
	}
	target = filepath.Clean(target)

	if !within(r.root, target) {
		return domain.SourceDocument{}, domain.PathTraversalError(fmt.Sprintf("%s resolves outside the source directory", name), nil)
	}

	docType, ok := domain.TypeForExtension(filepath.Ext(target))
	if !ok {
		return domain.SourceDocument{}, domain.UnsupportedTypeError(
			fmt.Sprintf("unsupported file extension %q", filepath.Ext(target)), nil).WithDocument(filepath.Base(target))
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.SourceDocument{}, domain.NotFoundError(fmt.Sprintf("file does not exist: %s", name), err).WithDocument(filepath.Base(target))
		}
		return domain.SourceDocument{}, domain.IOError(fmt.Sprintf("cannot access file: %s", name), err)
	}

	if info.IsDir() {
		return domain.SourceDocument{}, domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", name), nil)
	}

	// Symlinks inside the root may point anywhere, so compare the real paths too.
	realRoot, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		return domain.SourceDocument{}, domain.IOError("cannot evaluate source directory", err)
	}
	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return domain.SourceDocument{}, domain.IOError(fmt.Sprintf("cannot evaluate path: %s", name), err)
	}
	if !within(realRoot, realTarget) {
		return domain.SourceDocument{}, domain.PathTraversalError(fmt.Sprintf("%s links outside the source directory", name), nil)
	}

	if info.Size() > LargeFileSize {
		r.logger.Warn().
			Str("document", info.Name()).
			Int64("size_mb", info.Size()/(1024*1024)).
			Msg("Document is very large, processing may take a while")
	}

	file, err := os.Open(target)
	if err != nil {
		return domain.SourceDocument{}, domain.IOError(fmt.Sprintf("cannot open file: %s", name), err)
	}
	file.Close()

	return domain.SourceDocument{
		Path: target,
		Name: filepath.Base(target),
		Type: docType,
		Size: info.Size(),
	}, nil
}

// FromBytes wraps an in-memory buffer as a document. Only the base name of
// name is kept; the extension decides the document type.
func FromBytes(name string, data []byte) (domain.SourceDocument, error) {
	base := filepath.Base(filepath.Clean(strings.TrimSpace(name)))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return domain.SourceDocument{}, domain.ValidationError("document name cannot be empty", nil)
	}

	docType, ok := domain.TypeForExtension(filepath.Ext(base))
	if !ok {
		return domain.SourceDocument{}, domain.UnsupportedTypeError(
			fmt.Sprintf("unsupported file extension %q", filepath.Ext(base)), nil).WithDocument(base)
	}

	if len(data) == 0 {
		return domain.SourceDocument{}, domain.ValidationError("document is empty", nil).WithDocument(base)
	}

	return domain.SourceDocument{
		Name: base,
		Type: docType,
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// within reports whether target is root or lies below it. Both paths must be clean and absolute.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
