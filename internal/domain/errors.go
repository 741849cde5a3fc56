package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure so callers can branch on it
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindUnsupportedType   ErrorKind = "unsupported_type"
	KindPathTraversal     ErrorKind = "path_traversal"
	KindPageLimitExceeded ErrorKind = "page_limit_exceeded"
	KindRasterization     ErrorKind = "rasterization"
	KindEngineUnavailable ErrorKind = "engine_unavailable"
	KindPageFailed        ErrorKind = "page_failed"
	KindValidation        ErrorKind = "validation"
	KindCanceled          ErrorKind = "canceled"
	KindConfig            ErrorKind = "config"
	KindIO                ErrorKind = "io"
	KindStorage           ErrorKind = "storage"
	KindInternal          ErrorKind = "internal"
)

// Sentinels for errors.Is checks. A DomainError matches the sentinel of its kind.
var (
	ErrNotFound          = &DomainError{Kind: KindNotFound, Message: "document not found"}
	ErrUnsupportedType   = &DomainError{Kind: KindUnsupportedType, Message: "unsupported document type"}
	ErrPathTraversal     = &DomainError{Kind: KindPathTraversal, Message: "path escapes source directory"}
	ErrPageLimitExceeded = &DomainError{Kind: KindPageLimitExceeded, Message: "page limit exceeded"}
	ErrRasterization     = &DomainError{Kind: KindRasterization, Message: "rasterization failed"}
	ErrEngineUnavailable = &DomainError{Kind: KindEngineUnavailable, Message: "OCR engine unavailable"}
	ErrPageFailed        = &DomainError{Kind: KindPageFailed, Message: "page failed"}
	ErrCanceled          = &DomainError{Kind: KindCanceled, Message: "extraction canceled"}
)

// DomainError represents a pipeline error with the document and page it concerns
type DomainError struct {
	Kind     ErrorKind
	Message  string
	Document string
	Page     int
	Err      error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Document != "" {
		msg += fmt.Sprintf(" (document %s", e.Document)
		if e.Page > 0 {
			msg += fmt.Sprintf(", page %d", e.Page)
		}
		msg += ")"
	} else if e.Page > 0 {
		msg += fmt.Sprintf(" (page %d)", e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same kind.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithDocument returns a copy of the error annotated with the document name
func (e *DomainError) WithDocument(name string) *DomainError {
	c := *e
	c.Document = name
	return &c
}

// WithPage returns a copy of the error annotated with a 1-based page index
func (e *DomainError) WithPage(page int) *DomainError {
	c := *e
	c.Page = page
	return &c
}

// NewError creates a new domain error
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the kind of the first DomainError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Common error constructors
func NotFoundError(message string, err error) *DomainError {
	return NewError(KindNotFound, message, err)
}

func UnsupportedTypeError(message string, err error) *DomainError {
	return NewError(KindUnsupportedType, message, err)
}

func PathTraversalError(message string, err error) *DomainError {
	return NewError(KindPathTraversal, message, err)
}

func PageLimitError(message string, err error) *DomainError {
	return NewError(KindPageLimitExceeded, message, err)
}

func RasterizationError(message string, err error) *DomainError {
	return NewError(KindRasterization, message, err)
}

func EngineUnavailableError(message string, err error) *DomainError {
	return NewError(KindEngineUnavailable, message, err)
}

func PageFailedError(page int, message string, err error) *DomainError {
	e := NewError(KindPageFailed, message, err)
	e.Page = page
	return e
}

func ValidationError(message string, err error) *DomainError {
	return NewError(KindValidation, message, err)
}

func CanceledError(err error) *DomainError {
	return NewError(KindCanceled, "extraction canceled", err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(KindConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(KindIO, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(KindStorage, message, err)
}
