package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Pipeline error taxonomy. Concrete errors are marked with one of these
// sentinels; test with errors.Is.
var (
	// ErrMalformedDocument rejects a single record during normalization.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrUpstreamUnavailable means an upstream stayed unreachable after the
	// adapter's retry budget.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrAuthentication means the upstream rejected (or was never given) the
	// credential. Never retried.
	ErrAuthentication = errors.New("authentication rejected")

	// ErrIndexWriteFailed means a document could not be written to the index
	// within the retry budget.
	ErrIndexWriteFailed = errors.New("index write failed")

	// ErrIndexRejected means the search engine refused the request itself;
	// retrying cannot help.
	ErrIndexRejected = errors.New("index rejected request")

	// ErrDocumentNotFound is returned by index lookups for unknown ids.
	ErrDocumentNotFound = errors.New("document not found")
)

// MalformedDocumentError carries the offending field and source tag.
type MalformedDocumentError struct {
	Field  string
	Source string
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	src := e.Source
	if src == "" {
		src = "unknown source"
	}
	return fmt.Sprintf("malformed document from %s: field %q %s", src, e.Field, e.Reason)
}

// NewMalformedDocument builds a MalformedDocumentError marked as
// ErrMalformedDocument.
func NewMalformedDocument(field, source, reason string) error {
	return errors.Mark(&MalformedDocumentError{Field: field, Source: source, Reason: reason}, ErrMalformedDocument)
}
