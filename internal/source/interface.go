package source

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
)

// Kind is the shape of an upstream: a paged API or a crawl over numbered ids.
type Kind string

const (
	KindPaginated  Kind = "paginated"
	KindSequential Kind = "sequential"
)

// ErrSequenceEnd is returned by a sequential probe when the upstream answers
// "not found" for the next identifier.
var ErrSequenceEnd = errors.New("end of sequence")

// Batch is one step of a lazy, restartable record sequence.
type Batch struct {
	Records []domain.RawRecord

	// Failures lists records that could not be fetched; they are skipped.
	Failures []domain.RecordFailure

	// NextCursor resumes the sequence; empty when it is exhausted.
	NextCursor string
}

// Adapter defines the interface for upstream protocol sources.
type Adapter interface {
	// Name returns the source tag used in documents and run parameters.
	// Parameters: none.
	// Returns:
	//   - string: stable source tag, e.g. "bundestag".
	Name() string

	// DisplayName returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly source name.
	DisplayName() string

	// Kind reports whether the adapter pages an API or crawls a numbered sequence.
	Kind() Kind

	// FetchBatch fetches the next batch of raw records inside window.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - window: inclusive date range to fetch.
	//   - cursor: value of a previous NextCursor, or empty for the first batch.
	// Returns:
	//   - *Batch: records, per-record failures and the next cursor.
	//   - error: non-nil only when the whole source is unusable
	//     (domain.ErrAuthentication or domain.ErrUpstreamUnavailable).
	FetchBatch(ctx context.Context, window domain.Window, cursor string) (*Batch, error)
}
