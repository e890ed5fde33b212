package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
)

// DocumentWriter persists one document keyed by its id.
type DocumentWriter interface {
	UpsertDocument(ctx context.Context, doc *domain.ProtocolDocument) error
}

// IndexerConfig bounds write retries.
type IndexerConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration // 0 retries without sleeping
	MaxInterval     time.Duration
}

// Indexer applies resolver decisions to the search index.
type Indexer struct {
	writer DocumentWriter
	cfg    IndexerConfig
}

// NewIndexer creates an indexer writing through writer.
func NewIndexer(writer DocumentWriter, cfg IndexerConfig) *Indexer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &Indexer{writer: writer, cfg: cfg}
}

func (i *Indexer) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if i.cfg.InitialInterval > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = i.cfg.InitialInterval
		exp.MaxInterval = i.cfg.MaxInterval
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(i.cfg.MaxAttempts-1)), ctx)
}

// Apply writes doc unless decision is unchanged.
// Parameters:
//   - ctx: context for the write and retry waits.
//   - doc: normalized document.
//   - decision: resolver classification.
//
// Returns:
//   - domain.Decision: the applied decision.
//   - error: marked domain.ErrIndexWriteFailed when the write did not succeed.
func (i *Indexer) Apply(ctx context.Context, doc *domain.ProtocolDocument, decision domain.Decision) (domain.Decision, error) {
	if decision == domain.DecisionUnchanged {
		return decision, nil
	}

	attempts := 0
	op := func() error {
		attempts++
		err := i.writer.UpsertDocument(ctx, doc)
		if err != nil && errors.Is(err, domain.ErrIndexRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldDocumentID: doc.ID,
			"attempt":              attempts,
			"wait_ms":              wait.Milliseconds(),
		}).WithError(err).Warn("index write failed, retrying")
	}

	if err := backoff.RetryNotify(op, i.backOff(ctx), notify); err != nil {
		return decision, errors.Mark(
			errors.Wrapf(err, "upsert %s after %d attempt(s)", doc.ID, attempts),
			domain.ErrIndexWriteFailed,
		)
	}
	return decision, nil
}
