package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/source"
)

// RunStore records ingestion runs. It is history only; the pipeline never
// reads it back.
type RunStore interface {
	Create(ctx context.Context, run *domain.IngestionRun) error
	Save(ctx context.Context, run *domain.IngestionRun) error
}

// IngestService handles the ingestion pipeline: fetch, normalize, resolve, index.
type IngestService struct {
	sources    *source.Registry
	normalizer *Normalizer
	resolver   *Resolver
	indexer    *Indexer
	runs       RunStore
	workers    int
	location   *time.Location
	now        func() time.Time
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	Workers int

	// Location decides which calendar day "yesterday" is. nil means UTC.
	Location *time.Location

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// NewIngestService creates a new ingest service. runs may be nil.
func NewIngestService(
	sources *source.Registry,
	normalizer *Normalizer,
	resolver *Resolver,
	indexer *Indexer,
	runs RunStore,
	cfg IngestConfig,
) *IngestService {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &IngestService{
		sources:    sources,
		normalizer: normalizer,
		resolver:   resolver,
		indexer:    indexer,
		runs:       runs,
		workers:    workers,
		location:   loc,
		now:        now,
	}
}

// ResolveWindow computes the window a run with params covers.
func (s *IngestService) ResolveWindow(params domain.RunParams) (domain.Window, error) {
	switch params.Mode {
	case domain.RunModeBackfill:
		if params.Start == nil || params.End == nil {
			return domain.Window{}, errors.New("backfill requires start and end dates")
		}
		return domain.NewWindow(*params.Start, *params.End)
	case domain.RunModeDaily:
		if params.Date != nil {
			return domain.DayWindow(*params.Date), nil
		}
		return domain.YesterdayWindow(s.now(), s.location), nil
	default:
		return domain.Window{}, errors.Newf("unknown run mode %q", params.Mode)
	}
}

// tally accumulates run counters across the producer and workers.
type tally struct {
	mu  sync.Mutex
	run *domain.IngestionRun
}

func (t *tally) fail(identity, stage string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.Failed++
	t.run.Failures = append(t.run.Failures, domain.RecordFailure{Identity: identity, Stage: stage, Reason: err.Error()})
}

func (t *tally) add(f func(run *domain.IngestionRun)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(t.run)
}

// Run executes one ingestion run.
// Parameters:
//   - ctx: context for cancellation; cancellation stops at a record boundary.
//   - params: source tag, mode and dates.
//
// Returns:
//   - *domain.IngestionRun: run bookkeeping, also on failure.
//   - error: non-nil if the run could not start or was aborted (authentication,
//     unreachable upstream, cancellation). Per-record failures are only counted.
func (s *IngestService) Run(ctx context.Context, params domain.RunParams) (*domain.IngestionRun, error) {
	adapter, err := s.sources.Get(params.Source)
	if err != nil {
		return nil, err
	}
	window, err := s.ResolveWindow(params)
	if err != nil {
		return nil, err
	}

	run := &domain.IngestionRun{
		ID:          uuid.New().String(),
		Mode:        params.Mode,
		Source:      adapter.Name(),
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Status:      domain.RunStatusRunning,
		Failures:    domain.FailureList{},
		StartedAt:   s.now().UTC(),
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRunID:  run.ID,
		logger.FieldSource: run.Source,
		logger.FieldMode:   string(run.Mode),
	})
	logger.FromContext(ctx).WithFields(logger.Fields{
		"window":      window.String(),
		"window_days": window.Days(),
	}).Info("Starting ingestion run")

	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to record run start")
		}
	}

	runErr := s.execute(ctx, adapter, window, &tally{run: run})
	s.finish(ctx, run, runErr)

	if runErr != nil {
		return run, errors.Wrapf(runErr, "ingestion run %s", run.ID)
	}
	return run, nil
}

func (s *IngestService) execute(ctx context.Context, adapter source.Adapter, window domain.Window, t *tally) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queues := make([]chan *domain.ProtocolDocument, s.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan *domain.ProtocolDocument, 16)
		wg.Add(1)
		go func(in <-chan *domain.ProtocolDocument) {
			defer wg.Done()
			s.worker(runCtx, in, t)
		}(queues[i])
	}

	err := s.produce(runCtx, adapter, window, queues, t)
	if err != nil {
		cancel()
	}
	for _, q := range queues {
		close(q)
	}
	wg.Wait()

	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "run interrupted")
	}
	return nil
}

// produce walks the adapter cursor, normalizes records and routes each
// document to the worker owning its id.
func (s *IngestService) produce(ctx context.Context, adapter source.Adapter, window domain.Window, queues []chan *domain.ProtocolDocument, t *tally) error {
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		batch, err := adapter.FetchBatch(ctx, window, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		t.add(func(run *domain.IngestionRun) { run.Fetched += int64(len(batch.Records)) })
		for _, f := range batch.Failures {
			t.add(func(run *domain.IngestionRun) {
				run.Failed++
				run.Failures = append(run.Failures, f)
			})
		}

		for _, rec := range batch.Records {
			if ctx.Err() != nil {
				return nil
			}

			doc, err := s.normalizer.Normalize(rec)
			if err != nil {
				t.fail(rec.Identity(), domain.StageNormalize, err)
				logger.FromContext(ctx).WithField(logger.FieldDocumentID, rec.Identity()).WithError(err).Warn("Skipping malformed record")
				continue
			}

			select {
			case queues[route(doc.ID, len(queues))] <- doc:
			case <-ctx.Done():
				return nil
			}
		}

		if batch.NextCursor == "" {
			return nil
		}
		cursor = batch.NextCursor
	}
}

// worker resolves and writes the documents routed to it. Every copy of an
// id reaches the same worker, so seen holds the fingerprints this run has
// already written; a repeat of a failed write is attempted again.
func (s *IngestService) worker(ctx context.Context, in <-chan *domain.ProtocolDocument, t *tally) {
	seen := make(map[string]string)
	for doc := range in {
		if ctx.Err() != nil {
			continue
		}

		fp := Fingerprint(doc)
		if prev, ok := seen[doc.ID]; ok && prev == fp {
			t.add(func(run *domain.IngestionRun) { run.SkippedUnchanged++ })
			continue
		}
		if doc.ContentUnextracted {
			t.add(func(run *domain.IngestionRun) { run.Unextracted++ })
		}

		decision, _, err := s.resolver.Resolve(ctx, doc)
		if err != nil {
			t.fail(doc.ID, domain.StageResolve, err)
			logger.FromContext(ctx).WithField(logger.FieldDocumentID, doc.ID).WithError(err).Error("Failed to resolve document")
			continue
		}

		if _, err := s.indexer.Apply(ctx, doc, decision); err != nil {
			t.fail(doc.ID, domain.StageIndex, err)
			logger.FromContext(ctx).WithField(logger.FieldDocumentID, doc.ID).WithError(err).Error("Failed to index document")
			continue
		}
		seen[doc.ID] = fp

		t.add(func(run *domain.IngestionRun) {
			switch decision {
			case domain.DecisionNew:
				run.Created++
				run.Indexed++
			case domain.DecisionChanged:
				run.Updated++
				run.Indexed++
			case domain.DecisionUnchanged:
				run.SkippedUnchanged++
			}
		})
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldDocumentID: doc.ID,
			"decision":             string(decision),
		}).Debug("Document processed")
	}
}

func (s *IngestService) finish(ctx context.Context, run *domain.IngestionRun, runErr error) {
	completed := s.now().UTC()
	run.CompletedAt = &completed
	run.Status = domain.RunStatusCompleted
	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.Error = runErr.Error()
	}

	entry := logger.With(logger.Fields{
		"window":            run.Window().String(),
		"fetched":           run.Fetched,
		"indexed":           run.Indexed,
		"created":           run.Created,
		"updated":           run.Updated,
		"skipped_unchanged": run.SkippedUnchanged,
		"failed":            run.Failed,
		"unextracted":       run.Unextracted,
	}).WithStatus(string(run.Status)).WithDuration(completed.Sub(run.StartedAt).Milliseconds())

	if runErr != nil {
		entry.With(logger.Fields{"error": runErr.Error()}).Error(ctx, "Ingestion run failed")
	} else {
		entry.Info(ctx, "Ingestion run completed")
	}

	if s.runs != nil {
		if err := s.runs.Save(context.WithoutCancel(ctx), run); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to record run result")
		}
	}
}

// route maps an id to a worker so every id is handled by one goroutine.
func route(id string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}
