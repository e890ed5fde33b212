package europarl

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/source"
)

const (
	sourceTag   = "eu"
	displayName = "European Parliament"
)

// DocumentRef addresses one document in a numbered sequence.
type DocumentRef struct {
	Type     string // e.g. TA, A
	Term     int
	Year     int
	Number   int
	Language string // e.g. EN
}

// Identifier returns the sequence identifier, e.g. TA-10-2024-0042.
func (r DocumentRef) Identifier() string {
	return fmt.Sprintf("%s-%d-%d-%04d", r.Type, r.Term, r.Year, r.Number)
}

// FileName returns the language-qualified name, e.g. TA-10-2024-0042_EN.
func (r DocumentRef) FileName() string {
	return r.Identifier() + "_" + r.Language
}

// Prober fetches exactly one document.
// Probe returns source.ErrSequenceEnd when the upstream reports the id as
// missing, which ends that sequence.
type Prober interface {
	Probe(ctx context.Context, ref DocumentRef) (domain.RawRecord, error)
}

// CrawlerConfig controls the walk over sequences.
type CrawlerConfig struct {
	Term          int
	DocumentTypes []string
	Languages     []string

	// StartIndex is the first number probed in every sequence.
	StartIndex int

	// MaxPerSequence caps records kept per sequence; 0 means no cap.
	MaxPerSequence int

	// MaxConsecutiveFailures aborts the source after this many failed
	// probes in a row; 0 disables the check.
	MaxConsecutiveFailures int

	// BatchSize is the number of probes per FetchBatch call.
	BatchSize int

	RequestDelay  time.Duration
	RequestJitter time.Duration
}

// Crawler is a sequential source adapter: it probes increasing numbers per
// (type, year, language) until the upstream reports the end.
type Crawler struct {
	cfg     CrawlerConfig
	prober  Prober
	limiter *rate.Limiter
}

// NewCrawler creates a crawler over prober.
// Parameters:
//   - cfg: crawl configuration.
//   - prober: single-document fetcher.
//
// Returns:
//   - *Crawler: adapter ready to fetch.
func NewCrawler(cfg CrawlerConfig, prober Prober) *Crawler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &Crawler{
		cfg:     cfg,
		prober:  prober,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Crawler) Name() string        { return sourceTag }
func (c *Crawler) DisplayName() string { return displayName }
func (c *Crawler) Kind() source.Kind   { return source.KindSequential }

// combo is one sequence: a document type in one language for one year.
type combo struct {
	docType  string
	year     int
	language string
}

func (c *Crawler) combos(window domain.Window) []combo {
	var out []combo
	for _, t := range c.cfg.DocumentTypes {
		for _, year := range window.Years() {
			for _, lang := range c.cfg.Languages {
				out = append(out, combo{
					docType:  strings.ToUpper(t),
					year:     year,
					language: strings.ToUpper(lang),
				})
			}
		}
	}
	return out
}

// crawlState is the decoded cursor.
type crawlState struct {
	combo    int
	index    int
	failures int
	yielded  int
}

func (s crawlState) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", s.combo, s.index, s.failures, s.yielded)
}

func (c *Crawler) parseCursor(cursor string) (crawlState, error) {
	if cursor == "" {
		return crawlState{index: c.cfg.StartIndex}, nil
	}
	parts := strings.Split(cursor, "/")
	if len(parts) != 4 {
		return crawlState{}, errors.Newf("malformed crawl cursor %q", cursor)
	}
	var vals [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return crawlState{}, errors.Newf("malformed crawl cursor %q", cursor)
		}
		vals[i] = n
	}
	return crawlState{combo: vals[0], index: vals[1], failures: vals[2], yielded: vals[3]}, nil
}

// FetchBatch probes up to BatchSize identifiers starting at cursor.
// The cursor is "<combo>/<index>/<consecutive-failures>/<yielded>".
func (c *Crawler) FetchBatch(ctx context.Context, window domain.Window, cursor string) (*source.Batch, error) {
	state, err := c.parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	combos := c.combos(window)
	batch := &source.Batch{}

	next := func() {
		state = crawlState{combo: state.combo + 1, index: c.cfg.StartIndex}
	}

	for probes := 0; probes < c.cfg.BatchSize && state.combo < len(combos); {
		if c.cfg.MaxPerSequence > 0 && state.yielded >= c.cfg.MaxPerSequence {
			next()
			continue
		}

		cb := combos[state.combo]
		ref := DocumentRef{Type: cb.docType, Term: c.cfg.Term, Year: cb.year, Number: state.index, Language: cb.language}

		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		probes++

		rec, err := c.prober.Probe(ctx, ref)
		switch {
		case err == nil:
			state.index++
			state.failures = 0
			if !c.keep(rec, window) {
				continue
			}
			state.yielded++
			batch.Records = append(batch.Records, rec)

		case errors.Is(err, source.ErrSequenceEnd):
			logger.With(logger.Fields{
				"identifier":      ref.Identifier(),
				logger.FieldCount: state.yielded,
			}).Debug(ctx, "sequence ended")
			next()

		case ctx.Err() != nil:
			return nil, errors.Wrap(ctx.Err(), "crawl cancelled")

		case errors.Is(err, domain.ErrAuthentication):
			return nil, err

		default:
			state.index++
			state.failures++
			batch.Failures = append(batch.Failures, domain.RecordFailure{
				Identity: ref.Identifier(),
				Stage:    domain.StageFetch,
				Reason:   err.Error(),
			})
			if c.cfg.MaxConsecutiveFailures > 0 && state.failures >= c.cfg.MaxConsecutiveFailures {
				return nil, errors.Mark(
					errors.Wrapf(err, "%d consecutive probe failures at %s", state.failures, ref.Identifier()),
					domain.ErrUpstreamUnavailable,
				)
			}
		}
	}

	if state.combo < len(combos) {
		batch.NextCursor = state.String()
	}
	return batch, nil
}

// keep drops records dated outside the window. Records without a usable
// date are kept so the normalizer can report them.
func (c *Crawler) keep(rec domain.RawRecord, window domain.Window) bool {
	if rec == nil {
		return false
	}
	published, err := domain.ParseTimestamp(rec[domain.FieldPublicationDate])
	if err != nil {
		return true
	}
	return window.Contains(published)
}

// wait applies the request throttle plus random jitter.
func (c *Crawler) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "crawl throttle")
	}
	if c.cfg.RequestJitter <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(rand.Int64N(int64(c.cfg.RequestJitter))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "crawl throttle")
	case <-timer.C:
		return nil
	}
}
