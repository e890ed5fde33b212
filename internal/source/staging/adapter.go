package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest file name in staging sources.
	ManifestFileName = "manifest.jsonl"

	defaultBatchSize = 50
)

// Adapter replays raw records from a staging directory. Each manifest line
// is one JSON object using the raw record field names.
type Adapter struct {
	basePath  string
	tag       string
	batchSize int

	mu     sync.Mutex
	lines  []line
	loaded bool
}

type line struct {
	number int
	record domain.RawRecord
	err    error
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - basePath: base path to the staging directory.
//   - tag: source tag; the manifest is read from basePath/tag.
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(basePath, tag string) *Adapter {
	return &Adapter{basePath: basePath, tag: tag, batchSize: defaultBatchSize}
}

// Name returns the source tag.
func (a *Adapter) Name() string {
	return a.tag
}

// DisplayName returns a human-readable name for this source.
func (a *Adapter) DisplayName() string {
	return "Staging (" + a.tag + ")"
}

// Kind reports the manifest as a paged sequence.
func (a *Adapter) Kind() source.Kind {
	return source.KindPaginated
}

// ManifestPath returns the manifest file this adapter reads.
func (a *Adapter) ManifestPath() string {
	return filepath.Join(a.basePath, a.tag, ManifestFileName)
}

// FetchBatch returns the next page of manifest records inside window.
// The cursor is the line offset. The manifest is reread on every first-page
// fetch, so each run sees the file as it is when the run starts. Lines that
// are not JSON objects become fetch failures; records without a source get
// the adapter's tag.
func (a *Adapter) FetchBatch(ctx context.Context, window domain.Window, cursor string) (*source.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines, err := a.manifest(cursor == "")
	if err != nil {
		return nil, errors.Mark(err, domain.ErrUpstreamUnavailable)
	}

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, errors.Newf("invalid staging cursor %q", cursor)
		}
		start = n
	}
	if start >= len(lines) {
		return &source.Batch{}, nil
	}

	end := min(start+a.batchSize, len(lines))
	batch := &source.Batch{}
	for _, l := range lines[start:end] {
		if l.err != nil {
			batch.Failures = append(batch.Failures, domain.RecordFailure{
				Identity: a.ManifestPath() + ":" + strconv.Itoa(l.number),
				Stage:    domain.StageFetch,
				Reason:   l.err.Error(),
			})
			continue
		}
		if !inWindow(l.record, window) {
			continue
		}
		batch.Records = append(batch.Records, a.withTag(l.record))
	}
	if end < len(lines) {
		batch.NextCursor = strconv.Itoa(end)
	}
	return batch, nil
}

// manifest returns the parsed manifest, reading the file when reload is set
// or nothing has been read yet. Load errors are not cached.
func (a *Adapter) manifest(reload bool) ([]line, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if reload || !a.loaded {
		lines, err := a.load()
		if err != nil {
			return nil, err
		}
		a.lines, a.loaded = lines, true
	}
	return a.lines, nil
}

func (a *Adapter) withTag(rec domain.RawRecord) domain.RawRecord {
	out := make(domain.RawRecord, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	if _, ok := out[domain.FieldSource]; !ok {
		out[domain.FieldSource] = a.tag
	}
	return out
}

// inWindow drops records dated outside window. Undated or unparseable
// records pass so the normalizer can report them.
func inWindow(rec domain.RawRecord, window domain.Window) bool {
	v, ok := rec[domain.FieldPublicationDate]
	if !ok {
		return true
	}
	t, err := domain.ParseTimestamp(v)
	if err != nil {
		return true
	}
	return window.Contains(t)
}

func (a *Adapter) load() ([]line, error) {
	path := a.ManifestPath()
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open staging manifest %s", path)
	}
	defer file.Close()

	var lines []line
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec domain.RawRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			lines = append(lines, line{number: n, err: errors.Wrap(err, "decode manifest line")})
			continue
		}
		lines = append(lines, line{number: n, record: rec})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read staging manifest %s", path)
	}
	return lines, nil
}

// ListStagingSources lists the tags under basePath that carry a manifest.
// Parameters:
//   - basePath: base path to the staging directory.
// Returns:
//   - []string: tags in directory order.
//   - error: non-nil if reading the directory fails.
func ListStagingSources(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "list staging sources in %s", basePath)
	}

	var tags []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(basePath, entry.Name(), ManifestFileName)); err == nil {
			tags = append(tags, entry.Name())
		}
	}
	return tags, nil
}
