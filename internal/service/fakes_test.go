package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/repository"
	"github.com/policyradar/protocols/internal/source"
)

// memIndex stores documents as JSON, the way the engine returns them.
type memIndex struct {
	mu      sync.Mutex
	docs    map[string][]byte
	upserts []string

	// the next failN[id] writes for id fail with failErr
	failN   map[string]int
	failErr error
}

func newMemIndex() *memIndex {
	return &memIndex{docs: map[string][]byte{}, failN: map[string]int{}}
}

func (m *memIndex) GetDocument(_ context.Context, id string) (*domain.ProtocolDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrDocumentNotFound, "%s", id)
	}
	var doc domain.ProtocolDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *memIndex) UpsertDocument(_ context.Context, doc *domain.ProtocolDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN[doc.ID] > 0 {
		m.failN[doc.ID]--
		return m.failErr
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.docs[doc.ID] = b
	m.upserts = append(m.upserts, doc.ID)
	return nil
}

func (m *memIndex) Search(_ context.Context, _ map[string]interface{}) (*repository.SearchResult, error) {
	return &repository.SearchResult{}, nil
}

func (m *memIndex) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

// sliceAdapter serves fixed records in pages of size.
type sliceAdapter struct {
	name    string
	records []domain.RawRecord
	size    int
	err     error // returned instead of the first page when set

	mu      sync.Mutex
	windows []domain.Window
}

func (a *sliceAdapter) Name() string        { return a.name }
func (a *sliceAdapter) DisplayName() string { return a.name }
func (a *sliceAdapter) Kind() source.Kind   { return source.KindPaginated }

func (a *sliceAdapter) FetchBatch(_ context.Context, window domain.Window, cursor string) (*source.Batch, error) {
	a.mu.Lock()
	a.windows = append(a.windows, window)
	a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}
	start := 0
	if cursor != "" {
		if err := json.Unmarshal([]byte(cursor), &start); err != nil {
			return nil, err
		}
	}
	size := a.size
	if size <= 0 {
		size = 3
	}
	end := start + size
	if end > len(a.records) {
		end = len(a.records)
	}
	batch := &source.Batch{Records: a.records[start:end]}
	if end < len(a.records) {
		b, _ := json.Marshal(end)
		batch.NextCursor = string(b)
	}
	return batch, nil
}

// memRuns is an in-memory RunStore.
type memRuns struct {
	mu    sync.Mutex
	saved map[string]domain.IngestionRun
	calls []string
}

func (m *memRuns) Create(_ context.Context, run *domain.IngestionRun) error {
	return m.put("create", run)
}

func (m *memRuns) Save(_ context.Context, run *domain.IngestionRun) error {
	return m.put("save", run)
}

func (m *memRuns) put(op string, run *domain.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]domain.IngestionRun{}
	}
	m.saved[run.ID] = *run
	m.calls = append(m.calls, op)
	return nil
}
