package bundestag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyradar/protocols/internal/domain"
)

func testWindow(t *testing.T) domain.Window {
	t.Helper()
	w, err := domain.ParseWindow("2024-05-01", "2024-05-03", time.UTC)
	require.NoError(t, err)
	return w
}

func testAdapter(url, key string) *Adapter {
	return NewAdapter(Config{
		BaseURL:      url,
		APIKey:       key,
		Timeout:      2 * time.Second,
		RetryCount:   2,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	})
}

func drain(t *testing.T, a *Adapter, w domain.Window) []domain.RawRecord {
	t.Helper()
	var (
		records []domain.RawRecord
		cursor  string
	)
	for i := 0; i < 20; i++ {
		batch, err := a.FetchBatch(context.Background(), w, cursor)
		require.NoError(t, err)
		records = append(records, batch.Records...)
		if batch.NextCursor == "" {
			return records
		}
		cursor = batch.NextCursor
	}
	t.Fatal("cursor never exhausted")
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchBatch_WalksBothEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ApiKey k1", r.Header.Get("Authorization"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "2024-05-01", r.URL.Query().Get("f.datum.start"))
		assert.Equal(t, "2024-05-03", r.URL.Query().Get("f.datum.end"))

		cursor := r.URL.Query().Get("cursor")
		switch {
		case r.URL.Path == "/plenarprotokoll-text" && cursor == "":
			writeJSON(w, map[string]interface{}{
				"numFound": 2,
				"cursor":   "p1",
				"documents": []map[string]interface{}{
					{"id": "101", "titel": "Plenarprotokoll 20/1", "datum": "2024-05-02", "text": "Sitzung eröffnet",
						"wahlperiode": 20, "fundstelle": map[string]interface{}{"pdf_url": "https://dserver.bundestag.de/btp/20/20001.pdf"}},
					{"id": "102", "titel": "Plenarprotokoll 20/2", "datum": "2024-05-03", "text": "Weiter"},
				},
			})
		case r.URL.Path == "/plenarprotokoll-text" && cursor == "p1":
			writeJSON(w, map[string]interface{}{"numFound": 2, "cursor": "p1", "documents": []interface{}{}})
		case r.URL.Path == "/drucksache-text" && cursor == "":
			writeJSON(w, map[string]interface{}{
				"numFound": 1,
				"cursor":   "d1",
				"documents": []map[string]interface{}{
					{"id": "201", "titel": "Antrag", "datum": "2024-05-01", "text": "", "dokumentnummer": "20/999"},
				},
			})
		case r.URL.Path == "/drucksache-text" && cursor == "d1":
			writeJSON(w, map[string]interface{}{"numFound": 1, "cursor": "d1", "documents": []interface{}{}})
		default:
			t.Errorf("unexpected request %s cursor=%q", r.URL.Path, cursor)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	records := drain(t, testAdapter(srv.URL, "k1"), testWindow(t))
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "101", first.String(domain.FieldID))
	assert.Equal(t, "https://dserver.bundestag.de/btp/20/20001.pdf", first.String(domain.FieldURL))
	assert.Equal(t, "bundestag", first.String(domain.FieldSource))
	assert.Equal(t, "German Bundestag", first.String(domain.FieldSourceName))
	assert.Equal(t, "de", first.String(domain.FieldLanguage))
	meta := first[domain.FieldMetadata].(map[string]interface{})
	assert.Equal(t, "plenarprotokoll", meta["document_type"])
	assert.Equal(t, 20, meta["wahlperiode"])

	assert.Equal(t, "https://dip.bundestag.de/vorgang/102", records[1].String(domain.FieldURL))

	unextracted := records[2]
	assert.Equal(t, true, unextracted[domain.FieldContentUnextracted])
	assert.Equal(t, "drucksache", unextracted[domain.FieldMetadata].(map[string]interface{})["document_type"])
}

func TestFetchBatch_MissingKey(t *testing.T) {
	a := testAdapter("http://127.0.0.1:1", "")

	_, err := a.FetchBatch(context.Background(), testWindow(t), "")
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
}

func TestFetchBatch_RejectedKeyIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testAdapter(srv.URL, "bad").FetchBatch(context.Background(), testWindow(t), "")
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchBatch_RetriesThenUnavailable(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testAdapter(srv.URL, "k1").FetchBatch(context.Background(), testWindow(t), "")
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchBatch_RecoversAfterTransientFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]interface{}{"cursor": "", "documents": []map[string]interface{}{
			{"id": "1", "titel": "t", "datum": "2024-05-01", "text": "x"},
		}})
	}))
	defer srv.Close()

	batch, err := testAdapter(srv.URL, "k1").FetchBatch(context.Background(), testWindow(t), "")
	require.NoError(t, err)
	assert.Len(t, batch.Records, 1)
	assert.Equal(t, "1|", batch.NextCursor)
}

func TestParseCursor(t *testing.T) {
	idx, c, err := parseCursor("")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Empty(t, c)

	idx, c, err = parseCursor("1|AoJw")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "AoJw", c)

	_, _, err = parseCursor("nope")
	assert.Error(t, err)
}
