package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"github.com/policyradar/protocols/internal/domain"
)

// OpenSearchConfig holds configuration for the search engine client.
type OpenSearchConfig struct {
	URL        string
	User       string
	Password   string
	Index      string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// OpenSearchRepository talks to the OpenSearch REST API for one index.
type OpenSearchRepository struct {
	client *resty.Client
	index  string
}

// NewOpenSearchRepository creates a new OpenSearchRepository.
// Parameters:
//   - cfg: engine URL, credentials, index name and retry budget.
//
// Returns:
//   - *OpenSearchRepository: repository bound to cfg.Index.
func NewOpenSearchRepository(cfg OpenSearchConfig) *OpenSearchRepository {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		AddRetryCondition(readRetryable)

	if cfg.User != "" && cfg.Password != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}

	return &OpenSearchRepository{client: client, index: cfg.Index}
}

// readRetryable retries transient failures of everything but writes; the
// indexer owns write retries.
func readRetryable(resp *resty.Response, err error) bool {
	if resp != nil && resp.Request != nil && resp.Request.Method == http.MethodPut {
		return false
	}
	if err != nil {
		return !errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
	}
	return transientStatus(resp.StatusCode())
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Index returns the index name.
func (r *OpenSearchRepository) Index() string {
	return r.index
}

func (r *OpenSearchRepository) docPath(id string) string {
	return "/" + r.index + "/_doc/" + url.PathEscape(id)
}

// statusError classifies an unexpected response. 429 and 5xx stay plain
// (retryable); other statuses are marked ErrIndexRejected.
func statusError(op string, resp *resty.Response) error {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	err := errors.Newf("%s: status %d: %s", op, resp.StatusCode(), body)
	if transientStatus(resp.StatusCode()) {
		return err
	}
	return errors.Mark(err, domain.ErrIndexRejected)
}

// Ping reports whether the engine answers.
func (r *OpenSearchRepository) Ping(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Get("/")
	if err != nil {
		return errors.Wrap(err, "ping search engine")
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError("ping search engine", resp)
	}
	return nil
}

// IndexMapping returns the settings and mappings the index is created with.
func IndexMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"index": map[string]interface{}{"number_of_shards": 1, "number_of_replicas": 0},
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"german_custom": map[string]interface{}{
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "german_normalization", "german_stem"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id": map[string]interface{}{"type": "keyword"},
				"title": map[string]interface{}{
					"type":     "text",
					"analyzer": "german_custom",
					"fields":   map[string]interface{}{"raw": map[string]interface{}{"type": "keyword"}},
				},
				"content":             map[string]interface{}{"type": "text", "analyzer": "german_custom"},
				"source":              map[string]interface{}{"type": "keyword"},
				"source_name":         map[string]interface{}{"type": "keyword"},
				"publication_date":    map[string]interface{}{"type": "date"},
				"url":                 map[string]interface{}{"type": "keyword"},
				"language":            map[string]interface{}{"type": "keyword"},
				"ingested_at":         map[string]interface{}{"type": "date"},
				"content_unextracted": map[string]interface{}{"type": "boolean"},
				"metadata": map[string]interface{}{
					"properties": map[string]interface{}{
						"document_type": map[string]interface{}{"type": "keyword"},
					},
				},
			},
		},
	}
}

// EnsureIndex creates the index when it does not exist.
// Returns:
//   - bool: true when the index was created by this call.
//   - error: non-nil if the check or creation failed.
func (r *OpenSearchRepository) EnsureIndex(ctx context.Context) (bool, error) {
	resp, err := r.client.R().SetContext(ctx).Head("/" + r.index)
	if err != nil {
		return false, errors.Wrapf(err, "check index %s", r.index)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
		return true, r.createIndex(ctx)
	default:
		return false, statusError("check index "+r.index, resp)
	}
}

// RecreateIndex drops the index (if present) and creates it again empty.
func (r *OpenSearchRepository) RecreateIndex(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Delete("/" + r.index)
	if err != nil {
		return errors.Wrapf(err, "delete index %s", r.index)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNotFound {
		return statusError("delete index "+r.index, resp)
	}
	return r.createIndex(ctx)
}

func (r *OpenSearchRepository) createIndex(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).SetBody(IndexMapping()).Put("/" + r.index)
	if err != nil {
		return errors.Wrapf(err, "create index %s", r.index)
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError("create index "+r.index, resp)
	}
	return nil
}

// GetDocument fetches a document by id.
// Returns domain.ErrDocumentNotFound when the id (or the index) is unknown.
func (r *OpenSearchRepository) GetDocument(ctx context.Context, id string) (*domain.ProtocolDocument, error) {
	var body struct {
		Found  bool                    `json:"found"`
		Source domain.ProtocolDocument `json:"_source"`
	}
	resp, err := r.client.R().SetContext(ctx).SetResult(&body).Get(r.docPath(id))
	if err != nil {
		return nil, errors.Wrapf(err, "get document %s", id)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		if !body.Found {
			return nil, errors.Wrapf(domain.ErrDocumentNotFound, "%s", id)
		}
		return &body.Source, nil
	case http.StatusNotFound:
		return nil, errors.Wrapf(domain.ErrDocumentNotFound, "%s", id)
	default:
		return nil, statusError("get document "+id, resp)
	}
}

// UpsertDocument writes doc under its id, replacing any previous version.
func (r *OpenSearchRepository) UpsertDocument(ctx context.Context, doc *domain.ProtocolDocument) error {
	resp, err := r.client.R().SetContext(ctx).SetBody(doc).Put(r.docPath(doc.ID))
	if err != nil {
		return errors.Wrapf(err, "upsert document %s", doc.ID)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return statusError("upsert document "+doc.ID, resp)
	}
}

// Refresh makes recent writes visible to search.
func (r *OpenSearchRepository) Refresh(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Post("/" + r.index + "/_refresh")
	if err != nil {
		return errors.Wrapf(err, "refresh index %s", r.index)
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError("refresh index "+r.index, resp)
	}
	return nil
}

// SearchHit is one scored document.
type SearchHit struct {
	ID        string                  `json:"_id"`
	Score     float64                 `json:"_score"`
	Source    domain.ProtocolDocument `json:"_source"`
	Highlight map[string][]string     `json:"highlight"`
}

// Bucket is one terms-aggregation bucket.
type Bucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// SearchResult is the decoded search response.
type SearchResult struct {
	TookMs       int64
	Total        int64
	Hits         []SearchHit
	Aggregations map[string][]Bucket
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []SearchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []Bucket `json:"buckets"`
	} `json:"aggregations"`
}

// Search runs a query DSL body against the index.
func (r *OpenSearchRepository) Search(ctx context.Context, query map[string]interface{}) (*SearchResult, error) {
	resp, err := r.client.R().SetContext(ctx).SetBody(query).Post("/" + r.index + "/_search")
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError("search", resp)
	}

	var raw searchResponse
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}

	out := &SearchResult{
		TookMs:       raw.Took,
		Total:        raw.Hits.Total.Value,
		Hits:         raw.Hits.Hits,
		Aggregations: make(map[string][]Bucket, len(raw.Aggregations)),
	}
	for name, agg := range raw.Aggregations {
		out.Aggregations[name] = agg.Buckets
	}
	return out, nil
}
