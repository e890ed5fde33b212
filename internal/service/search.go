package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	snippetRunes    = 300

	// OpenSearch index.max_result_window default; from+size past it is rejected.
	maxResultWindow = 10000
)

// ErrInvalidSearch marks a request the caller must fix.
var ErrInvalidSearch = errors.New("invalid search request")

// SearchBackend runs query DSL bodies and id lookups against the index.
type SearchBackend interface {
	Search(ctx context.Context, query map[string]interface{}) (*repository.SearchResult, error)
	GetDocument(ctx context.Context, id string) (*domain.ProtocolDocument, error)
}

// SearchRequest is a full-text query with optional facets.
type SearchRequest struct {
	Query         string   `json:"q" form:"q"`
	Sources       []string `json:"sources" form:"source"`
	DocumentTypes []string `json:"document_types" form:"doc_type"`
	DateFrom      string   `json:"date_from" form:"date_from"`
	DateTo        string   `json:"date_to" form:"date_to"`
	Page          int      `json:"page" form:"page"`
	Size          int      `json:"size" form:"size"`
}

// SearchResult is one hit as returned to API clients.
type SearchResult struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Source          string    `json:"source"`
	SourceName      string    `json:"source_name,omitempty"`
	DocumentType    string    `json:"document_type,omitempty"`
	PublicationDate time.Time `json:"publication_date"`
	URL             string    `json:"url"`
	Snippet         string    `json:"snippet"`
	Score           float64   `json:"score"`
}

// FacetBucket is one aggregation bucket.
type FacetBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// SearchResponse is a page of results plus facet counts.
type SearchResponse struct {
	Total   int64                    `json:"total"`
	Page    int                      `json:"page"`
	Size    int                      `json:"size"`
	TookMs  int64                    `json:"took_ms"`
	Results []SearchResult           `json:"results"`
	Facets  map[string][]FacetBucket `json:"facets"`
}

// SearchService answers full-text queries over indexed protocols.
type SearchService struct {
	backend SearchBackend
}

// NewSearchService creates a new search service.
func NewSearchService(backend SearchBackend) *SearchService {
	return &SearchService{backend: backend}
}

// Normalize applies paging defaults and validates dates and the paging depth.
func (req *SearchRequest) Normalize() error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Size < 1 {
		req.Size = defaultPageSize
	}
	if req.Size > maxPageSize {
		req.Size = maxPageSize
	}
	if req.Page > maxResultWindow/req.Size {
		return errors.Mark(errors.Newf("page %d exceeds the first %d results", req.Page, maxResultWindow), ErrInvalidSearch)
	}
	for _, d := range []string{req.DateFrom, req.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return errors.Mark(errors.Newf("date %q must be YYYY-MM-DD", d), ErrInvalidSearch)
		}
	}
	return nil
}

// BuildQuery renders req as an OpenSearch query body.
func BuildQuery(req SearchRequest) map[string]interface{} {
	var must []interface{}
	filters := []interface{}{}

	if req.Query != "" {
		fields := []string{"title^2", "content"}
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					// every term, across fields
					map[string]interface{}{"multi_match": map[string]interface{}{
						"query": req.Query, "fields": fields, "type": "cross_fields", "operator": "and", "boost": 3,
					}},
					map[string]interface{}{"match_phrase": map[string]interface{}{
						"title": map[string]interface{}{"query": req.Query, "boost": 4, "slop": 2},
					}},
					map[string]interface{}{"match_phrase": map[string]interface{}{
						"content": map[string]interface{}{"query": req.Query, "boost": 2, "slop": 2},
					}},
					// weak typo-tolerant fallback
					map[string]interface{}{"multi_match": map[string]interface{}{
						"query": req.Query, "fields": fields, "type": "best_fields", "operator": "or",
						"fuzziness": "AUTO", "fuzzy_transpositions": true, "boost": 0.2,
					}},
				},
				"minimum_should_match": 1,
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	if len(req.Sources) > 0 {
		filters = append(filters, map[string]interface{}{"terms": map[string]interface{}{"source": req.Sources}})
	}
	if len(req.DocumentTypes) > 0 {
		filters = append(filters, map[string]interface{}{"terms": map[string]interface{}{"metadata.document_type": req.DocumentTypes}})
	}
	if req.DateFrom != "" || req.DateTo != "" {
		rng := map[string]interface{}{}
		if req.DateFrom != "" {
			rng["gte"] = req.DateFrom
		}
		if req.DateTo != "" {
			rng["lte"] = req.DateTo
		}
		filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"publication_date": rng}})
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must, "filter": filters},
		},
		"from": (req.Page - 1) * req.Size,
		"size": req.Size,
		"aggs": map[string]interface{}{
			"sources":   map[string]interface{}{"terms": map[string]interface{}{"field": "source"}},
			"doc_types": map[string]interface{}{"terms": map[string]interface{}{"field": "metadata.document_type"}},
		},
		"_source": []string{"id", "title", "source", "source_name", "publication_date", "url", "content", "metadata.document_type"},
	}

	if req.Query != "" {
		body["highlight"] = map[string]interface{}{
			"pre_tags":            []string{"<mark>"},
			"post_tags":           []string{"</mark>"},
			"require_field_match": false,
			"fields": map[string]interface{}{
				"content": map[string]interface{}{
					"fragment_size": 180, "number_of_fragments": 1, "no_match_size": 180, "order": "score",
				},
				"title": map[string]interface{}{"number_of_fragments": 0},
			},
		}
	}
	return body
}

// Search runs req and shapes the response.
// Parameters:
//   - ctx: context for the engine call.
//   - req: query, facets and paging; defaults are applied in place.
//
// Returns:
//   - *SearchResponse: page of results with facet counts.
//   - error: ErrInvalidSearch for bad input, otherwise engine errors.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	res, err := s.backend.Search(ctx, BuildQuery(req))
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	out := &SearchResponse{
		Total:   res.Total,
		Page:    req.Page,
		Size:    req.Size,
		TookMs:  res.TookMs,
		Results: make([]SearchResult, 0, len(res.Hits)),
		Facets: map[string][]FacetBucket{
			"sources":        facet(res.Aggregations["sources"]),
			"document_types": facet(res.Aggregations["doc_types"]),
		},
	}
	for _, h := range res.Hits {
		id := h.Source.ID
		if id == "" {
			id = h.ID
		}
		docType, _ := h.Source.Metadata["document_type"].(string)
		out.Results = append(out.Results, SearchResult{
			ID:              id,
			Title:           h.Source.Title,
			Source:          h.Source.Source,
			SourceName:      h.Source.SourceName,
			DocumentType:    docType,
			PublicationDate: h.Source.PublicationDate,
			URL:             h.Source.URL,
			Snippet:         snippet(h.Highlight, h.Source.Content),
			Score:           h.Score,
		})
	}

	logger.With(logger.Fields{
		"query":           req.Query,
		logger.FieldCount: len(out.Results),
		"total":           out.Total,
	}).WithDuration(res.TookMs).Debug(ctx, "Search completed")

	return out, nil
}

// GetDocument returns one indexed document.
func (s *SearchService) GetDocument(ctx context.Context, id string) (*domain.ProtocolDocument, error) {
	return s.backend.GetDocument(ctx, id)
}

// snippet prefers highlighted content, then highlighted title, then the
// start of the content.
func snippet(highlight map[string][]string, content string) string {
	if frags := highlight["content"]; len(frags) > 0 {
		return frags[0]
	}
	if frags := highlight["title"]; len(frags) > 0 {
		return frags[0]
	}
	if utf8.RuneCountInString(content) <= snippetRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:snippetRunes]) + "…"
}

func facet(buckets []repository.Bucket) []FacetBucket {
	out := make([]FacetBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, FacetBucket{Key: b.Key, Count: b.DocCount})
	}
	return out
}
