package bundestag

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/source"
)

const (
	sourceTag   = "bundestag"
	displayName = "German Bundestag"

	// DefaultBaseURL is the public DIP API root.
	DefaultBaseURL = "https://search.dip.bundestag.de/api/v1"

	vorgangURL = "https://dip.bundestag.de/vorgang/"
)

// endpoint is one DIP text collection, walked in order.
type endpoint struct {
	path         string
	documentType string
}

var endpoints = []endpoint{
	{path: "/plenarprotokoll-text", documentType: "plenarprotokoll"},
	{path: "/drucksache-text", documentType: "drucksache"},
}

// Config holds DIP client settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// Adapter pages through the Bundestag DIP full-text endpoints.
type Adapter struct {
	client *resty.Client
	apiKey string
}

// NewAdapter creates a new DIP adapter.
// Parameters:
//   - cfg: DIP client configuration; empty BaseURL uses DefaultBaseURL.
//
// Returns:
//   - *Adapter: adapter ready to fetch.
func NewAdapter(cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "ApiKey "+cfg.APIKey).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(retryable)

	return &Adapter{client: client, apiKey: cfg.APIKey}
}

// retryable retries network errors, 429 and 5xx. Auth failures are final.
func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (a *Adapter) Name() string        { return sourceTag }
func (a *Adapter) DisplayName() string { return displayName }
func (a *Adapter) Kind() source.Kind   { return source.KindPaginated }

// dipPage is one page of a DIP list response.
type dipPage struct {
	NumFound  int           `json:"numFound"`
	Cursor    string        `json:"cursor"`
	Documents []dipDocument `json:"documents"`
}

type dipDocument struct {
	ID             string `json:"id"`
	Titel          string `json:"titel"`
	Datum          string `json:"datum"`
	Text           string `json:"text"`
	Dokumentnummer string `json:"dokumentnummer"`
	Dokumentart    string `json:"dokumentart"`
	Wahlperiode    int    `json:"wahlperiode"`
	Herausgeber    string `json:"herausgeber"`
	Fundstelle     *struct {
		PDFURL string `json:"pdf_url"`
	} `json:"fundstelle"`
}

// FetchBatch fetches one DIP page. The cursor is "<endpoint-index>|<dip-cursor>".
func (a *Adapter) FetchBatch(ctx context.Context, window domain.Window, cursor string) (*source.Batch, error) {
	if a.apiKey == "" {
		return nil, errors.Mark(errors.New("DIP API key missing; set DIP_API_KEY"), domain.ErrAuthentication)
	}

	idx, dipCursor, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	if idx >= len(endpoints) {
		return &source.Batch{}, nil
	}
	ep := endpoints[idx]

	params := map[string]string{
		"format":        "json",
		"f.datum.start": window.StartDate(),
		"f.datum.end":   window.EndDate(),
	}
	if dipCursor != "" {
		params["cursor"] = dipCursor
	}

	var page dipPage
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&page).
		Get(ep.path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "DIP request cancelled")
		}
		return nil, errors.Mark(errors.Wrapf(err, "DIP %s unreachable", ep.path), domain.ErrUpstreamUnavailable)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, errors.Mark(errors.Newf("DIP rejected API key: status %d", code), domain.ErrAuthentication)
	case code != http.StatusOK:
		return nil, errors.Mark(errors.Newf("DIP %s: status %d", ep.path, code), domain.ErrUpstreamUnavailable)
	}

	batch := &source.Batch{Records: make([]domain.RawRecord, 0, len(page.Documents))}
	for _, d := range page.Documents {
		batch.Records = append(batch.Records, toRecord(d, ep.documentType))
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(batch.Records),
		"endpoint":        ep.path,
		"num_found":       page.NumFound,
	}).Debug(ctx, "DIP page fetched")

	// DIP repeats the last cursor once the result set is exhausted.
	if len(page.Documents) == 0 || page.Cursor == "" || page.Cursor == dipCursor {
		if idx+1 < len(endpoints) {
			batch.NextCursor = formatCursor(idx+1, "")
		}
		return batch, nil
	}
	batch.NextCursor = formatCursor(idx, page.Cursor)
	return batch, nil
}

func toRecord(d dipDocument, documentType string) domain.RawRecord {
	url := ""
	if d.Fundstelle != nil {
		url = d.Fundstelle.PDFURL
	}
	if url == "" && d.ID != "" {
		url = vorgangURL + d.ID
	}

	metadata := map[string]interface{}{"document_type": documentType}
	if d.Dokumentnummer != "" {
		metadata["dokumentnummer"] = d.Dokumentnummer
	}
	if d.Dokumentart != "" {
		metadata["dokumentart"] = d.Dokumentart
	}
	if d.Wahlperiode > 0 {
		metadata["wahlperiode"] = d.Wahlperiode
	}
	if d.Herausgeber != "" {
		metadata["herausgeber"] = d.Herausgeber
	}

	rec := domain.RawRecord{
		domain.FieldID:              d.ID,
		domain.FieldTitle:           d.Titel,
		domain.FieldSource:          sourceTag,
		domain.FieldSourceName:      displayName,
		domain.FieldPublicationDate: d.Datum,
		domain.FieldURL:             url,
		domain.FieldContent:         strings.TrimSpace(d.Text),
		domain.FieldLanguage:        domain.DefaultLanguage,
		domain.FieldMetadata:        metadata,
	}
	if rec.String(domain.FieldContent) == "" {
		rec[domain.FieldContentUnextracted] = true
	}
	return rec
}

func parseCursor(cursor string) (int, string, error) {
	if cursor == "" {
		return 0, "", nil
	}
	head, tail, ok := strings.Cut(cursor, "|")
	if !ok {
		return 0, "", errors.Newf("malformed DIP cursor %q", cursor)
	}
	idx, err := strconv.Atoi(head)
	if err != nil || idx < 0 {
		return 0, "", errors.Newf("malformed DIP cursor %q", cursor)
	}
	return idx, tail, nil
}

func formatCursor(idx int, dipCursor string) string {
	return strconv.Itoa(idx) + "|" + dipCursor
}
