package europarl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/source"
)

// DefaultBaseURL is the European Parliament website root.
const DefaultBaseURL = "https://www.europarl.europa.eu"

// Archiver stores raw upstream payloads. storage.ObjectStorage satisfies it.
type Archiver interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetURL(key string) string
}

// DoceoConfig holds doceo HTTP settings.
type DoceoConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// DoceoProber fetches one HTML document from the doceo document store.
type DoceoProber struct {
	client   *resty.Client
	baseURL  string
	archiver Archiver
}

// NewDoceoProber creates a prober. archiver may be nil.
func NewDoceoProber(cfg DoceoConfig, archiver Archiver) *DoceoProber {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/html").
		SetHeader("User-Agent", "protocols-ingest/1.0").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &DoceoProber{client: client, baseURL: baseURL, archiver: archiver}
}

// DocumentURL returns the public HTML url of ref.
func (p *DoceoProber) DocumentURL(ref DocumentRef) string {
	return p.baseURL + "/doceo/document/" + ref.FileName() + ".html"
}

// ArchiveKey returns the object key raw HTML for ref is archived under.
func ArchiveKey(ref DocumentRef) string {
	return "europarl/" + strconv.Itoa(ref.Term) + "/" + ref.FileName() + ".html"
}

// Probe fetches and parses one document.
func (p *DoceoProber) Probe(ctx context.Context, ref DocumentRef) (domain.RawRecord, error) {
	url := p.DocumentURL(ref)

	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", ref.FileName())
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound || code == http.StatusGone:
		return nil, source.ErrSequenceEnd
	case code != http.StatusOK:
		return nil, errors.Newf("fetch %s: status %d", ref.FileName(), code)
	}

	body := resp.Body()
	archiveURL := p.archive(ctx, ref, body)

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", ref.FileName())
	}

	content := extractText(page)
	rec := domain.RawRecord{
		domain.FieldID:         domain.DocumentID(url),
		domain.FieldTitle:      extractTitle(page, ref),
		domain.FieldSource:     sourceTag,
		domain.FieldSourceName: ref.Type,
		domain.FieldURL:        url,
		domain.FieldContent:    content,
		domain.FieldLanguage:   strings.ToLower(ref.Language),
		domain.FieldMetadata: map[string]interface{}{
			"document_type": ref.Type,
			"identifier":    ref.Identifier(),
			"term":          ref.Term,
			"year":          ref.Year,
			"number":        ref.Number,
		},
	}
	if published, ok := extractDate(page, content); ok {
		rec[domain.FieldPublicationDate] = published.Format(time.RFC3339)
	}
	if archiveURL != "" {
		rec[domain.FieldMetadata].(map[string]interface{})["raw_archive_url"] = archiveURL
	}
	if content == "" {
		rec[domain.FieldContentUnextracted] = true
	}
	return rec, nil
}

// archive stores the raw page and returns its archive URL, or "" when the
// page is not archived.
func (p *DoceoProber) archive(ctx context.Context, ref DocumentRef, body []byte) string {
	if p.archiver == nil {
		return ""
	}
	key := ArchiveKey(ref)
	// published doceo documents are immutable once numbered
	if ok, err := p.archiver.Exists(ctx, key); err == nil && ok {
		return p.archiver.GetURL(key)
	}
	if err := p.archiver.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "text/html; charset=utf-8"); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Warn("raw archive upload failed")
		return ""
	}
	return p.archiver.GetURL(key)
}

var whitespace = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func extractTitle(page *goquery.Document, ref DocumentRef) string {
	if og, ok := page.Find(`meta[property="og:title"]`).Attr("content"); ok && collapse(og) != "" {
		return collapse(og)
	}
	if t := collapse(page.Find("title").First().Text()); t != "" {
		return t
	}
	return ref.Identifier()
}

func extractText(page *goquery.Document) string {
	body := page.Find("body")
	body.Find("script, style, noscript, nav, header, footer").Remove()
	return collapse(body.Text())
}

var dateMetaSelectors = []string{
	`meta[name="dcterms.date"]`,
	`meta[name="available"]`,
	`meta[name="date"]`,
	`meta[property="article:published_time"]`,
}

var metaLayouts = []string{
	time.RFC3339,
	domain.DateLayout,
	"02/01/2006",
	"02-01-2006",
}

// longDate matches English long-form dates such as "12 March 2024".
var longDate = regexp.MustCompile(`\b(\d{1,2}) (January|February|March|April|May|June|July|August|September|October|November|December) (\d{4})\b`)

func extractDate(page *goquery.Document, text string) (time.Time, bool) {
	for _, sel := range dateMetaSelectors {
		v, ok := page.Find(sel).Attr("content")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		for _, layout := range metaLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
	}
	if m := longDate.FindString(text); m != "" {
		if t, err := time.Parse("2 January 2006", m); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
