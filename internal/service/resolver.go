package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
)

// IndexState answers what the index currently holds for an id.
// GetDocument returns domain.ErrDocumentNotFound for unknown ids.
type IndexState interface {
	GetDocument(ctx context.Context, id string) (*domain.ProtocolDocument, error)
}

// Resolver classifies normalized documents against the index.
type Resolver struct {
	state IndexState
}

// NewResolver creates a resolver backed by state.
func NewResolver(state IndexState) *Resolver {
	return &Resolver{state: state}
}

// Resolve decides whether doc is new, changed or unchanged.
// Parameters:
//   - ctx: context for the index lookup.
//   - doc: normalized document.
//
// Returns:
//   - domain.Decision: classification.
//   - *domain.ProtocolDocument: the document currently indexed, nil when new.
//   - error: non-nil if the lookup failed.
func (r *Resolver) Resolve(ctx context.Context, doc *domain.ProtocolDocument) (domain.Decision, *domain.ProtocolDocument, error) {
	existing, err := r.state.GetDocument(ctx, doc.ID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.DecisionNew, nil, nil
	}
	if err != nil {
		return "", nil, errors.Wrapf(err, "lookup %s", doc.ID)
	}

	if Fingerprint(existing) == Fingerprint(doc) {
		return domain.DecisionUnchanged, existing, nil
	}
	return domain.DecisionChanged, existing, nil
}

// fingerprintView is every normalized field except ingested_at.
type fingerprintView struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Source             string          `json:"source"`
	SourceName         string          `json:"source_name"`
	PublicationDate    string          `json:"publication_date"`
	URL                string          `json:"url"`
	Content            string          `json:"content"`
	Language           string          `json:"language"`
	Metadata           domain.Metadata `json:"metadata"`
	ContentUnextracted bool            `json:"content_unextracted"`
}

// Fingerprint hashes the canonical JSON of doc without ingested_at.
// Timestamps compare as UTC instants; metadata keys are sorted by
// encoding/json, and numbers compare by their JSON text.
func Fingerprint(doc *domain.ProtocolDocument) string {
	meta := doc.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	view := fingerprintView{
		ID:                 doc.ID,
		Title:              doc.Title,
		Source:             doc.Source,
		SourceName:         doc.SourceName,
		PublicationDate:    doc.PublicationDate.UTC().Format(time.RFC3339Nano),
		URL:                doc.URL,
		Content:            doc.Content,
		Language:           doc.Language,
		Metadata:           meta,
		ContentUnextracted: doc.ContentUnextracted,
	}
	b, err := json.Marshal(view)
	if err != nil {
		// unencodable metadata: hash the encoder error instead
		b = []byte(err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
