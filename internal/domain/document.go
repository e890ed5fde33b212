package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// Raw record field names accepted by the normalizer.
const (
	FieldID                 = "id"
	FieldTitle              = "title"
	FieldSource             = "source"
	FieldSourceName         = "source_name"
	FieldPublicationDate    = "publication_date"
	FieldURL                = "url"
	FieldContent            = "content"
	FieldLanguage           = "language"
	FieldMetadata           = "metadata"
	FieldIngestedAt         = "ingested_at"
	FieldContentUnextracted = "content_unextracted"
)

// DefaultLanguage is applied when a record carries no language.
const DefaultLanguage = "de"

// RawRecord is one upstream item as yielded by a source adapter, before
// normalization. Keys are the Field* constants.
type RawRecord map[string]interface{}

// String returns the value under key when it is a string.
func (r RawRecord) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Identity returns the best identifier available for failure reports:
// the supplied id, else the url.
func (r RawRecord) Identity() string {
	if id := r.String(FieldID); id != "" {
		return id
	}
	return r.String(FieldURL)
}

// Metadata is the open-schema facet map stored with every document.
type Metadata map[string]interface{}

// ProtocolDocument is the canonical unit indexed and searched.
type ProtocolDocument struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Source             string    `json:"source"`
	SourceName         string    `json:"source_name"`
	PublicationDate    time.Time `json:"publication_date"`
	URL                string    `json:"url"`
	Content            string    `json:"content"`
	Language           string    `json:"language"`
	Metadata           Metadata  `json:"metadata"`
	IngestedAt         time.Time `json:"ingested_at"`
	ContentUnextracted bool      `json:"content_unextracted,omitempty"`
}

// DocumentID derives the stable document id from its canonical url.
// The same url always yields the same id.
func DocumentID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
