package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/policyradar/protocols/internal/domain"
)

// Normalizer turns raw adapter records into canonical ProtocolDocuments.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer. A nil clock uses time.Now.
func NewNormalizer(clock func() time.Time) *Normalizer {
	if clock == nil {
		clock = time.Now
	}
	return &Normalizer{now: clock}
}

// Normalize validates raw and fills defaults.
// Parameters:
//   - raw: record as yielded by a source adapter.
//
// Returns:
//   - *domain.ProtocolDocument: canonical document.
//   - error: a domain.MalformedDocumentError when a required field is
//     missing, empty, or of the wrong type.
func (n *Normalizer) Normalize(raw domain.RawRecord) (*domain.ProtocolDocument, error) {
	src, _ := raw[domain.FieldSource].(string)

	unextracted, err := optionalBool(raw, domain.FieldContentUnextracted, src)
	if err != nil {
		return nil, err
	}

	title, err := requiredString(raw, domain.FieldTitle, src)
	if err != nil {
		return nil, err
	}
	sourceTag, err := requiredString(raw, domain.FieldSource, src)
	if err != nil {
		return nil, err
	}
	url, err := requiredString(raw, domain.FieldURL, src)
	if err != nil {
		return nil, err
	}

	var content string
	if unextracted {
		content, err = optionalString(raw, domain.FieldContent, src)
	} else {
		content, err = requiredString(raw, domain.FieldContent, src)
	}
	if err != nil {
		return nil, err
	}

	pubRaw, ok := raw[domain.FieldPublicationDate]
	if !ok || pubRaw == nil || pubRaw == "" {
		return nil, domain.NewMalformedDocument(domain.FieldPublicationDate, src, "is missing")
	}
	published, err := domain.ParseTimestamp(pubRaw)
	if err != nil {
		return nil, domain.NewMalformedDocument(domain.FieldPublicationDate, src, "is not a timestamp: "+err.Error())
	}

	ingested := n.now().UTC()
	if v, ok := raw[domain.FieldIngestedAt]; ok && v != nil && v != "" {
		ingested, err = domain.ParseTimestamp(v)
		if err != nil {
			return nil, domain.NewMalformedDocument(domain.FieldIngestedAt, src, "is not a timestamp: "+err.Error())
		}
	}

	id, err := optionalString(raw, domain.FieldID, src)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = domain.DocumentID(url)
	}

	sourceName, err := optionalString(raw, domain.FieldSourceName, src)
	if err != nil {
		return nil, err
	}
	if sourceName == "" {
		sourceName = sourceTag
	}

	language, err := optionalString(raw, domain.FieldLanguage, src)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = domain.DefaultLanguage
	}

	metadata, err := toMetadata(raw[domain.FieldMetadata], src)
	if err != nil {
		return nil, err
	}

	return &domain.ProtocolDocument{
		ID:                 id,
		Title:              title,
		Source:             sourceTag,
		SourceName:         sourceName,
		PublicationDate:    published,
		URL:                url,
		Content:            content,
		Language:           language,
		Metadata:           metadata,
		IngestedAt:         ingested,
		ContentUnextracted: unextracted,
	}, nil
}

func requiredString(raw domain.RawRecord, field, src string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", domain.NewMalformedDocument(field, src, "is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", domain.NewMalformedDocument(field, src, fmt.Sprintf("must be a string, got %T", v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.NewMalformedDocument(field, src, "is empty")
	}
	return s, nil
}

func optionalString(raw domain.RawRecord, field, src string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", domain.NewMalformedDocument(field, src, fmt.Sprintf("must be a string, got %T", v))
	}
	return strings.TrimSpace(s), nil
}

func optionalBool(raw domain.RawRecord, field, src string) (bool, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, domain.NewMalformedDocument(field, src, fmt.Sprintf("must be a bool, got %T", v))
	}
	return b, nil
}

func toMetadata(v interface{}, src string) (domain.Metadata, error) {
	switch m := v.(type) {
	case nil:
		return domain.Metadata{}, nil
	case domain.Metadata:
		return copyMetadata(m), nil
	case map[string]interface{}:
		return copyMetadata(m), nil
	case map[string]string:
		out := make(domain.Metadata, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	default:
		return nil, domain.NewMalformedDocument(domain.FieldMetadata, src, fmt.Sprintf("must be a mapping, got %T", v))
	}
}

func copyMetadata(m map[string]interface{}) domain.Metadata {
	out := make(domain.Metadata, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}
