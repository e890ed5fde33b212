package service

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/domain"
)

var fixedNow = time.Date(2024, 5, 3, 6, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func validRecord() domain.RawRecord {
	return domain.RawRecord{
		domain.FieldTitle:           "Plenarprotokoll 20/170",
		domain.FieldSource:          "bundestag",
		domain.FieldPublicationDate: "2024-05-02",
		domain.FieldURL:             "https://dip.bundestag.de/vorgang/170",
		domain.FieldContent:         "Die Sitzung ist eröffnet.",
	}
}

func with(rec domain.RawRecord, key string, value interface{}) domain.RawRecord {
	out := domain.RawRecord{}
	for k, v := range rec {
		out[k] = v
	}
	if value == nil {
		delete(out, key)
	} else {
		out[key] = value
	}
	return out
}

// TestNormalize_Defaults verifies derived id and default fields.
func TestNormalize_Defaults(t *testing.T) {
	doc, err := NewNormalizer(fixedClock).Normalize(validRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.ID != domain.DocumentID("https://dip.bundestag.de/vorgang/170") {
		t.Errorf("id = %s, want sha1 of url", doc.ID)
	}
	if doc.SourceName != "bundestag" {
		t.Errorf("source_name = %q, want source tag", doc.SourceName)
	}
	if doc.Language != "de" {
		t.Errorf("language = %q, want de", doc.Language)
	}
	if !doc.IngestedAt.Equal(fixedNow) {
		t.Errorf("ingested_at = %s, want %s", doc.IngestedAt, fixedNow)
	}
	if !doc.PublicationDate.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("publication_date = %s", doc.PublicationDate)
	}
	if doc.Metadata == nil {
		t.Error("metadata should default to an empty map")
	}
}

// TestNormalize_KeepsSuppliedValues verifies supplied optional fields win.
func TestNormalize_KeepsSuppliedValues(t *testing.T) {
	rec := validRecord()
	rec[domain.FieldID] = "dip-170"
	rec[domain.FieldSourceName] = "German Bundestag"
	rec[domain.FieldLanguage] = "en"
	rec[domain.FieldIngestedAt] = "2024-05-01T10:00:00Z"
	rec[domain.FieldMetadata] = map[string]string{"document_type": "plenarprotokoll"}

	doc, err := NewNormalizer(fixedClock).Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "dip-170" || doc.SourceName != "German Bundestag" || doc.Language != "en" {
		t.Errorf("supplied values not kept: %+v", doc)
	}
	if !doc.IngestedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("ingested_at = %s", doc.IngestedAt)
	}
	if doc.Metadata["document_type"] != "plenarprotokoll" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

// TestNormalize_RequiredFields verifies every required field is enforced.
func TestNormalize_RequiredFields(t *testing.T) {
	testCases := []struct {
		name  string
		rec   domain.RawRecord
		field string
	}{
		{name: "missing title", rec: with(validRecord(), domain.FieldTitle, nil), field: domain.FieldTitle},
		{name: "blank title", rec: with(validRecord(), domain.FieldTitle, "   "), field: domain.FieldTitle},
		{name: "missing source", rec: with(validRecord(), domain.FieldSource, nil), field: domain.FieldSource},
		{name: "missing url", rec: with(validRecord(), domain.FieldURL, nil), field: domain.FieldURL},
		{name: "numeric url", rec: with(validRecord(), domain.FieldURL, 42), field: domain.FieldURL},
		{name: "missing content", rec: with(validRecord(), domain.FieldContent, nil), field: domain.FieldContent},
		{name: "empty content", rec: with(validRecord(), domain.FieldContent, ""), field: domain.FieldContent},
		{name: "missing date", rec: with(validRecord(), domain.FieldPublicationDate, nil), field: domain.FieldPublicationDate},
		{name: "bad date", rec: with(validRecord(), domain.FieldPublicationDate, "02.05.2024"), field: domain.FieldPublicationDate},
		{name: "bad ingested_at", rec: with(validRecord(), domain.FieldIngestedAt, "yesterday"), field: domain.FieldIngestedAt},
		{name: "metadata not a map", rec: with(validRecord(), domain.FieldMetadata, []string{"x"}), field: domain.FieldMetadata},
	}

	n := NewNormalizer(fixedClock)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(tc.rec)
			if !errors.Is(err, domain.ErrMalformedDocument) {
				t.Fatalf("err = %v, want ErrMalformedDocument", err)
			}
			var mde *domain.MalformedDocumentError
			if !errors.As(err, &mde) {
				t.Fatalf("err %T is not a MalformedDocumentError", err)
			}
			if mde.Field != tc.field {
				t.Errorf("field = %q, want %q", mde.Field, tc.field)
			}
		})
	}
}

// TestNormalize_UnextractedContent verifies empty content is allowed when flagged.
func TestNormalize_UnextractedContent(t *testing.T) {
	rec := with(validRecord(), domain.FieldContent, "")
	rec[domain.FieldContentUnextracted] = true

	doc, err := NewNormalizer(fixedClock).Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !doc.ContentUnextracted || doc.Content != "" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

// TestNormalize_IdentityStable verifies the same url always yields the same id.
func TestNormalize_IdentityStable(t *testing.T) {
	n := NewNormalizer(time.Now)
	a, err := n.Normalize(validRecord())
	if err != nil {
		t.Fatal(err)
	}
	b, err := n.Normalize(with(validRecord(), domain.FieldTitle, "Another title"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Errorf("ids differ: %s vs %s", a.ID, b.ID)
	}
}
