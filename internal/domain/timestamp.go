package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Accepted timestamp layouts, tried in order. Layouts without a zone are
// read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTimestamp converts a raw record value into a UTC instant. It accepts
// time.Time or a string in one of the accepted layouts.
func ParseTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return t.UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, errors.Newf("unrecognized timestamp %q", t)
	default:
		return time.Time{}, errors.Newf("unsupported timestamp type %T", v)
	}
}
