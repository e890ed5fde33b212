package domain

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYesterdayWindow_UTC(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)

	w := YesterdayWindow(now, time.UTC)

	assert.Equal(t, "2024-03-09", w.StartDate())
	assert.Equal(t, "2024-03-09", w.EndDate())
	assert.Equal(t, 1, w.Days())
}

func TestYesterdayWindow_LocalBoundary(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:30 UTC on the 10th is already 00:30 on the 11th in Berlin.
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-09", YesterdayWindow(now, time.UTC).StartDate())
	assert.Equal(t, "2024-03-10", YesterdayWindow(now, berlin).StartDate())
}

func TestYesterdayWindow_MonthRollover(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-02-29", YesterdayWindow(now, time.UTC).StartDate())
}

func TestNewWindow_RejectsInverted(t *testing.T) {
	start := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewWindow(start, end)
	assert.Error(t, err)
}

func TestWindow_ContainsIsInclusive(t *testing.T) {
	w, err := ParseWindow("2024-05-01", "2024-05-03", time.UTC)
	require.NoError(t, err)

	assert.True(t, w.Contains(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, 5, 3, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 4, 30, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3, w.Days())
}

func TestWindow_Years(t *testing.T) {
	w, err := ParseWindow("2023-12-30", "2025-01-02", time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []int{2023, 2024, 2025}, w.Years())
}

func TestParseWindow_InvalidDate(t *testing.T) {
	_, err := ParseWindow("2024-13-01", "2024-12-01", time.UTC)
	assert.Error(t, err)
}

func TestDocumentID_Stable(t *testing.T) {
	url := "https://dip.bundestag.de/vorgang/12345"

	first := DocumentID(url)
	assert.Equal(t, first, DocumentID(url))
	assert.Len(t, first, 40)
	assert.NotEqual(t, first, DocumentID(url+"/"))
}

func TestFailureList_ValueScan(t *testing.T) {
	in := FailureList{{Identity: "u1", Stage: StageNormalize, Reason: "missing title"}}

	v, err := in.Value()
	require.NoError(t, err)

	var out FailureList
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-05-02T10:30:00Z":           time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		"2024-05-02T12:30:00+02:00":      time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		"2024-05-02T10:30:00.123456789Z": time.Date(2024, 5, 2, 10, 30, 0, 123456789, time.UTC),
		"2024-05-02T10:30:00":            time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		"2024-05-02":                     time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
		assert.Equal(t, time.UTC, got.Location(), in)
	}

	for _, bad := range []interface{}{"02.05.2024", "", 42, time.Time{}} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, "%v", bad)
	}
}
