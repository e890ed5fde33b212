package domain

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

// DateLayout is the civil-date format used for run parameters and upstream filters.
const DateLayout = "2006-01-02"

// Window is an inclusive range of calendar days. Start and End are midnight
// instants in the same location.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window over the calendar days of start and end, in the
// location of start.
// Parameters:
//   - start: first day of the window (time of day is ignored).
//   - end: last day of the window, inclusive.
//
// Returns:
//   - Window: normalized window.
//   - error: non-nil if end is before start.
func NewWindow(start, end time.Time) (Window, error) {
	loc := start.Location()
	s := midnight(start, loc)
	e := midnight(end.In(loc), loc)
	if e.Before(s) {
		return Window{}, errors.Newf("window end %s is before start %s", e.Format(DateLayout), s.Format(DateLayout))
	}
	return Window{Start: s, End: e}, nil
}

// DayWindow returns the window covering exactly the calendar day of day.
func DayWindow(day time.Time) Window {
	d := midnight(day, day.Location())
	return Window{Start: d, End: d}
}

// YesterdayWindow returns the single-day window for the calendar day before
// now, as observed in loc.
func YesterdayWindow(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	return DayWindow(time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, loc))
}

// ParseWindow parses two YYYY-MM-DD strings in loc.
func ParseWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return Window{}, errors.Wrapf(err, "invalid start date %q", start)
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return Window{}, errors.Wrapf(err, "invalid end date %q", end)
	}
	return NewWindow(s, e)
}

// Contains reports whether t falls on one of the window's days, judged in
// the window's location.
func (w Window) Contains(t time.Time) bool {
	d := midnight(t.In(w.Start.Location()), w.Start.Location())
	return !d.Before(w.Start) && !d.After(w.End)
}

// Years lists the calendar years touched by the window in ascending order.
func (w Window) Years() []int {
	years := make([]int, 0, w.End.Year()-w.Start.Year()+1)
	for y := w.Start.Year(); y <= w.End.Year(); y++ {
		years = append(years, y)
	}
	return years
}

// Days returns the number of calendar days covered.
func (w Window) Days() int {
	return int(math.Round(w.End.Sub(w.Start).Hours()/24)) + 1
}

// StartDate formats the first day as YYYY-MM-DD.
func (w Window) StartDate() string {
	return w.Start.Format(DateLayout)
}

// EndDate formats the last day as YYYY-MM-DD.
func (w Window) EndDate() string {
	return w.End.Format(DateLayout)
}

func (w Window) String() string {
	return w.StartDate() + ".." + w.EndDate()
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
