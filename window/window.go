// Package window implements the time-window calculus shared by the
// counter cache, the aggregation engine, and the quota evaluator: given an
// instant and a period kind, it derives the canonical half-open window
// [start, end) that instant falls in.
package window

import (
	"fmt"
	"time"
)

// Kind identifies one of the four supported rollup periods.
type Kind string

const (
	Hourly  Kind = "hourly"
	Daily   Kind = "daily"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
)

// Valid reports whether k is one of the four recognized period kinds.
func (k Kind) Valid() bool {
	switch k {
	case Hourly, Daily, Monthly, Yearly:
		return true
	}
	return false
}

// ParseKind parses a lowercase period name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("window: unrecognized period %q", s)
	}
	return k, nil
}

// Window returns the half-open [start, end) window of kind k that contains
// ts. All computation is performed in UTC; there is no DST adjustment, since
// UTC has none. The function is total for every representable time.Time.
func Window(ts time.Time, k Kind) (start, end time.Time) {
	ts = ts.UTC()
	switch k {
	case Hourly:
		start = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, time.UTC)
		end = start.Add(time.Hour)
	case Daily:
		start = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
	case Monthly:
		start = time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	case Yearly:
		start = time.Date(ts.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(1, 0, 0)
	default:
		// Unreachable for any Kind produced by ParseKind; callers that
		// construct a Kind by hand get the hourly window rather than a panic.
		start = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, time.UTC)
		end = start.Add(time.Hour)
	}
	return start, end
}

// WireEnd converts a half-open window's exclusive end into the
// closed-closed convention used at the persistence and serialization
// boundary: one microsecond before end. Internal comparisons must never
// use this value — it exists solely for the one call site that writes or
// reads the wire/DB representation of a window's end.
func WireEnd(end time.Time) time.Time {
	return end.Add(-time.Microsecond)
}

// Next derives the window of kind k immediately following the window whose
// exclusive end is windowEnd. The aggregation engine uses this to advance
// window-to-window by re-deriving each boundary from the previous window's
// end, rather than by a fixed duration step — a fixed step over-, or
// under-shoots calendar months and years.
func Next(windowEnd time.Time, k Kind) (start, end time.Time) {
	return Window(windowEnd, k)
}

// CounterSuffix renders the key-format suffix used by the counter cache
// (YYYY-MM-DD-HH), derived from a window's start — never from the raw
// timestamp that produced it. Non-hourly periods fix the hour field at 00.
func CounterSuffix(windowStart time.Time, k Kind) string {
	windowStart = windowStart.UTC()
	hour := windowStart.Hour()
	if k != Hourly {
		hour = 0
	}
	return fmt.Sprintf("%04d-%02d-%02d-%02d", windowStart.Year(), windowStart.Month(), windowStart.Day(), hour)
}
