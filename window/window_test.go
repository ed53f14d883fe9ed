package window

import (
	"testing"
	"time"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestWindowRoundTripLaw(t *testing.T) {
	kinds := []Kind{Hourly, Daily, Monthly, Yearly}
	ts := mustUTC("2026-03-15T14:23:07.123456Z")

	for _, k := range kinds {
		start, end := Window(ts, k)
		if ts.Before(start) || !ts.Before(end) {
			t.Fatalf("%s: ts %v not within [%v, %v)", k, ts, start, end)
		}
		start2, end2 := Window(start, k)
		if !start2.Equal(start) || !end2.Equal(end) {
			t.Fatalf("%s: window(start) != window(ts): got [%v,%v) want [%v,%v)", k, start2, end2, start, end)
		}
	}
}

func TestHourlyWindow(t *testing.T) {
	ts := mustUTC("2026-07-30T09:45:12Z")
	start, end := Window(ts, Hourly)
	want := mustUTC("2026-07-30T09:00:00Z")
	if !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start, want)
	}
	if !end.Equal(want.Add(time.Hour)) {
		t.Fatalf("end = %v, want %v", end, want.Add(time.Hour))
	}
}

func TestMonthlyWindowCrossesYear(t *testing.T) {
	ts := mustUTC("2026-12-31T23:59:59Z")
	start, end := Window(ts, Monthly)
	if !start.Equal(mustUTC("2026-12-01T00:00:00Z")) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(mustUTC("2027-01-01T00:00:00Z")) {
		t.Fatalf("end = %v", end)
	}
}

func TestYearlyWindow(t *testing.T) {
	ts := mustUTC("2026-07-30T00:00:00Z")
	start, end := Window(ts, Yearly)
	if !start.Equal(mustUTC("2026-01-01T00:00:00Z")) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(mustUTC("2027-01-01T00:00:00Z")) {
		t.Fatalf("end = %v", end)
	}
}

func TestWireEnd(t *testing.T) {
	end := mustUTC("2026-07-30T10:00:00Z")
	got := WireEnd(end)
	want := end.Add(-time.Microsecond)
	if !got.Equal(want) {
		t.Fatalf("WireEnd = %v, want %v", got, want)
	}
}

func TestNextAdvancesByWindowEnd(t *testing.T) {
	// Regression guard for the fixed-duration iteration bug: stepping by
	// calendar month, not by a fixed duration, so January (31d) and
	// February (28/29d) both land on the correct next boundary.
	_, janEnd := Window(mustUTC("2026-01-15T00:00:00Z"), Monthly)
	febStart, febEnd := Next(janEnd, Monthly)

	if !febStart.Equal(mustUTC("2026-02-01T00:00:00Z")) {
		t.Fatalf("febStart = %v", febStart)
	}
	if !febEnd.Equal(mustUTC("2026-03-01T00:00:00Z")) {
		t.Fatalf("febEnd = %v", febEnd)
	}
}

func TestCounterSuffixNonHourlyFixesHourToZero(t *testing.T) {
	start := mustUTC("2026-07-30T14:00:00Z")
	if got := CounterSuffix(start, Hourly); got != "2026-07-30-14" {
		t.Fatalf("hourly suffix = %q", got)
	}
	if got := CounterSuffix(start, Daily); got != "2026-07-30-00" {
		t.Fatalf("daily suffix = %q", got)
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("fortnightly"); err == nil {
		t.Fatal("expected error for unrecognized kind")
	}
	k, err := ParseKind("hourly")
	if err != nil || k != Hourly {
		t.Fatalf("ParseKind(hourly) = %v, %v", k, err)
	}
}
