/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Folds raw events into per-window rollup rows and
             publishes them to the aggregate cache. Compute walks
             windows in order, re-deriving each boundary from the
             previous window's end rather than a fixed duration, so
             calendar months and years land on the correct next
             start. GetAggregates reads the store first and falls
             back to computing on the fly, bounded to 744 windows.
Root Cause:  Aggregation Engine component (4.D). The fixed-duration
             walk is the source system's month-iteration bug; this
             redesign fixes it by construction.
Context:     Upsert is absolute, not incremental, so recomputing a
             window twice is idempotent — safe to run on a timer
             concurrently with live ingest.
Suitability: L3 — the interesting part is the iteration and the
             fallback cap, not the SQL itself.
──────────────────────────────────────────────────────────────
*/

package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/metrics"
	"github.com/moasakthi/metering/store"
	"github.com/moasakthi/metering/window"
)

// maxFallbackWindows bounds the on-the-fly compute fallback to one month of
// hourly windows; a request spanning more is rejected rather than silently
// truncated.
const maxFallbackWindows = 744

// Engine folds raw events into aggregate rows and answers aggregate queries.
type Engine struct {
	events     *store.EventRepository
	aggregates *store.AggregateRepository
	cache      *cache.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewEngine constructs an aggregation Engine. m may be nil, in which case
// run metrics are not recorded — callers that don't need them (tests) can
// omit it.
func NewEngine(events *store.EventRepository, aggregates *store.AggregateRepository, c *cache.Client, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{events: events, aggregates: aggregates, cache: c, logger: logger, metrics: m}
}

// Compute folds events into rollups for every window of kind k overlapping
// [from, to), walking window-to-window by re-deriving each boundary from
// the previous window's end. It upserts one row per (tenant, resource,
// feature) observed in each window and publishes the result to the cache.
func (e *Engine) Compute(ctx context.Context, k window.Kind, from, to time.Time) (results []store.Aggregate, err error) {
	if !to.After(from) {
		return nil, nil
	}

	if e.metrics != nil {
		timer := prometheus.NewTimer(e.metrics.AggregationDur)
		defer func() {
			timer.ObserveDuration()
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			e.metrics.AggregationRuns.WithLabelValues(string(k), outcome).Inc()
		}()
	}

	start, end := window.Window(from, k)

	for start.Before(to) {
		groups, groupErr := e.events.GroupEventsInWindow(ctx, start, end)
		if groupErr != nil {
			err = fmt.Errorf("aggregate: group events for window [%s,%s): %w", start, end, groupErr)
			return nil, err
		}

		for _, g := range groups {
			// WireEnd converts the half-open end to the closed-closed
			// inset at this persistence/serialization boundary; start and
			// end stay half-open for the iteration above.
			row := store.Aggregate{
				TenantID:      g.TenantID,
				Resource:      g.Resource,
				Feature:       g.Feature,
				WindowType:    string(k),
				WindowStart:   start,
				WindowEnd:     window.WireEnd(end),
				TotalQuantity: g.TotalQuantity,
				EventCount:    g.EventCount,
				UpdatedAt:     time.Now().UTC(),
			}
			if upsertErr := e.aggregates.Upsert(ctx, row); upsertErr != nil {
				err = fmt.Errorf("aggregate: upsert window [%s,%s) %s/%s/%s: %w", start, end, g.TenantID, g.Resource, g.Feature, upsertErr)
				return nil, err
			}
			if err := e.cache.SetAggregate(ctx, g.TenantID, g.Resource, g.Feature, k, start, g.TotalQuantity, g.EventCount); err != nil {
				// Cache publish is best-effort — the durable row is authoritative.
				e.logger.Warn().Err(err).Msg("aggregate: publish to cache failed")
			}
			results = append(results, row)
		}

		// Advance to the next window by re-deriving it from this window's
		// end, never by a fixed duration — this is what keeps February and
		// a 31-day January both landing on the correct next boundary.
		start, end = window.Next(end, k)
	}

	return results, nil
}

// GetAggregates reads the durable store for rows matching f; on a zero-row
// result it computes on the fly and filters in-process, bounded to
// maxFallbackWindows.
func (e *Engine) GetAggregates(ctx context.Context, f store.AggregateFilters) ([]store.Aggregate, store.Summary, error) {
	k, err := window.ParseKind(f.WindowType)
	if err != nil {
		return nil, store.Summary{}, &store.ValidationError{Field: "window_type", Message: err.Error()}
	}

	rows, err := e.aggregates.Query(ctx, f)
	if err != nil {
		return nil, store.Summary{}, err
	}

	if len(rows) == 0 {
		windows := countWindows(f.StartDate, f.EndDate, k)
		if windows > maxFallbackWindows {
			return nil, store.Summary{}, &store.ValidationError{
				Field:   "end_date",
				Message: fmt.Sprintf("range spans %d windows, exceeding the %d-window compute-on-the-fly limit", windows, maxFallbackWindows),
			}
		}

		computed, err := e.Compute(ctx, k, f.StartDate, f.EndDate)
		if err != nil {
			return nil, store.Summary{}, err
		}
		rows = filterAggregates(computed, f)
	}

	var summary store.Summary
	for _, a := range rows {
		summary.TotalQuantity += a.TotalQuantity
		summary.TotalEvents += a.EventCount
	}
	return rows, summary, nil
}

func countWindows(from, to time.Time, k window.Kind) int {
	if !to.After(from) {
		return 0
	}
	n := 0
	start, end := window.Window(from, k)
	for start.Before(to) {
		n++
		start, end = window.Next(end, k)
	}
	return n
}

func filterAggregates(rows []store.Aggregate, f store.AggregateFilters) []store.Aggregate {
	out := rows[:0]
	for _, a := range rows {
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		if f.Resource != "" && a.Resource != f.Resource {
			continue
		}
		if f.Feature != "" && a.Feature != f.Feature {
			continue
		}
		out = append(out, a)
	}
	return out
}
