/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Idempotent upsert of rollup rows keyed by
             (tenant, resource, feature, window_type, window_start,
             window_end), plus a range query serving GetAggregates.
Root Cause:  Aggregation Engine component.
Context:     Upsert overwrites rather than adds — recomputing a
             window must be idempotent and self-healing, not
             cumulative.
Suitability: L3 — single upsert statement, no application-side locking.
──────────────────────────────────────────────────────────────
*/

package store

import (
	"context"
	"fmt"
	"time"
)

// AggregateRepository is the durable store for rollup rows.
type AggregateRepository struct {
	db *DB
}

// NewAggregateRepository constructs an AggregateRepository over db.
func NewAggregateRepository(db *DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// Upsert writes a, overwriting total_quantity and event_count on conflict
// with the unique key. Recomputing the same window twice is idempotent.
func (r *AggregateRepository) Upsert(ctx context.Context, a Aggregate) error {
	const q = `
		INSERT INTO metering_aggregates
			(tenant_id, resource, feature, window_type, window_start, window_end, total_quantity, event_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, resource, feature, window_type, window_start, window_end)
		DO UPDATE SET total_quantity = EXCLUDED.total_quantity,
		              event_count    = EXCLUDED.event_count,
		              updated_at     = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q,
		a.TenantID, a.Resource, a.Feature, a.WindowType, a.WindowStart, a.WindowEnd,
		a.TotalQuantity, a.EventCount, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert aggregate: %w", err)
	}
	return nil
}

// Query returns the aggregate rows matching f, ordered by window_start.
func (r *AggregateRepository) Query(ctx context.Context, f AggregateFilters) ([]Aggregate, error) {
	clauses := []string{"window_type = ?", "window_start >= ?", "window_start <= ?"}
	args := []interface{}{f.WindowType, f.StartDate, f.EndDate}

	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Resource != "" {
		clauses = append(clauses, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.Feature != "" {
		clauses = append(clauses, "feature = ?")
		args = append(args, f.Feature)
	}

	q := fmt.Sprintf(`
		SELECT tenant_id, resource, feature, window_type, window_start, window_end, total_quantity, event_count, updated_at
		FROM metering_aggregates
		WHERE %s
		ORDER BY window_start ASC`, joinAnd(clauses))

	var rows []Aggregate
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("store: query aggregates: %w", err)
	}
	return rows, nil
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}

// EventGroup is the output of grouping raw events by (tenant, resource,
// feature) within a window, the unit the aggregation engine upserts.
type EventGroup struct {
	TenantID      string `db:"tenant_id"`
	Resource      string `db:"resource"`
	Feature       string `db:"feature"`
	TotalQuantity int64  `db:"total_quantity"`
	EventCount    int64  `db:"event_count"`
}

// GroupEventsInWindow sums quantity and counts events per
// (tenant, resource, feature) for events with timestamp in [start, end).
func (r *EventRepository) GroupEventsInWindow(ctx context.Context, start, end time.Time) ([]EventGroup, error) {
	const q = `
		SELECT tenant_id, resource, feature, SUM(quantity) AS total_quantity, COUNT(*) AS event_count
		FROM metering_events
		WHERE timestamp >= $1 AND timestamp < $2
		GROUP BY tenant_id, resource, feature`
	var groups []EventGroup
	if err := r.db.SelectContext(ctx, &groups, q, start, end); err != nil {
		return nil, fmt.Errorf("store: group events in window: %w", err)
	}
	return groups, nil
}
