/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Durable event append, filtered/paginated read, and
             sum-over-range query against metering_events. Batch
             insert is a single SQL transaction — partial failure
             is not permitted.
Root Cause:  Event Repository component — the authoritative write
             path for usage events.
Context:     Paginated reads order by timestamp DESC, id DESC so
             pagination is stable under concurrent inserts.
Suitability: L3 — parameterized SQL, no ORM.
──────────────────────────────────────────────────────────────
*/

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports a caller-input problem (quantity <= 0, batch size
// out of range, …) that must surface to the caller rather than be swallowed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// EventRepository is the durable store for usage events.
type EventRepository struct {
	db *DB
}

// NewEventRepository constructs an EventRepository over db.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a single event, assigning id and, when Timestamp is zero,
// the ingest instant.
func (r *EventRepository) Create(ctx context.Context, in EventInput) (Event, error) {
	if in.Quantity <= 0 {
		return Event{}, &ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}

	ev, err := toEvent(in)
	if err != nil {
		return Event{}, err
	}

	const q = `
		INSERT INTO metering_events (id, tenant_id, resource, feature, quantity, timestamp, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, q, ev.ID, ev.TenantID, ev.Resource, ev.Feature, ev.Quantity, ev.Timestamp, ev.MetadataJSON, ev.CreatedAt); err != nil {
		return Event{}, fmt.Errorf("store: insert event: %w", err)
	}
	return ev, nil
}

// CreateBatch inserts up to 1000 events in a single transaction: either all
// rows commit or none do.
func (r *EventRepository) CreateBatch(ctx context.Context, ins []EventInput) ([]Event, error) {
	if len(ins) == 0 || len(ins) > 1000 {
		return nil, &ValidationError{Field: "events", Message: "batch size must be between 1 and 1000"}
	}

	events := make([]Event, 0, len(ins))
	for _, in := range ins {
		if in.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Message: "must be greater than zero"}
		}
		ev, err := toEvent(in)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin batch tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	const q = `
		INSERT INTO metering_events (id, tenant_id, resource, feature, quantity, timestamp, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, q, ev.ID, ev.TenantID, ev.Resource, ev.Feature, ev.Quantity, ev.Timestamp, ev.MetadataJSON, ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: insert batch event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit batch: %w", err)
	}
	return events, nil
}

// GetByID reads a single event by its server-assigned id.
func (r *EventRepository) GetByID(ctx context.Context, id string) (Event, error) {
	var ev Event
	const q = `SELECT id, tenant_id, resource, feature, quantity, timestamp, metadata, created_at FROM metering_events WHERE id = $1`
	if err := r.db.GetContext(ctx, &ev, q, id); err != nil {
		return Event{}, fmt.Errorf("store: get event %s: %w", id, err)
	}
	if err := unmarshalMetadata(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// GetAll returns a filtered, paginated page of events ordered by
// timestamp DESC, id DESC, plus the total matching row count.
func (r *EventRepository) GetAll(ctx context.Context, f Filters, p Pagination) ([]Event, int, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 1000 {
		p.PageSize = 50
	}

	where, args := buildEventWhere(f)

	var total int
	countQ := "SELECT COUNT(*) FROM metering_events" + where
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQ), args...); err != nil {
		return nil, 0, fmt.Errorf("store: count events: %w", err)
	}

	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)
	listQ := fmt.Sprintf(`
		SELECT id, tenant_id, resource, feature, quantity, timestamp, metadata, created_at
		FROM metering_events%s
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?`, where)

	var events []Event
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(listQ), args...); err != nil {
		return nil, 0, fmt.Errorf("store: list events: %w", err)
	}
	for i := range events {
		if err := unmarshalMetadata(&events[i]); err != nil {
			return nil, 0, err
		}
	}
	return events, total, nil
}

// GetUsageSummary returns the sum of quantity over events matching
// (tenant, resource, feature) with timestamp in the half-open [start, end).
func (r *EventRepository) GetUsageSummary(ctx context.Context, tenant, resource, feature string, start, end time.Time) (int64, error) {
	const q = `
		SELECT COALESCE(SUM(quantity), 0)
		FROM metering_events
		WHERE tenant_id = $1 AND resource = $2 AND feature = $3
		  AND timestamp >= $4 AND timestamp < $5`
	var sum int64
	if err := r.db.GetContext(ctx, &sum, q, tenant, resource, feature, start, end); err != nil {
		return 0, fmt.Errorf("store: usage summary: %w", err)
	}
	return sum, nil
}

func toEvent(in EventInput) (Event, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return Event{}, fmt.Errorf("store: marshal metadata: %w", err)
	}
	return Event{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		Resource:     in.Resource,
		Feature:      in.Feature,
		Quantity:     in.Quantity,
		Timestamp:    ts,
		Metadata:     in.Metadata,
		MetadataJSON: meta,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func unmarshalMetadata(ev *Event) error {
	if len(ev.MetadataJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.MetadataJSON, &ev.Metadata); err != nil {
		return fmt.Errorf("store: unmarshal metadata for event %s: %w", ev.ID, err)
	}
	return nil
}

func buildEventWhere(f Filters) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.TenantID != "" {
		args = append(args, f.TenantID)
		clauses = append(clauses, "tenant_id = ?")
	}
	if f.Resource != "" {
		args = append(args, f.Resource)
		clauses = append(clauses, "resource = ?")
	}
	if f.Feature != "" {
		args = append(args, f.Feature)
		clauses = append(clauses, "feature = ?")
	}
	if !f.StartDate.IsZero() {
		args = append(args, f.StartDate)
		clauses = append(clauses, "timestamp >= ?")
	}
	if !f.EndDate.IsZero() {
		args = append(args, f.EndDate)
		clauses = append(clauses, "timestamp <= ?")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// TotalPages derives the page count from a total row count and page size.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}
