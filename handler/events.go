/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Event ingest (single + batch) and paginated/filtered
             read. The durable insert runs first and is authoritative:
             counters are only bumped once it succeeds, so a rejected
             or failed insert never leaves a cache-side increment
             behind. A cache increment failure afterward is logged
             and swallowed — it never fails an already-accepted call.
Root Cause:  Event Repository component's HTTP surface (4.C), wired
             to the counter cache: the durable insert is
             authoritative and runs first, the cache increment is
             best-effort and runs only after.
Context:     Every accepted event increments all four window kinds
             so quota evaluation stays hot regardless of which
             period a quota is configured with.
Suitability: L3 — request decoding and two storage calls per event.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/metrics"
	"github.com/moasakthi/metering/store"
	"github.com/moasakthi/metering/window"
)

// EventsHandler serves the ingest and read endpoints backed by the event
// repository and the counter cache.
type EventsHandler struct {
	events  *store.EventRepository
	cache   *cache.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(events *store.EventRepository, c *cache.Client, m *metrics.Metrics, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{events: events, cache: c, metrics: m, logger: logger}
}

type eventRequest struct {
	TenantID  string            `json:"tenant_id"`
	Resource  string            `json:"resource"`
	Feature   string            `json:"feature"`
	Quantity  *int64            `json:"quantity"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// toInput defaults an omitted quantity to 1 but leaves an explicit value —
// including an explicit 0 or negative — untouched, so store.Create's
// quantity > 0 check is the single place that rejects it.
func (req eventRequest) toInput() store.EventInput {
	q := int64(1)
	if req.Quantity != nil {
		q = *req.Quantity
	}
	return store.EventInput{
		TenantID:  req.TenantID,
		Resource:  req.Resource,
		Feature:   req.Feature,
		Quantity:  q,
		Timestamp: req.Timestamp,
		Metadata:  req.Metadata,
	}
}

type ingestResponse struct {
	Status          string   `json:"status"`
	EventsProcessed int      `json:"events_processed"`
	EventIDs        []string `json:"event_ids"`
}

// CreateEvent handles POST /v1/meter/events.
func (h *EventsHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	in := req.toInput()

	ev, err := h.events.Create(r.Context(), in)
	if err != nil {
		h.countIngestFailure(err)
		writeStoreError(w, err)
		return
	}
	h.bumpCounters(r.Context(), in)

	h.metrics.EventsIngested.WithLabelValues(ev.TenantID).Inc()
	writeJSON(w, http.StatusCreated, ingestResponse{
		Status:          "success",
		EventsProcessed: 1,
		EventIDs:        []string{ev.ID},
	})
}

type batchRequest struct {
	Events []eventRequest `json:"events"`
}

// CreateBatch handles POST /v1/meter/events/batch.
func (h *EventsHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	ins := make([]store.EventInput, 0, len(req.Events))
	for _, e := range req.Events {
		ins = append(ins, e.toInput())
	}

	events, err := h.events.CreateBatch(r.Context(), ins)
	if err != nil {
		h.countIngestFailure(err)
		writeStoreError(w, err)
		return
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
		h.metrics.EventsIngested.WithLabelValues(ev.TenantID).Inc()
		h.bumpCounters(r.Context(), ins[i])
	}
	writeJSON(w, http.StatusCreated, ingestResponse{
		Status:          "success",
		EventsProcessed: len(events),
		EventIDs:        ids,
	})
}

// ListEvents handles GET /v1/meter/events.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filters{
		TenantID: q.Get("tenant_id"),
		Resource: q.Get("resource"),
		Feature:  q.Get("feature"),
	}
	if v := q.Get("start_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "start_date must be RFC3339")
			return
		}
		f.StartDate = ts
	}
	if v := q.Get("end_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "end_date must be RFC3339")
			return
		}
		f.EndDate = ts
	}

	p := store.Pagination{Page: 1, PageSize: 50}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.PageSize = n
		}
	}

	items, total, err := h.events.GetAll(r.Context(), f, p)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":       items,
		"page":        p.Page,
		"page_size":   p.PageSize,
		"total":       total,
		"total_pages": store.TotalPages(total, p.PageSize),
	})
}

// bumpCounters increments every window kind's counter for in, best-effort —
// a cache failure here is logged and never fails the ingest call.
func (h *EventsHandler) bumpCounters(ctx context.Context, in store.EventInput) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	for _, k := range []window.Kind{window.Hourly, window.Daily, window.Monthly, window.Yearly} {
		if _, err := h.cache.IncrCounter(ctx, in.TenantID, in.Resource, in.Feature, k, ts, in.Quantity); err != nil {
			h.logger.Warn().Err(err).Str("window_type", string(k)).Msg("events: counter increment failed, event already persisted")
		}
	}
}

func (h *EventsHandler) countIngestFailure(err error) {
	reason := "store_error"
	if _, ok := err.(*store.ValidationError); ok {
		reason = "validation"
	}
	h.metrics.IngestFailures.WithLabelValues(reason).Inc()
}
