/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Thin HTTP wrapper over the aggregation engine's query
             path: parse filters, delegate, shape the response.
Root Cause:  Aggregation Engine component's HTTP surface (4.D).
Suitability: L2 — query parsing only, no business logic.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"
	"time"

	"github.com/moasakthi/metering/aggregate"
	"github.com/moasakthi/metering/store"
)

// AggregatesHandler serves the rollup query endpoint.
type AggregatesHandler struct {
	engine *aggregate.Engine
}

// NewAggregatesHandler constructs an AggregatesHandler.
func NewAggregatesHandler(engine *aggregate.Engine) *AggregatesHandler {
	return &AggregatesHandler{engine: engine}
}

// GetAggregates handles GET /v1/meter/aggregates.
func (h *AggregatesHandler) GetAggregates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	windowType := q.Get("window_type")
	if windowType == "" {
		writeError(w, http.StatusUnprocessableEntity, "window_type is required")
		return
	}

	start, err := time.Parse(time.RFC3339, q.Get("start_date"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "start_date must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "end_date must be RFC3339")
		return
	}

	f := store.AggregateFilters{
		WindowType: windowType,
		StartDate:  start,
		EndDate:    end,
		TenantID:   q.Get("tenant_id"),
		Resource:   q.Get("resource"),
		Feature:    q.Get("feature"),
	}

	rows, summary, err := h.engine.GetAggregates(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregates": rows,
		"summary":    summary,
	})
}
