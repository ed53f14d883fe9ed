/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L1
Logic:       Unauthenticated liveness probe: ping the database and
             cache, report degraded rather than fail the call if
             either is unreachable.
Root Cause:  Process bootstrap / health surface (§6).
Suitability: L1 — two pings and a status string.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"
	"time"

	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/store"
)

// HealthHandler reports database and cache connectivity.
type HealthHandler struct {
	db    *store.DB
	cache *cache.Client
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *store.DB, c *cache.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

// Health handles GET /v1/meter/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbOK := h.db.Ping(r.Context()) == nil
	cacheOK := h.cache.Ping(r.Context()) == nil

	status := "healthy"
	if !dbOK || !cacheOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"services": map[string]bool{
			"database": dbOK,
			"redis":    cacheOK,
		},
	})
}
