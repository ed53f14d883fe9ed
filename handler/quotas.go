/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Admin quota CRUD surface (component G): create a quota,
             list a tenant's active quotas.
Root Cause:  §1 scope boundary — only the validation/ingest-adjacent
             administration surface is modeled, not a full admin UI.
Suitability: L2 — request decoding and two delegated calls.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"

	"github.com/moasakthi/metering/store"
)

// QuotasHandler serves the admin quota CRUD surface.
type QuotasHandler struct {
	quotas *store.QuotaRepository
}

// NewQuotasHandler constructs a QuotasHandler.
func NewQuotasHandler(quotas *store.QuotaRepository) *QuotasHandler {
	return &QuotasHandler{quotas: quotas}
}

type quotaRequest struct {
	TenantID       string  `json:"tenant_id"`
	Resource       *string `json:"resource"`
	Feature        string  `json:"feature"`
	LimitValue     int64   `json:"limit_value"`
	Period         string  `json:"period"`
	AlertThreshold int     `json:"alert_threshold"`
}

// CreateQuota handles POST /v1/meter/quotas.
func (h *QuotasHandler) CreateQuota(w http.ResponseWriter, r *http.Request) {
	var req quotaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	q, err := h.quotas.CreateQuota(r.Context(), store.QuotaInput{
		TenantID:       req.TenantID,
		Resource:       req.Resource,
		Feature:        req.Feature,
		LimitValue:     req.LimitValue,
		Period:         req.Period,
		AlertThreshold: req.AlertThreshold,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"quota": q})
}

// ListQuotas handles GET /v1/meter/quotas.
func (h *QuotasHandler) ListQuotas(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant_id")
	if tenant == "" {
		writeError(w, http.StatusUnprocessableEntity, "tenant_id is required")
		return
	}

	quotas, err := h.quotas.ListActiveQuotas(r.Context(), tenant)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"quotas": quotas})
}
