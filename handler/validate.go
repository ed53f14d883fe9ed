/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Thin HTTP wrapper over the quota evaluator: decode,
             delegate, record the allow/deny outcome.
Root Cause:  Quota Evaluator component's HTTP surface (4.E). The
             call is read-only — it never writes to the event store
             (on a counter-cache miss it reads a usage sum from it).
Suitability: L2 — request decoding and one delegated call.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"

	"github.com/moasakthi/metering/metrics"
	"github.com/moasakthi/metering/quota"
)

// ValidateHandler serves the quota admission check endpoint.
type ValidateHandler struct {
	evaluator *quota.Evaluator
	metrics   *metrics.Metrics
}

// NewValidateHandler constructs a ValidateHandler.
func NewValidateHandler(evaluator *quota.Evaluator, m *metrics.Metrics) *ValidateHandler {
	return &ValidateHandler{evaluator: evaluator, metrics: m}
}

type validateRequest struct {
	TenantID string `json:"tenant_id"`
	Resource string `json:"resource"`
	Feature  string `json:"feature"`
	Quantity int64  `json:"quantity"`
	Period   string `json:"period"`
}

// Validate handles POST /v1/meter/validate.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.evaluator.Validate(r.Context(), req.TenantID, req.Resource, req.Feature, req.Quantity, req.Period)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	outcome := "denied"
	if result.Allowed {
		outcome = "allowed"
	}
	h.metrics.ValidateOutcomes.WithLabelValues(outcome).Inc()

	writeJSON(w, http.StatusOK, result)
}
