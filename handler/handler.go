// Package handler implements the HTTP surface of the metering service:
// event ingest, paginated event reads, aggregate queries, quota
// validation, health, and the admin quota CRUD surface.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/moasakthi/metering/store"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorResponse is the shape of every non-2xx JSON body this service returns.
type errorResponse struct {
	Detail string `json:"detail"`
	Field  string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeStoreError maps a repository error to the taxonomy in §7: a
// *store.ValidationError surfaces as 422 with field detail, everything
// else is treated as an upstream-unavailable 503.
func writeStoreError(w http.ResponseWriter, err error) {
	if verr, ok := err.(*store.ValidationError); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: verr.Message, Field: verr.Field})
		return
	}
	writeError(w, http.StatusServiceUnavailable, "upstream store unavailable")
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
