/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       HTTP middleware instrumentation: forward the request, emit
             one event per non-error response, resolving resource from
             the path, feature from the method, and tenant from a fixed
             header/path-param/query order.
Root Cause:  §4.F HTTP middleware — the zero-code-change instrumentation
             path for an application that fronts its own router.
Suitability: L2 — a response-status-capturing wrapper and a resolution
             chain.
──────────────────────────────────────────────────────────────
*/

package metering

import (
	"net/http"
	"strings"
)

var defaultExcludedPaths = map[string]bool{
	"/health":       true,
	"/docs":         true,
	"/redoc":        true,
	"/openapi.json": true,
}

// PathParamFunc extracts a tenant ID from a request's path parameters,
// when the host application's router exposes one. The SDK stays
// router-agnostic; wire this up with e.g. chi.URLParam.
type PathParamFunc func(r *http.Request) string

type middlewareConfig struct {
	excludedPaths map[string]bool
	pathParamFunc PathParamFunc
	tenantHeader  string
	tenantQuery   string
}

// MiddlewareOption configures Instrument.
type MiddlewareOption func(*middlewareConfig)

// WithExcludedPaths overrides the default set of un-metered paths.
func WithExcludedPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		excluded := make(map[string]bool, len(paths))
		for _, p := range paths {
			excluded[p] = true
		}
		c.excludedPaths = excluded
	}
}

// WithPathParamFunc supplies a tenant-ID extractor backed by the host
// router's route context.
func WithPathParamFunc(fn PathParamFunc) MiddlewareOption {
	return func(c *middlewareConfig) { c.pathParamFunc = fn }
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Instrument returns HTTP middleware that emits one usage event per
// successful (status < 400) request not matching an excluded path.
func (c *Client) Instrument(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		excludedPaths: defaultExcludedPaths,
		tenantHeader:  "X-Tenant-ID",
		tenantQuery:   "tenant_id",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.excludedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if sw.status >= 400 {
				return
			}

			event := Event{
				TenantID: resolveTenantFromRequest(r, cfg),
				Resource: resourceFromPath(r.URL.Path),
				Feature:  strings.ToLower(r.Method),
				Quantity: 1,
			}
			if err := c.Emit(r.Context(), event); err != nil {
				c.logger.Warnf("emit failed for request %s %s: %v", r.Method, r.URL.Path, err)
			}
		})
	}
}

func resourceFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "api"
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}

func resolveTenantFromRequest(r *http.Request, cfg middlewareConfig) string {
	if t := r.Header.Get(cfg.tenantHeader); t != "" {
		return t
	}
	if cfg.pathParamFunc != nil {
		if t := cfg.pathParamFunc(r); t != "" {
			return t
		}
	}
	if t := r.URL.Query().Get(cfg.tenantQuery); t != "" {
		return t
	}
	return "unknown"
}
