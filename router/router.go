/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Router with middleware chain: CORS → Security Headers
             → Request ID → Recoverer → Request Logger → Auth.
             Routes: /v1/meter/events(+batch), /v1/meter/aggregates,
             /v1/meter/validate, /v1/meter/quotas, /v1/meter/health,
             /metrics.
Root Cause:  HTTP wire layer — thin glue over the metering
             components, per §2's "Auth gate, HTTP wire layer,
             process bootstrap" row.
Context:     Health and metrics are unauthenticated; every
             /v1/meter/... route requires a valid X-API-Key.
Suitability: L3 model for proper middleware chain design.
──────────────────────────────────────────────────────────────
*/

package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/moasakthi/metering/aggregate"
	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/config"
	"github.com/moasakthi/metering/handler"
	metmw "github.com/moasakthi/metering/middleware"
	"github.com/moasakthi/metering/metrics"
	"github.com/moasakthi/metering/quota"
	"github.com/moasakthi/metering/store"
)

// Deps bundles the constructed components NewRouter wires into handlers.
type Deps struct {
	DB         *store.DB
	Cache      *cache.Client
	Events     *store.EventRepository
	Quotas     *store.QuotaRepository
	Aggregates *aggregate.Engine
	Evaluator  *quota.Evaluator
	Auth       metmw.CredentialLookup
	Metrics    *metrics.Metrics
}

// NewRouter returns a configured chi Router with the full middleware chain
// and every metering route mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware Chain (order matters) ---
	r.Use(metmw.CORSMiddleware(cfg.CORSOrigins))
	r.Use(metmw.SecurityHeadersMiddleware)
	r.Use(metmw.RequestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))

	// --- Unauthenticated endpoints ---
	healthHandler := handler.NewHealthHandler(deps.DB, deps.Cache)
	r.Get("/v1/meter/health", healthHandler.Health)
	r.Get("/health", healthHandler.Health)

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler().ServeHTTP)
	}

	// --- Authenticated metering routes ---
	authMW := metmw.NewAuthMiddleware(appLogger, deps.Auth, cfg.APIKeyHeader)

	eventsHandler := handler.NewEventsHandler(deps.Events, deps.Cache, deps.Metrics, appLogger)
	aggregatesHandler := handler.NewAggregatesHandler(deps.Aggregates)
	validateHandler := handler.NewValidateHandler(deps.Evaluator, deps.Metrics)
	quotasHandler := handler.NewQuotasHandler(deps.Quotas)

	r.Route("/v1/meter", func(r chi.Router) {
		r.Use(authMW.Handler)

		r.Post("/events", eventsHandler.CreateEvent)
		r.Post("/events/batch", eventsHandler.CreateBatch)
		r.Get("/events", eventsHandler.ListEvents)

		r.Get("/aggregates", aggregatesHandler.GetAggregates)

		r.Post("/validate", validateHandler.Validate)

		r.Post("/quotas", quotasHandler.CreateQuota)
		r.Get("/quotas", quotasHandler.ListQuotas)
	})

	return r
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", r.Header.Get("X-Request-ID")).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
