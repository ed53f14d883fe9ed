/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Metering service entry point: config → logger → store
             (connect + migrate) → cache → repositories →
             aggregation engine + scheduler → quota evaluator →
             router → HTTP server with graceful shutdown.
Root Cause:  Process bootstrap — coordinates every metering
             subsystem named in the system overview.
Context:     The durable store is authoritative; the process still
             starts (degraded) if Redis is unreachable at boot, but
             refuses to start if Postgres is unreachable or
             migrations fail.
Suitability: L3 model for graceful shutdown and system wiring.
──────────────────────────────────────────────────────────────
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/moasakthi/metering/aggregate"
	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/config"
	"github.com/moasakthi/metering/logger"
	metmw "github.com/moasakthi/metering/middleware"
	"github.com/moasakthi/metering/metrics"
	"github.com/moasakthi/metering/quota"
	"github.com/moasakthi/metering/router"
	"github.com/moasakthi/metering/store"
)

// credentialAdapter bridges store.CredentialRepository's durable Credential
// (TenantID *string, nil meaning unscoped) to the auth gate's validation
// view (TenantID string, "" meaning unscoped).
type credentialAdapter struct {
	repo *store.CredentialRepository
}

func (a credentialAdapter) LookupCredential(ctx context.Context, keyHash string) (metmw.Credential, bool, error) {
	cred, found, err := a.repo.LookupCredential(ctx, keyHash)
	if err != nil || !found {
		return metmw.Credential{}, found, err
	}
	var tenant string
	if cred.TenantID != nil {
		tenant = *cred.TenantID
	}
	return metmw.Credential{
		KeyHash:   cred.KeyHash,
		IsActive:  cred.IsActive,
		TenantID:  tenant,
		ExpiresAt: cred.ExpiresAt,
	}, true, nil
}

func (a credentialAdapter) TouchLastUsed(ctx context.Context, keyHash string) error {
	return a.repo.TouchLastUsed(ctx, keyHash)
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("metering service starting")

	db, err := store.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	log.Info().Msg("database connected and migrated")

	c, err := cache.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	if err := c.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing, counters degrade to durable reads")
	} else {
		log.Info().Msg("redis connected")
	}

	events := store.NewEventRepository(db)
	quotas := store.NewQuotaRepository(db)
	aggregates := store.NewAggregateRepository(db)
	credentials := store.NewCredentialRepository(db)

	m := metrics.New()
	engine := aggregate.NewEngine(events, aggregates, c, log, m)
	evaluator := quota.NewEvaluator(quotas, events, c)

	scheduler := aggregate.NewScheduler(engine, cfg.AggregationInterval(), log)
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	scheduler.Start(schedulerCtx)
	log.Info().Dur("interval", cfg.AggregationInterval()).Msg("aggregation scheduler started")

	deps := router.Deps{
		DB:         db,
		Cache:      c,
		Events:     events,
		Quotas:     quotas,
		Aggregates: engine,
		Evaluator:  evaluator,
		Auth:       credentialAdapter{repo: credentials},
		Metrics:    m,
	}
	r := router.NewRouter(cfg, log, deps)

	srv := &http.Server{
		Addr:         cfg.APIHost + ":" + strconv.Itoa(cfg.APIPort),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("metering service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	scheduler.Stop(5 * time.Second)
	cancelScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("metering service stopped gracefully")
	}
}
