/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Pooled Postgres connection via sqlx/lib/pq, pinged
             once when opened (pooled connections are not pinged
             again on checkout), and versioned schema migrations
             applied through goose rather than ORM auto-create.
Root Cause:  Event Repository / Aggregation Engine / Admin store
             all share one connection pool.
Context:     Pool size and overflow are config-driven (DB_POOL_SIZE,
             DB_MAX_OVERFLOW); SetConnMaxIdleTime keeps idle
             connections from outliving a load balancer's idle
             timeout.
Suitability: L3 — standard database/sql pooling idiom.
──────────────────────────────────────────────────────────────
*/

package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/moasakthi/metering/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a pooled *sqlx.DB shared by every relational-store component.
type DB struct {
	*sqlx.DB
}

// Open connects to the configured Postgres-compatible database, pre-pinging
// before returning, and sizes the pool from DB_POOL_SIZE/DB_MAX_OVERFLOW.
func Open(cfg *config.Config) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBPoolSize + cfg.DBMaxOverflow)
	db.SetMaxIdleConns(cfg.DBPoolSize)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate applies every pending migration in migrations/ using goose,
// tracked against the goose_db_version table.
func (d *DB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(d.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping verifies connectivity, used by the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}
