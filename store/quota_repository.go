/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L2
Logic:       Quota CRUD plus most-specific-wins resolution: an
             exact resource match beats a wildcard (resource IS
             NULL) row, ties broken by created_at DESC.
Root Cause:  Component G — the out-of-band admin surface the
             quota evaluator and auth gate depend on.
Context:     Resolves the ambiguous "first row" behavior of the
             source system into an explicit, ordered policy.
Suitability: L2 — a single ORDER BY expression carries the policy.
──────────────────────────────────────────────────────────────
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuotaRepository is the durable store for quota configuration.
type QuotaRepository struct {
	db *DB
}

// NewQuotaRepository constructs a QuotaRepository over db.
func NewQuotaRepository(db *DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// CreateQuota inserts a new quota row, active by default.
func (r *QuotaRepository) CreateQuota(ctx context.Context, in QuotaInput) (Quota, error) {
	if in.LimitValue <= 0 {
		return Quota{}, &ValidationError{Field: "limit_value", Message: "must be greater than zero"}
	}
	if in.AlertThreshold < 0 || in.AlertThreshold > 100 {
		return Quota{}, &ValidationError{Field: "alert_threshold", Message: "must be between 0 and 100"}
	}

	q := Quota{
		ID:             uuid.NewString(),
		TenantID:       in.TenantID,
		Resource:       in.Resource,
		Feature:        in.Feature,
		LimitValue:     in.LimitValue,
		Period:         in.Period,
		AlertThreshold: in.AlertThreshold,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}

	const ins = `
		INSERT INTO metering_quotas (id, tenant_id, resource, feature, limit_value, period, alert_threshold, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, ins, q.ID, q.TenantID, q.Resource, q.Feature, q.LimitValue, q.Period, q.AlertThreshold, q.IsActive, q.CreatedAt); err != nil {
		return Quota{}, fmt.Errorf("store: insert quota: %w", err)
	}
	return q, nil
}

// ListActiveQuotas returns every active quota row for tenant.
func (r *QuotaRepository) ListActiveQuotas(ctx context.Context, tenant string) ([]Quota, error) {
	const q = `
		SELECT id, tenant_id, resource, feature, limit_value, period, alert_threshold, is_active, created_at
		FROM metering_quotas
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY created_at DESC`
	var quotas []Quota
	if err := r.db.SelectContext(ctx, &quotas, q, tenant); err != nil {
		return nil, fmt.Errorf("store: list active quotas: %w", err)
	}
	return quotas, nil
}

// FindQuota resolves the single most-specific active quota for
// (tenant, resource, feature): an exact resource match beats a wildcard
// row, ties broken by created_at DESC.
func (r *QuotaRepository) FindQuota(ctx context.Context, tenant, resource, feature string) (Quota, bool, error) {
	const q = `
		SELECT id, tenant_id, resource, feature, limit_value, period, alert_threshold, is_active, created_at
		FROM metering_quotas
		WHERE tenant_id = $1 AND feature = $2 AND is_active = true
		  AND (resource = $3 OR resource IS NULL)
		ORDER BY (resource IS NOT NULL) DESC, created_at DESC
		LIMIT 1`
	var quota Quota
	err := r.db.GetContext(ctx, &quota, q, tenant, feature, resource)
	if errors.Is(err, sql.ErrNoRows) {
		return Quota{}, false, nil
	}
	if err != nil {
		return Quota{}, false, fmt.Errorf("store: find quota: %w", err)
	}
	return quota, true, nil
}
