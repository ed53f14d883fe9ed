/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Read-only quota admission check: resolve the
             most-specific active quota, read current usage from the
             counter cache (falling back to a durable sum on a miss,
             then warming the cache), and compute allow/deny.
Root Cause:  Quota Evaluator component (4.E). Validation never
             consumes the quota — consumption happens on ingest;
             races between validate and ingest are acceptable.
Context:     Unlimited is the default when no quota is configured,
             not a validation error.
Suitability: L3 — a small decision table plus two storage lookups.
──────────────────────────────────────────────────────────────
*/

package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/store"
	"github.com/moasakthi/metering/window"
)

// Unlimited is the sentinel limit/remaining value returned when no quota
// is configured for a tenant/resource/feature.
const Unlimited = -1

// Result is the outcome of a validation call.
type Result struct {
	Allowed      bool      `json:"allowed"`
	Remaining    int64     `json:"remaining"`
	Limit        int64     `json:"limit"`
	Period       string    `json:"period"`
	ResetAt      time.Time `json:"reset_at"`
	CurrentUsage int64     `json:"current_usage"`
	Message      string    `json:"message,omitempty"`
}

// Evaluator answers read-only quota admission checks.
type Evaluator struct {
	quotas *store.QuotaRepository
	events *store.EventRepository
	cache  *cache.Client
}

// NewEvaluator constructs a quota Evaluator.
func NewEvaluator(quotas *store.QuotaRepository, events *store.EventRepository, c *cache.Client) *Evaluator {
	return &Evaluator{quotas: quotas, events: events, cache: c}
}

// Validate answers whether consuming quantity of (tenant, resource,
// feature) is within the configured quota. The requested period is only
// used to echo back when no quota exists — a configured quota's own
// period always takes precedence.
func (e *Evaluator) Validate(ctx context.Context, tenant, resource, feature string, quantity int64, requestedPeriod string) (Result, error) {
	q, found, err := e.quotas.FindQuota(ctx, tenant, resource, feature)
	if err != nil {
		return Result{}, fmt.Errorf("quota: find quota: %w", err)
	}
	if !found {
		return Result{
			Allowed:   true,
			Remaining: Unlimited,
			Limit:     Unlimited,
			Period:    requestedPeriod,
			Message:   "No quota configured",
		}, nil
	}

	k, err := window.ParseKind(q.Period)
	if err != nil {
		return Result{}, fmt.Errorf("quota: invalid period on quota row: %w", err)
	}

	now := time.Now().UTC()
	_, windowEnd := window.Window(now, k)

	usage, err := e.currentUsage(ctx, tenant, resource, feature, k, now)
	if err != nil {
		return Result{}, err
	}

	remaining := q.LimitValue - usage
	if remaining < 0 {
		remaining = 0
	}
	allowed := remaining >= quantity

	result := Result{
		Allowed:      allowed,
		Remaining:    remaining,
		Limit:        q.LimitValue,
		Period:       q.Period,
		ResetAt:      window.WireEnd(windowEnd),
		CurrentUsage: usage,
	}
	if !allowed {
		result.Message = fmt.Sprintf("Quota exceeded for feature '%s'. Current usage: %d/%d", feature, usage, q.LimitValue)
	}
	return result, nil
}

// currentUsage reads the hot counter cache first; on a miss it falls back
// to a durable sum over the current window and warms the cache so
// subsequent calls are hot.
func (e *Evaluator) currentUsage(ctx context.Context, tenant, resource, feature string, k window.Kind, now time.Time) (int64, error) {
	if v, ok, err := e.cache.GetCounter(ctx, tenant, resource, feature, k, now); err != nil {
		return 0, fmt.Errorf("quota: read counter cache: %w", err)
	} else if ok {
		return v, nil
	}

	start, end := window.Window(now, k)
	sum, err := e.events.GetUsageSummary(ctx, tenant, resource, feature, start, end)
	if err != nil {
		return 0, fmt.Errorf("quota: usage summary fallback: %w", err)
	}
	if err := e.cache.SetCounter(ctx, tenant, resource, feature, k, now, sum); err != nil {
		// Warming the cache is best-effort; the computed value is still valid.
		return sum, nil
	}
	return sum, nil
}
