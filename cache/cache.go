/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L3
Logic:       Redis-backed counter cache: per-window atomic increment
             counters, plus opaque caches for computed aggregates and
             quota configuration, each with its own TTL policy.
Root Cause:  Counter Cache component — fast-path reads for /validate
             and the aggregation engine's warm-cache publish step.
Context:     Key format and TTL table are a published operator
             contract; do not change the format without updating the
             runbook that greps the keyspace.
Suitability: L3 — single round-trip atomic ops, no custom locking.
──────────────────────────────────────────────────────────────
*/

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moasakthi/metering/config"
	"github.com/moasakthi/metering/window"
)

// Client wraps a pooled Redis connection with the counter/aggregate/quota
// cache contract used by the metering data plane.
type Client struct {
	rdb *redis.Client
}

// New creates a Client from the provided config. Returns an error if the
// Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = cfg.RedisPoolSize
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an already-constructed redis.Client, letting callers
// (tests, or processes sharing a client across components) bypass URL
// parsing.
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping verifies connectivity, used by the health endpoint and startup checks.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ttlByPeriod is the upper bound on staleness of a closed window — one
// window longer than the window itself, to tolerate clock skew in
// consumers reading a just-closed window.
var ttlByPeriod = map[window.Kind]time.Duration{
	window.Hourly:  2 * time.Hour,
	window.Daily:   2 * 24 * time.Hour,
	window.Monthly: 32 * 24 * time.Hour,
	window.Yearly:  366 * 24 * time.Hour,
}

const (
	aggregateTTL = time.Hour
	quotaTTL     = 5 * time.Minute
)

func counterKey(tenant, resource, feature string, k window.Kind, windowStart time.Time) string {
	return fmt.Sprintf("meter:counter:%s:%s:%s:%s:%s", tenant, resource, feature, k, window.CounterSuffix(windowStart, k))
}

func aggregateKey(tenant, resource, feature string, k window.Kind, windowStart time.Time) string {
	return fmt.Sprintf("meter:aggregate:%s:%s:%s:%s:%s", tenant, resource, feature, k, window.CounterSuffix(windowStart, k))
}

func quotaKey(tenant, feature string) string {
	return fmt.Sprintf("meter:quota:%s:%s", tenant, feature)
}

// IncrCounter atomically adds delta to the counter keyed by the window
// containing ts, setting the window's TTL on first touch. It returns the
// counter's new value. A single INCRBY round-trip is the serialization
// point — concurrent callers never lose an update.
func (c *Client) IncrCounter(ctx context.Context, tenant, resource, feature string, k window.Kind, ts time.Time, delta int64) (int64, error) {
	start, _ := window.Window(ts, k)
	key := counterKey(tenant, resource, feature, k, start)

	newVal, err := c.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr counter %s: %w", key, err)
	}

	// Only the INCRBY that created the key (new value equals delta) sets
	// the TTL; later increments leave it as is.
	if newVal == delta {
		ttl := ttlByPeriod[k]
		if ttl == 0 {
			ttl = ttlByPeriod[window.Hourly]
		}
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return newVal, fmt.Errorf("cache: set ttl on %s: %w", key, err)
		}
	}
	return newVal, nil
}

// GetCounter reads the counter for the window containing ts. ok=false
// means the key is absent, distinct from a present value of zero.
func (c *Client) GetCounter(ctx context.Context, tenant, resource, feature string, k window.Kind, ts time.Time) (value int64, ok bool, err error) {
	start, _ := window.Window(ts, k)
	key := counterKey(tenant, resource, feature, k, start)

	v, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: get counter %s: %w", key, err)
	}
	return v, true, nil
}

// SetCounter writes an absolute counter value for the window containing ts,
// used by the quota evaluator to warm the cache after a cold-path sum from
// the durable store. Unlike IncrCounter this overwrites rather than adds.
func (c *Client) SetCounter(ctx context.Context, tenant, resource, feature string, k window.Kind, ts time.Time, value int64) error {
	start, _ := window.Window(ts, k)
	key := counterKey(tenant, resource, feature, k, start)
	ttl := ttlByPeriod[k]
	if ttl == 0 {
		ttl = ttlByPeriod[window.Hourly]
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set counter %s: %w", key, err)
	}
	return nil
}

// SetAggregate publishes a computed rollup as the opaque "total:count"
// string, with a fixed one-hour TTL (aggregateTTL) for every period.
func (c *Client) SetAggregate(ctx context.Context, tenant, resource, feature string, k window.Kind, windowStart time.Time, total, count int64) error {
	key := aggregateKey(tenant, resource, feature, k, windowStart)
	val := fmt.Sprintf("%d:%d", total, count)
	if err := c.rdb.Set(ctx, key, val, aggregateTTL).Err(); err != nil {
		return fmt.Errorf("cache: set aggregate %s: %w", key, err)
	}
	return nil
}

// GetAggregate reads a cached rollup, returning ok=false on a miss.
func (c *Client) GetAggregate(ctx context.Context, tenant, resource, feature string, k window.Kind, windowStart time.Time) (total, count int64, ok bool, err error) {
	key := aggregateKey(tenant, resource, feature, k, windowStart)
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("cache: get aggregate %s: %w", key, err)
	}
	if _, err := fmt.Sscanf(val, "%d:%d", &total, &count); err != nil {
		return 0, 0, false, fmt.Errorf("cache: malformed aggregate value at %s: %w", key, err)
	}
	return total, count, true, nil
}

// SetQuota caches a quota's limit for fast re-evaluation, TTL 5 minutes.
func (c *Client) SetQuota(ctx context.Context, tenant, feature string, limit int64) error {
	key := quotaKey(tenant, feature)
	if err := c.rdb.Set(ctx, key, limit, quotaTTL).Err(); err != nil {
		return fmt.Errorf("cache: set quota %s: %w", key, err)
	}
	return nil
}

// GetQuota reads a cached quota limit, returning ok=false on a miss.
func (c *Client) GetQuota(ctx context.Context, tenant, feature string) (limit int64, ok bool, err error) {
	key := quotaKey(tenant, feature)
	v, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: get quota %s: %w", key, err)
	}
	return v, true, nil
}
