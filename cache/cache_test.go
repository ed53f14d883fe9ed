package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/moasakthi/metering/window"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb)
}

func TestIncrCounterAccumulatesAndSetsTTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ts := time.Date(2026, 7, 30, 14, 10, 0, 0, time.UTC)

	v, err := c.IncrCounter(ctx, "acme", "api", "calls", window.Hourly, ts, 3)
	if err != nil {
		t.Fatalf("IncrCounter: %v", err)
	}
	if v != 3 {
		t.Fatalf("v = %d, want 3", v)
	}

	v, err = c.IncrCounter(ctx, "acme", "api", "calls", window.Hourly, ts.Add(10*time.Minute), 2)
	if err != nil {
		t.Fatalf("IncrCounter 2: %v", err)
	}
	if v != 5 {
		t.Fatalf("v = %d, want 5 (same window)", v)
	}

	start, _ := window.Window(ts, window.Hourly)
	ttl, err := c.rdb.TTL(ctx, counterKey("acme", "api", "calls", window.Hourly, start)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl != 2*time.Hour {
		t.Fatalf("ttl = %s, want 2h for an hourly counter", ttl)
	}
}

func TestGetCounterDistinguishesAbsenceFromZero(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ts := time.Now()

	_, ok, err := c.GetCounter(ctx, "acme", "api", "calls", window.Daily, ts)
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for absent key")
	}

	if _, err := c.IncrCounter(ctx, "acme", "api", "calls", window.Daily, ts, 0); err != nil {
		t.Fatalf("IncrCounter zero-delta: %v", err)
	}
	v, ok, err := c.GetCounter(ctx, "acme", "api", "calls", window.Daily, ts)
	if err != nil || !ok {
		t.Fatalf("GetCounter after touch: v=%d ok=%v err=%v", v, ok, err)
	}
	if v != 0 {
		t.Fatalf("v = %d, want 0", v)
	}
}

func TestAggregateCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	if err := c.SetAggregate(ctx, "acme", "api", "calls", window.Daily, start, 42, 7); err != nil {
		t.Fatalf("SetAggregate: %v", err)
	}
	total, count, ok, err := c.GetAggregate(ctx, "acme", "api", "calls", window.Daily, start)
	if err != nil || !ok {
		t.Fatalf("GetAggregate: ok=%v err=%v", ok, err)
	}
	if total != 42 || count != 7 {
		t.Fatalf("total=%d count=%d, want 42,7", total, count)
	}
}

func TestQuotaCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, ok, err := c.GetQuota(ctx, "acme", "calls"); err != nil || ok {
		t.Fatalf("expected miss before set, got ok=%v err=%v", ok, err)
	}
	if err := c.SetQuota(ctx, "acme", "calls", 1000); err != nil {
		t.Fatalf("SetQuota: %v", err)
	}
	limit, ok, err := c.GetQuota(ctx, "acme", "calls")
	if err != nil || !ok || limit != 1000 {
		t.Fatalf("limit=%d ok=%v err=%v", limit, ok, err)
	}
}

func TestSetCounterOverwritesRatherThanAdds(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ts := time.Now()

	if _, err := c.IncrCounter(ctx, "acme", "api", "calls", window.Hourly, ts, 10); err != nil {
		t.Fatalf("IncrCounter: %v", err)
	}
	if err := c.SetCounter(ctx, "acme", "api", "calls", window.Hourly, ts, 99); err != nil {
		t.Fatalf("SetCounter: %v", err)
	}
	v, ok, err := c.GetCounter(ctx, "acme", "api", "calls", window.Hourly, ts)
	if err != nil || !ok || v != 99 {
		t.Fatalf("v=%d ok=%v err=%v, want 99", v, ok, err)
	}
}
