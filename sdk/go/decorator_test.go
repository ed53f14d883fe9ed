package metering

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMeterEmitsEventAfterTargetRuns(t *testing.T) {
	var gotEvent Event
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotEvent)
		done <- struct{}{}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithLogger(NoopLogger{}))

	ranTarget := false
	target := Handler(func(args ...any) (any, error) {
		ranTarget = true
		return args[0], nil
	})

	decorated := c.Meter("orders.create", "create",
		WithTenantExtractor(func(args ...any) string {
			return args[0].(string)
		}),
	)(target)

	result, err := decorated("acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "acme" {
		t.Fatalf("expected target's result passed through, got %v", result)
	}
	if !ranTarget {
		t.Fatal("expected the target function to run")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected an event to be emitted")
	}
	if gotEvent.TenantID != "acme" || gotEvent.Resource != "orders.create" || gotEvent.Feature != "create" {
		t.Fatalf("unexpected event: %+v", gotEvent)
	}
}

func TestResolveTenantPrecedence(t *testing.T) {
	cfg := meterConfig{tenantID: "bound-tenant"}
	if got := resolveTenant(cfg, nil); got != "bound-tenant" {
		t.Fatalf("bound tenant ID should win, got %q", got)
	}

	cfg = meterConfig{extractor: func(args ...any) string { return "from-args" }}
	if got := resolveTenant(cfg, nil); got != "from-args" {
		t.Fatalf("extractor should be used when no tenant bound, got %q", got)
	}

	cfg = meterConfig{}
	if got := resolveTenant(cfg, nil); got != "unknown" {
		t.Fatalf("expected fallback to unknown, got %q", got)
	}
}

func TestMeterSwallowsEmitFailure(t *testing.T) {
	c := NewClient("test-key",
		WithBaseURL("http://127.0.0.1:1"),
		WithRetryMaxAttempts(1),
		WithLogger(NoopLogger{}),
	)

	target := Handler(func(args ...any) (any, error) { return 42, nil })
	decorated := c.Meter("x", "y")(target)

	result, err := decorated()
	if err != nil {
		t.Fatalf("target's own error must pass through untouched, got %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
}
