package metering

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestInstrumentClient(t *testing.T, received chan<- Event) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		received <- e
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL), WithLogger(NoopLogger{}))
}

func TestInstrumentEmitsOnSuccessResponse(t *testing.T) {
	received := make(chan Event, 1)
	c := newTestInstrumentClient(t, received)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := c.Instrument()(inner)

	req := httptest.NewRequest(http.MethodGet, "/orders/list", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rw := httptest.NewRecorder()
	mw.ServeHTTP(rw, req)

	select {
	case e := <-received:
		if e.TenantID != "acme" || e.Resource != "orders.list" || e.Feature != "get" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event for a successful request")
	}
}

func TestInstrumentSkipsErrorResponses(t *testing.T) {
	received := make(chan Event, 1)
	c := newTestInstrumentClient(t, received)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mw := c.Instrument()(inner)

	req := httptest.NewRequest(http.MethodGet, "/orders/list", nil)
	rw := httptest.NewRecorder()
	mw.ServeHTTP(rw, req)

	select {
	case e := <-received:
		t.Fatalf("expected no event for a failed response, got %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInstrumentSkipsExcludedPaths(t *testing.T) {
	received := make(chan Event, 1)
	c := newTestInstrumentClient(t, received)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := c.Instrument()(inner)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	mw.ServeHTTP(rw, req)

	select {
	case e := <-received:
		t.Fatalf("expected no event for an excluded path, got %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResolveTenantFromRequestPrecedence(t *testing.T) {
	cfg := middlewareConfig{tenantHeader: "X-Tenant-ID", tenantQuery: "tenant_id"}

	req := httptest.NewRequest(http.MethodGet, "/x?tenant_id=from-query", nil)
	req.Header.Set("X-Tenant-ID", "from-header")
	if got := resolveTenantFromRequest(req, cfg); got != "from-header" {
		t.Fatalf("header should win, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x?tenant_id=from-query", nil)
	if got := resolveTenantFromRequest(req, cfg); got != "from-query" {
		t.Fatalf("query should win absent a header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := resolveTenantFromRequest(req, cfg); got != "unknown" {
		t.Fatalf("expected fallback to unknown, got %q", got)
	}
}

func TestResourceFromPath(t *testing.T) {
	cases := map[string]string{
		"/orders/list": "orders.list",
		"/":            "api",
		"":             "api",
		"/v1/meter":    "v1.meter",
	}
	for path, want := range cases {
		if got := resourceFromPath(path); got != want {
			t.Fatalf("resourceFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
