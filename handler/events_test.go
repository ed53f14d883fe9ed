package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/metrics"
	"github.com/moasakthi/metering/store"
	"github.com/moasakthi/metering/window"
)

func newTestEventsHandler(t *testing.T) (*EventsHandler, sqlmock.Sqlmock, *cache.Client) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	sdb := sqlx.NewDb(mockDB, "sqlmock")
	db := &store.DB{DB: sdb}
	mock.MatchExpectationsInOrder(false)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	h := NewEventsHandler(store.NewEventRepository(db), c, metrics.New(), zerolog.New(io.Discard))
	return h, mock, c
}

func TestCreateEventSuccess(t *testing.T) {
	h, mock, _ := newTestEventsHandler(t)
	mock.ExpectExec("INSERT INTO metering_events").WillReturnResult(sqlmock.NewResult(1, 1))

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id": "acme",
		"resource":  "api",
		"feature":   "search",
	})
	req := httptest.NewRequest("POST", "/v1/meter/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateEvent(rw, req)

	if rw.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EventsProcessed != 1 || len(resp.EventIDs) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateEventRejectsNonPositiveQuantity(t *testing.T) {
	h, _, _ := newTestEventsHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id": "acme",
		"resource":  "api",
		"feature":   "search",
		"quantity":  -1,
	})
	req := httptest.NewRequest("POST", "/v1/meter/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateEvent(rw, req)

	if rw.Code != 422 {
		t.Fatalf("expected 422 for quantity <= 0, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestCreateEventRejectsExplicitZeroQuantity(t *testing.T) {
	h, _, _ := newTestEventsHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id": "acme",
		"resource":  "api",
		"feature":   "search",
		"quantity":  0,
	})
	req := httptest.NewRequest("POST", "/v1/meter/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateEvent(rw, req)

	if rw.Code != 422 {
		t.Fatalf("expected 422 for an explicit quantity of 0, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestCreateEventRejectedQuantityLeavesNoCounterSideEffect(t *testing.T) {
	h, _, c := newTestEventsHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id": "acme",
		"resource":  "api",
		"feature":   "search",
		"quantity":  -1,
	})
	req := httptest.NewRequest("POST", "/v1/meter/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateEvent(rw, req)

	if rw.Code != 422 {
		t.Fatalf("expected 422, got %d: %s", rw.Code, rw.Body.String())
	}
	if _, ok, err := c.GetCounter(req.Context(), "acme", "api", "search", window.Hourly, time.Now()); err != nil || ok {
		t.Fatalf("rejected ingest must not touch the counter cache: ok=%v err=%v", ok, err)
	}
}

func TestCreateEventMalformedBodyIs422(t *testing.T) {
	h, _, _ := newTestEventsHandler(t)

	req := httptest.NewRequest("POST", "/v1/meter/events", bytes.NewReader([]byte(`{"unknown_field": true}`)))
	rw := httptest.NewRecorder()
	h.CreateEvent(rw, req)

	if rw.Code != 422 {
		t.Fatalf("expected 422 for unknown fields, got %d", rw.Code)
	}
}

func TestCreateEventDurableFailureIs503(t *testing.T) {
	h, mock, _ := newTestEventsHandler(t)
	mock.ExpectExec("INSERT INTO metering_events").WillReturnError(sqlmock.ErrCancelled)

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id": "acme",
		"resource":  "api",
		"feature":   "search",
	})
	req := httptest.NewRequest("POST", "/v1/meter/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateEvent(rw, req)

	if rw.Code != 503 {
		t.Fatalf("expected 503 when the durable insert fails, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestCreateBatchRejectsOutOfRangeSize(t *testing.T) {
	h, _, _ := newTestEventsHandler(t)

	body, _ := json.Marshal(map[string]interface{}{"events": []map[string]interface{}{}})
	req := httptest.NewRequest("POST", "/v1/meter/events/batch", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateBatch(rw, req)

	if rw.Code != 422 {
		t.Fatalf("expected 422 for an empty batch, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestListEventsRequiresValidDateFormat(t *testing.T) {
	h, _, _ := newTestEventsHandler(t)

	req := httptest.NewRequest("GET", "/v1/meter/events?start_date=not-a-date", nil)
	rw := httptest.NewRecorder()
	h.ListEvents(rw, req)

	if rw.Code != 422 {
		t.Fatalf("expected 422 for a malformed start_date, got %d", rw.Code)
	}
}

func TestListEventsReturnsPagedResult(t *testing.T) {
	h, mock, _ := newTestEventsHandler(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id, tenant_id").WillReturnRows(sqlmock.NewRows(
		[]string{"id", "tenant_id", "resource", "feature", "quantity", "timestamp", "metadata", "created_at"}))

	req := httptest.NewRequest("GET", "/v1/meter/events?tenant_id=acme", nil)
	rw := httptest.NewRecorder()
	h.ListEvents(rw, req)

	if rw.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["page"].(float64) != 1 || resp["page_size"].(float64) != 50 {
		t.Fatalf("unexpected pagination defaults: %+v", resp)
	}
}
