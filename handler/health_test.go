package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/moasakthi/metering/cache"
	"github.com/moasakthi/metering/store"
)

func newTestHealthHandler(t *testing.T) (*HealthHandler, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	sdb := sqlx.NewDb(mockDB, "sqlmock")
	db := &store.DB{DB: sdb}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	return NewHealthHandler(db, c), mock, mr
}

func TestHealthReportsHealthyWhenBothReachable(t *testing.T) {
	h, mock, _ := newTestHealthHandler(t)
	mock.ExpectPing()

	req := httptest.NewRequest("GET", "/v1/meter/health", nil)
	rw := httptest.NewRecorder()
	h.Health(rw, req)

	if rw.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Fatalf("expected healthy, got %+v", resp)
	}
}

func TestHealthReportsDegradedWhenDatabaseUnreachable(t *testing.T) {
	h, mock, _ := newTestHealthHandler(t)
	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)

	req := httptest.NewRequest("GET", "/v1/meter/health", nil)
	rw := httptest.NewRecorder()
	h.Health(rw, req)

	if rw.Code != 200 {
		t.Fatalf("health always responds 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Fatalf("expected degraded when the database ping fails, got %+v", resp)
	}
	services := resp["services"].(map[string]interface{})
	if services["database"] != false {
		t.Fatalf("expected database=false, got %+v", services)
	}
}

func TestHealthReportsDegradedWhenCacheUnreachable(t *testing.T) {
	h, mock, mr := newTestHealthHandler(t)
	mock.ExpectPing()
	mr.Close()

	req := httptest.NewRequest("GET", "/v1/meter/health", nil)
	rw := httptest.NewRecorder()
	h.Health(rw, req)

	if rw.Code != 200 {
		t.Fatalf("health always responds 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Fatalf("expected degraded when the cache is unreachable, got %+v", resp)
	}
	services := resp["services"].(map[string]interface{})
	if services["redis"] != false {
		t.Fatalf("expected redis=false, got %+v", services)
	}
}
