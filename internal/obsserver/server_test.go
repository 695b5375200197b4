package obsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cachesim/cachesim/internal/health"
	"github.com/cachesim/cachesim/internal/metrics"
)

func newTestServer(t *testing.T, checker *health.Checker, collector *metrics.Collector) *Server {
	t.Helper()
	config := DefaultConfig()
	config.Address = "localhost:0"
	return NewServer(config, checker, collector)
}

func TestHandleHealthz_NoChecker(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestHandleHealthz_WithChecker(t *testing.T) {
	t.Parallel()

	checker, err := health.NewChecker(nil)
	if err != nil {
		t.Fatalf("NewChecker error: %v", err)
	}
	err = checker.RegisterCheck("invariant", "I1 holds", health.CategoryInvariant, health.PriorityCritical,
		health.InvariantCheck(func() error { return nil }))
	if err != nil {
		t.Fatalf("RegisterCheck error: %v", err)
	}
	if _, err := checker.RunAllChecks(context.Background()); err != nil {
		t.Fatalf("RunAllChecks error: %v", err)
	}

	s := newTestServer(t, checker, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleHealthz_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.handleHealthz(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleLiveness(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	rec := httptest.NewRecorder()

	s.handleLiveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleInfo(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()

	s.handleInfo(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}

	endpoints, ok := body["endpoints"].([]interface{})
	if !ok {
		t.Fatal("endpoints field missing or wrong type")
	}
	found := false
	for _, e := range endpoints {
		if e == "/metrics" {
			found = true
		}
	}
	if !found {
		t.Error("expected /metrics endpoint to be listed when metrics are enabled")
	}
}

func TestNewServer_MetricsMounted(t *testing.T) {
	t.Parallel()

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "test_obsserver"})
	if err != nil {
		t.Fatalf("NewCollector error: %v", err)
	}
	collector.RecordHit("default")

	s := newTestServer(t, nil, collector)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}
