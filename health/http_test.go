package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestMux(checkers ...Checker) *http.ServeMux {
	agg := NewAggregator(0)
	for _, c := range checkers {
		agg.Register(c)
	}
	mux := http.NewServeMux()
	RegisterHandlers(mux, agg)
	return mux
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		path     string
		wantCode int
		wantBody string
	}{
		{"liveness ignores checks", []Checker{fixed("cache", Unhealthy("closed", ErrCacheClosed))}, "/healthz", http.StatusOK, "OK"},
		{"ready", []Checker{fixed("cache", Healthy("ok"))}, "/readyz", http.StatusOK, "OK"},
		{"degraded is ready", []Checker{fixed("cache", Degraded("stale"))}, "/readyz", http.StatusOK, "DEGRADED"},
		{"unhealthy not ready", []Checker{fixed("cache", Unhealthy("closed", ErrCacheClosed))}, "/readyz", http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestMux(tt.checkers...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	mux := newTestMux(
		fixed("cache", Degraded("stale").WithDetails(map[string]any{"entries": 3})),
		fixed("backend", Unhealthy("down", ErrCheckFailed)),
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" || resp.Timestamp == "" {
		t.Errorf("response = %+v", resp)
	}
	if got := resp.Checks["backend"]; got.Error != ErrCheckFailed.Error() {
		t.Errorf("backend check = %+v", got)
	}
	if got := resp.Checks["cache"]; got.Status != "degraded" || got.Details["entries"] != float64(3) {
		t.Errorf("cache check = %+v", got)
	}
}

func TestCheckHandler(t *testing.T) {
	mux := newTestMux(fixed("cache", Healthy("ok")))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/cache", nil))
	var resp CheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != "healthy" || resp.Message != "ok" {
		t.Errorf("GET /health/cache = %d %+v", rec.Code, resp)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /health/nope = %d, want 404", rec.Code)
	}
}
