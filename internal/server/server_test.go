package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbd888/agentscan/internal/config"
	"github.com/mbd888/agentscan/internal/index"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:       "0",
		Env:        "test",
		LogLevel:   "error",
		LogFmt:     "text",
		ChainNames: map[int64]string{84532: "base-sepolia"},
	}
	s, err := New(cfg, WithStore(index.NewMemoryStore()))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := get(s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if checks["database"] != "in-memory" {
		t.Errorf("database check = %v", checks["database"])
	}
}

func TestLivenessAndReadiness(t *testing.T) {
	s := newTestServer(t)

	if w := get(s, "/health/live"); w.Code != http.StatusOK {
		t.Errorf("liveness = %d", w.Code)
	}
	// Not ready until Run() marks it
	if w := get(s, "/health/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before Run = %d, want 503", w.Code)
	}

	s.ready.Store(true)
	if w := get(s, "/health/ready"); w.Code != http.StatusOK {
		t.Errorf("readiness = %d", w.Code)
	}
}

func TestReadAPIRoutesMounted(t *testing.T) {
	s := newTestServer(t)

	if w := get(s, "/v1/agents"); w.Code != http.StatusOK {
		t.Errorf("/v1/agents = %d", w.Code)
	}
	if w := get(s, "/v1/stats"); w.Code != http.StatusOK {
		t.Errorf("/v1/stats = %d", w.Code)
	}
	if w := get(s, "/v1/activity"); w.Code != http.StatusOK {
		t.Errorf("/v1/activity = %d", w.Code)
	}
	if w := get(s, "/v1/agents/84532/404"); w.Code != http.StatusNotFound {
		t.Errorf("missing agent = %d, want 404", w.Code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	s := newTestServer(t)

	w := get(s, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Error("metrics body empty")
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := get(s, "/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}
