package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	memorycollector "kntu-schedule/pkg/metrics/memory"
	"kntu-schedule/pkg/relay"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func setupTestServer(t *testing.T) (*Server, *memorycollector.Collector) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"ФІТ"}]`))
	}))
	t.Cleanup(upstream.Close)

	metrics := memorycollector.NewCollector()
	cfg := relay.DefaultConfig()
	cfg.Upstream = upstream.URL
	rh := relay.NewHandler(cfg, upstream.Client(), nil, metrics)

	server, err := NewServer(rh, DefaultServerConfig(),
		WithRegistry(prometheus.NewRegistry()),
		WithSnapshot(metrics.Snapshot),
	)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return server, metrics
}

func serve(server *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	server, _ := setupTestServer(t)

	w := serve(server, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", response["status"])
	}
}

func TestServer_Status(t *testing.T) {
	server, _ := setupTestServer(t)

	w := serve(server, http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)

	if response["status"] != "running" {
		t.Errorf("Expected status running, got %v", response["status"])
	}
	if response["upstream_circuit"] != "closed" {
		t.Errorf("Expected closed circuit, got %v", response["upstream_circuit"])
	}
	if _, ok := response["metrics"]; !ok {
		t.Error("Expected metrics snapshot in status")
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)

	w := serve(server, http.MethodPost, "/health")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_Relay(t *testing.T) {
	server, metrics := setupTestServer(t)

	w := serve(server, http.MethodGet, "/api/proxy?endpoint=faculties")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ФІТ") {
		t.Errorf("Expected upstream body, got %s", w.Body.String())
	}
	if got := metrics.Endpoint("faculties").RelayByStatus[http.StatusOK]; got != 1 {
		t.Errorf("Expected 1 relayed request, got %d", got)
	}

	w = serve(server, http.MethodGet, "/api/proxy?endpoint=secrets")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestServer_RequestID(t *testing.T) {
	server, _ := setupTestServer(t)

	w := serve(server, http.MethodGet, "/health")
	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Expected generated UUID, got %q", id)
	}

	incoming := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, incoming)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != incoming {
		t.Errorf("Expected request ID %q to be kept, got %q", incoming, got)
	}
}

func TestServer_Metrics(t *testing.T) {
	server, _ := setupTestServer(t)

	serve(server, http.MethodGet, "/api/proxy?endpoint=faculties")
	w := serve(server, http.MethodGet, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `schedule_http_requests_total{code="200",method="GET",route="/api/proxy"} 1`) {
		t.Errorf("Expected relay request counter, got:\n%s", body)
	}
}

func TestServer_MetricsJSON(t *testing.T) {
	server, _ := setupTestServer(t)

	w := serve(server, http.MethodGet, "/metrics/json")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	bare, err := NewServer(nil, DefaultServerConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	w = serve(bare, http.MethodGet, "/metrics/json")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without a snapshot, got %d", w.Code)
	}
	w = serve(bare, http.MethodGet, "/metrics")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without a registry, got %d", w.Code)
	}
}

func TestServer_DuplicateRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := NewServer(nil, DefaultServerConfig(), WithRegistry(registry)); err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if _, err := NewServer(nil, DefaultServerConfig(), WithRegistry(registry)); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}
