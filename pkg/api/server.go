// Package api serves the relay together with health, status and metrics
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/relay"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Server provides the relay and monitoring endpoints.
type Server struct {
	relay    *relay.Handler
	snapshot func() interface{}
	registry *prometheus.Registry
	logger   *logging.Logger
	router   *mux.Router
	server   *http.Server
	config   ServerConfig
	started  time.Time

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration
}

// DefaultServerConfig returns a default configuration. WriteTimeout leaves
// room for the relay's upstream timeout.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry exposes registry on /metrics and records HTTP metrics in it.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithSnapshot serves snapshot on /metrics/json and in /status.
func WithSnapshot(snapshot func() interface{}) Option {
	return func(s *Server) { s.snapshot = snapshot }
}

// NewServer creates the server.
func NewServer(r *relay.Handler, config ServerConfig, opts ...Option) (*Server, error) {
	s := &Server{
		relay:   r,
		config:  config,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("api")

	router := mux.NewRouter()
	router.Use(s.requestID, s.accessLog)

	if s.registry != nil {
		if err := s.registerHTTPMetrics(); err != nil {
			return nil, err
		}
		router.Use(s.prometheusMiddleware)
		router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)
	if s.relay != nil {
		s.relay.Register(router)
	}

	s.router = router
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth returns a simple health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus returns uptime, the upstream circuit and collected metrics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).String(),
	}
	if s.relay != nil {
		response["upstream_circuit"] = s.relay.State().String()
	}
	if s.snapshot != nil {
		response["metrics"] = s.snapshot()
	}
	writeJSON(w, http.StatusOK, response)
}

// handleMetricsJSON returns the metrics snapshot.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if s.snapshot == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "Metrics collector does not support JSON snapshot",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// requestID tags every request with an ID, reusing a valid incoming one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// accessLog logs every request once it is served.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(srw, r)

		s.logger.Info("request served",
			zap.String("request_id", r.Header.Get(RequestIDHeader)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", r.URL.Query().Get("endpoint")),
			zap.Int("status", srw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
