// Package relay is the same-origin proxy in front of the upstream schedule
// API. It forwards whitelisted endpoints and reports failures as JSON.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/metrics"
	"kntu-schedule/pkg/resilience"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// Path is where the relay is mounted.
	Path = "/api/proxy"

	DefaultUpstream = "https://sheduleapi.kntu.pp.ua/api"
	DefaultTimeout  = 10 * time.Second
	UserAgent       = "KNTU-Schedule-App/1.0"

	maxBodyBytes = 8 << 20
)

// Endpoints maps the allowed endpoint names to upstream paths.
var Endpoints = map[string]string{
	"faculties":          "/faculties/get-all",
	"groups":             "/groups/get-all-by-id-faculty",
	"cafedras":           "/cafedras/get-all-by-id-faculty",
	"instructors":        "/instructors/get-all-by-cafedra",
	"scheduleGroup":      "/schedule/group/get-all-by-day",
	"scheduleInstructor": "/schedule/instructor/get-all-by-day",
}

// Config configures a Handler.
type Config struct {
	Upstream  string
	Timeout   time.Duration
	Endpoints map[string]string
	Breaker   resilience.Config
}

// DefaultConfig returns the production upstream with the standard whitelist.
func DefaultConfig() Config {
	return Config{
		Upstream:  DefaultUpstream,
		Timeout:   DefaultTimeout,
		Endpoints: Endpoints,
		Breaker:   resilience.DefaultConfig("relay-upstream"),
	}
}

// errorBody is the JSON body of every relay failure.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Endpoint  string `json:"endpoint,omitempty"`
	Details   string `json:"details,omitempty"`
	JSONError string `json:"json_error,omitempty"`
}

// statusError is a non-2xx upstream answer.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d %s", e.status, http.StatusText(e.status))
}

// Handler serves the relay.
type Handler struct {
	config  Config
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *logging.Logger
	metrics metrics.Collector
}

// NewHandler creates a relay. A nil client gets one bounded by
// config.Timeout.
func NewHandler(config Config, client *http.Client, logger *logging.Logger, collector metrics.Collector) *Handler {
	if config.Endpoints == nil {
		config.Endpoints = Endpoints
	}
	if config.Upstream == "" {
		config.Upstream = DefaultUpstream
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Breaker.Name == "" {
		config.Breaker = resilience.DefaultConfig("relay-upstream")
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	logger = logging.OrNop(logger).Named("relay")
	collector = metrics.OrNoOp(collector)
	return &Handler{
		config:  config,
		client:  client,
		cb:      resilience.NewBreaker(config.Breaker, logger, collector, countsAsSuccess),
		logger:  logger,
		metrics: collector,
	}
}

// countsAsSuccess lets client errors and caller cancellation pass without
// tripping the breaker.
func countsAsSuccess(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status < 500
	}
	return err == nil || errors.Is(err, context.Canceled)
}

// Register mounts the relay on r.
func (h *Handler) Register(r *mux.Router) {
	r.Handle(Path, h).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
}

// State returns the upstream breaker state.
func (h *Handler) State() gobreaker.State {
	return h.cb.State()
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	params := r.URL.Query()
	endpoint := params.Get("endpoint")
	params.Del("endpoint")

	status := h.serve(r.Context(), w, endpoint, params)
	h.metrics.RecordRelay(endpoint, status, time.Since(start))
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, endpoint string, params url.Values) int {
	if endpoint == "" {
		return writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Missing endpoint parameter",
			Message: "Endpoint parameter is required",
		})
	}

	path, ok := h.config.Endpoints[endpoint]
	if !ok {
		h.logger.Info("endpoint rejected", zap.String("endpoint", endpoint))
		return writeError(w, http.StatusBadRequest, errorBody{
			Error:    "Invalid endpoint",
			Message:  "Endpoint not allowed",
			Endpoint: endpoint,
		})
	}

	body, err := h.fetch(ctx, upstreamURL(h.config.Upstream, path, params))
	if err != nil {
		h.logger.Error("upstream request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return writeError(w, http.StatusInternalServerError, errorBody{
			Error:   "API request failed",
			Message: "Failed to fetch data from external API",
			Details: err.Error(),
		})
	}

	var probe json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		h.logger.Error("upstream returned invalid JSON",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return writeError(w, http.StatusInternalServerError, errorBody{
			Error:     "Invalid JSON response",
			Message:   "API returned invalid JSON",
			JSONError: err.Error(),
		})
	}

	w.WriteHeader(http.StatusOK)
	w.Write(body)
	return http.StatusOK
}

// fetch GETs target through the breaker.
func (h *Handler) fetch(ctx context.Context, target string) ([]byte, error) {
	result, err := h.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", UserAgent)

		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, &statusError{status: resp.StatusCode}
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	})
	if err != nil {
		if resilience.Rejected(err) {
			return nil, fmt.Errorf("%w: %v", resilience.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func upstreamURL(base, path string, params url.Values) string {
	target := strings.TrimRight(base, "/") + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

func writeError(w http.ResponseWriter, status int, body errorBody) int {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
	return status
}
