package prometheus

import (
	"strconv"
	"time"

	"kntu-schedule/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	namespace string

	// Cache store
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheWrites        *prometheus.CounterVec
	cacheWriteFailures *prometheus.CounterVec
	cacheExpired       *prometheus.CounterVec

	// Orchestrator
	fetches      *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Relay
	relayRequests *prometheus.CounterVec
	relayLatency  *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	return &Collector{
		namespace: namespace,
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits per data type",
			},
			[]string{"data_type"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses per data type",
			},
			[]string{"data_type"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Total number of cache write attempts per data type",
			},
			[]string{"data_type"},
		),
		cacheWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_failures_total",
				Help:      "Total number of swallowed cache write failures per data type",
			},
			[]string{"data_type"},
		),
		cacheExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_expired_total",
				Help:      "Total number of entries removed on read after their TTL passed",
			},
			[]string{"data_type"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of relay fetches per endpoint and outcome",
			},
			[]string{"endpoint", "status"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_fallbacks_total",
				Help:      "Total number of failed fetches answered from cache",
			},
			[]string{"endpoint"},
		),
		fetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Relay fetch latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"endpoint"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"circuit"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit"},
		),
		relayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_requests_total",
				Help:      "Total number of relayed requests per endpoint and HTTP status",
			},
			[]string{"endpoint", "code"},
		),
		relayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "relay_duration_seconds",
				Help:      "Relay request latency including the upstream call",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"endpoint"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.cacheHits,
		c.cacheMisses,
		c.cacheWrites,
		c.cacheWriteFailures,
		c.cacheExpired,
		c.fetches,
		c.fallbacks,
		c.fetchLatency,
		c.circuitOpens,
		c.circuitState,
		c.relayRequests,
		c.relayLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordCacheRead records a cache lookup.
func (c *Collector) RecordCacheRead(dataType string, hit bool) {
	if hit {
		c.cacheHits.WithLabelValues(dataType).Inc()
	} else {
		c.cacheMisses.WithLabelValues(dataType).Inc()
	}
}

// RecordCacheWrite records a cache write attempt.
func (c *Collector) RecordCacheWrite(dataType string, success bool) {
	c.cacheWrites.WithLabelValues(dataType).Inc()
	if !success {
		c.cacheWriteFailures.WithLabelValues(dataType).Inc()
	}
}

// RecordCacheExpired records an expired entry dropped on read.
func (c *Collector) RecordCacheExpired(dataType string) {
	c.cacheExpired.WithLabelValues(dataType).Inc()
}

// RecordFetch records a relay fetch.
func (c *Collector) RecordFetch(endpoint string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.fetches.WithLabelValues(endpoint, status).Inc()
	c.fetchLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordFallback records a fetch failure masked by cached data.
func (c *Collector) RecordFallback(endpoint string) {
	c.fallbacks.WithLabelValues(endpoint).Inc()
}

// RecordCircuitState records the current circuit breaker state.
func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordRelay records a relayed request.
func (c *Collector) RecordRelay(endpoint string, status int, duration time.Duration) {
	c.relayRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.relayLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}
