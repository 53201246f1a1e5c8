package metrics

import (
	"time"
)

// Collector defines the interface for collecting data-layer metrics.
// Implementations can export metrics to various backends (Prometheus, tests).
type Collector interface {
	// Cache store
	RecordCacheRead(dataType string, hit bool)
	RecordCacheWrite(dataType string, success bool)
	RecordCacheExpired(dataType string)

	// Request orchestration
	RecordFetch(endpoint string, success bool, duration time.Duration)
	RecordFallback(endpoint string)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)

	// Relay
	RecordRelay(endpoint string, status int, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OrNoOp returns c, or NoOpCollector when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}

// NoOpCollector is a no-op implementation of Collector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

// RecordCacheRead does nothing.
func (NoOpCollector) RecordCacheRead(dataType string, hit bool) {}

// RecordCacheWrite does nothing.
func (NoOpCollector) RecordCacheWrite(dataType string, success bool) {}

// RecordCacheExpired does nothing.
func (NoOpCollector) RecordCacheExpired(dataType string) {}

// RecordFetch does nothing.
func (NoOpCollector) RecordFetch(endpoint string, success bool, duration time.Duration) {}

// RecordFallback does nothing.
func (NoOpCollector) RecordFallback(endpoint string) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

// RecordRelay does nothing.
func (NoOpCollector) RecordRelay(endpoint string, status int, duration time.Duration) {}
