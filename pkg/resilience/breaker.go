// Package resilience protects relay calls with a circuit breaker.
package resilience

import (
	"errors"

	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// IsCircuitOpen checks if err reports a rejected call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// NewBreaker builds a gobreaker.CircuitBreaker from config. State changes are
// logged and reported to collector. isSuccessful decides which errors do not
// count as failures; nil counts every error.
func NewBreaker(config Config, logger *logging.Logger, collector metrics.Collector, isSuccessful func(error) bool) *gobreaker.CircuitBreaker {
	logger = logging.OrNop(logger).Named("resilience")
	collector = metrics.OrNoOp(collector)

	logger.Info("circuit breaker initialized",
		zap.String("circuit", config.Name),
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	settings := gobreaker.Settings{
		Name:         config.Name,
		MaxRequests:  config.CircuitBreakerConfig.MaxRequests,
		Interval:     config.CircuitBreakerConfig.Interval,
		Timeout:      config.CircuitBreakerConfig.Timeout,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreakerConfig.ReadyToTrip != nil {
				return config.CircuitBreakerConfig.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("circuit", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, circuitState(to))
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	default:
		return metrics.CircuitClosed
	}
}

// Rejected reports whether err came from the breaker itself.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
