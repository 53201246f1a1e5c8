package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kntu-schedule/pkg/fetch"
	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// errServerStatus marks a 5xx response inside the breaker so it counts as a
// failure; callers still receive the response itself.
var errServerStatus = errors.New("server error status")

// Transport wraps a fetch.Transport with a circuit breaker and an optional
// per-call timeout. 5xx responses and transport errors count as failures;
// 4xx responses do not. A rejected call surfaces as ErrCircuitOpen, which the
// orchestrator reports as a failed request.
type Transport struct {
	next    fetch.Transport
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger
}

// NewTransport wraps next with the breaker described by config.
func NewTransport(next fetch.Transport, config Config, logger *logging.Logger, collector metrics.Collector) *Transport {
	logger = logging.OrNop(logger)
	return &Transport{
		next:    next,
		cb:      NewBreaker(config, logger, collector, countsAsSuccess),
		timeout: config.Timeout,
		logger:  logger.Named("resilience").With(zap.String("circuit", config.Name)),
	}
}

// countsAsSuccess keeps caller cancellation from tripping the breaker.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// State returns the current breaker state.
func (t *Transport) State() gobreaker.State {
	return t.cb.State()
}

// Fetch performs req through the breaker.
func (t *Transport) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Status >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})

	if errors.Is(err, errServerStatus) {
		return result.(*fetch.Response), nil
	}

	if err != nil {
		if Rejected(err) {
			t.logger.Warn("circuit breaker open - request rejected",
				zap.String("endpoint", req.Endpoint),
			)
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.logger.Warn("relay call timeout",
				zap.String("endpoint", req.Endpoint),
				zap.Duration("timeout", t.timeout),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
		return nil, err
	}

	return result.(*fetch.Response), nil
}
