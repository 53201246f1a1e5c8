// Package fetch composes the cache store with the relay transport:
// cache-aside reads, write-through on success and fallback to stale cache on
// failure.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"kntu-schedule/pkg/cache"
	"kntu-schedule/pkg/config"
	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options tune a single request.
type Options struct {
	// ForceRefresh skips the cache read.
	ForceRefresh bool
	// FallbackToCache overrides the configured fallback policy when set.
	FallbackToCache *bool
}

// Fallback returns a pointer for Options.FallbackToCache.
func Fallback(enabled bool) *bool {
	return &enabled
}

// Orchestrator performs cache-aside requests against the relay.
type Orchestrator struct {
	store     *cache.Store
	transport Transport
	provider  config.Provider
	logger    *logging.Logger
	metrics   metrics.Collector
	sf        singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// NewOrchestrator creates an orchestrator. provider supplies the request
// timeout and the default fallback policy; it may be nil.
func NewOrchestrator(store *cache.Store, transport Transport, provider config.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		transport: transport,
		provider:  provider,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger).Named("fetch")
	o.metrics = metrics.OrNoOp(o.metrics)
	return o
}

// Store returns the cache store requests go through.
func (o *Orchestrator) Store() *cache.Store {
	return o.store
}

func (o *Orchestrator) timeout() time.Duration {
	if o.provider == nil || o.provider.Config() == nil {
		return 0
	}
	return o.provider.Config().Timeout()
}

func (o *Orchestrator) fallbackDefault() bool {
	if o.provider == nil || o.provider.Config() == nil {
		return true
	}
	return o.provider.Config().FallbackToCache()
}

// Request returns the data for dataType and params. A valid cache entry is
// returned without a network call unless ForceRefresh is set. A successful
// fetch is written to the cache exactly once. On failure the cached entry is
// returned when fallback is enabled and one exists; otherwise the failure is
// returned as *Error.
//
// Identical concurrent requests share one fetch. Cancelling ctx abandons the
// wait but not the shared fetch, which is bounded by the configured timeout.
func (o *Orchestrator) Request(ctx context.Context, dataType string, params url.Values, opts Options) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fallback := o.fallbackDefault()
	if opts.FallbackToCache != nil {
		fallback = *opts.FallbackToCache
	}

	key := LogicalKey(dataType, params)
	flightKey := key + "|" + strconv.FormatBool(opts.ForceRefresh) + "|" + strconv.FormatBool(fallback)

	// The shared flight outlives any single caller's cancellation; each caller
	// still returns as soon as its own context is done.
	flight := context.WithoutCancel(ctx)
	ch := o.sf.DoChan(flightKey, func() (interface{}, error) {
		return o.request(flight, dataType, key, params, opts.ForceRefresh, fallback)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			o.logger.Debug("request coalesced", zap.String("key", key))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

func (o *Orchestrator) request(ctx context.Context, dataType, key string, params url.Values, force, fallback bool) (json.RawMessage, error) {
	if !force {
		if data, ok := o.store.Read(ctx, dataType, key); ok {
			return data, nil
		}
	}

	data, err := o.fetch(ctx, dataType, params)
	if err != nil {
		if fallback {
			if cached, ok := o.store.Read(ctx, dataType, key); ok {
				o.metrics.RecordFallback(dataType)
				o.logger.Warn("serving cached data after failed request",
					zap.String("endpoint", dataType),
					zap.Error(err),
				)
				return cached, nil
			}
		}
		o.logger.Error("request failed", zap.String("endpoint", dataType), zap.Error(err))
		return nil, err
	}

	o.store.Write(ctx, dataType, key, data)
	return data, nil
}

// fetch performs the transport call bounded by the configured timeout and
// maps every failure to *Error.
func (o *Orchestrator) fetch(ctx context.Context, dataType string, params url.Values) (json.RawMessage, error) {
	if d := o.timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.transport.Fetch(ctx, Request{Endpoint: dataType, Params: params})
	duration := time.Since(start)

	switch {
	case err != nil:
		o.metrics.RecordFetch(dataType, false, duration)
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", o.timeout())
		}
		return nil, &Error{Endpoint: dataType, Message: msg, Err: err}

	case !resp.OK():
		o.metrics.RecordFetch(dataType, false, duration)
		return nil, &Error{Endpoint: dataType, Status: resp.Status, Message: statusMessage(resp)}

	case !json.Valid(resp.Body):
		o.metrics.RecordFetch(dataType, false, duration)
		return nil, &Error{Endpoint: dataType, Status: resp.Status, Message: "response is not valid JSON"}
	}

	o.metrics.RecordFetch(dataType, true, duration)
	return json.RawMessage(resp.Body), nil
}

// statusMessage prefers the relay's JSON error message over the bare status
// text.
func statusMessage(resp *Response) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &body) == nil && body.Message != "" {
		if body.Error != "" {
			return body.Error + ": " + body.Message
		}
		return body.Message
	}
	return httpStatusText(resp.Status)
}
