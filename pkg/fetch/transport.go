package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"kntu-schedule/pkg/logging"

	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a relay response is read.
const maxBodyBytes = 8 << 20

// Request is one relay call.
type Request struct {
	// Endpoint is the whitelisted relay endpoint name.
	Endpoint string
	Params   url.Values
}

// Response is the raw relay answer. Non-2xx statuses are returned as
// responses, not errors; the orchestrator decides what they mean.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Transport performs relay calls.
type Transport interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f.
func (f TransportFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport calls the relay over HTTP:
// GET <baseURL>?endpoint=<name>&<params>.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewHTTPTransport creates a transport against the relay at baseURL.
// A nil client uses a client without its own timeout; deadlines come from
// the request context.
func NewHTTPTransport(baseURL string, client *http.Client, logger *logging.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: baseURL,
		client:  client,
		logger:  logging.OrNop(logger).Named("transport"),
	}
}

// URL builds the relay URL for req.
func (t *HTTPTransport) URL(req Request) (string, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}

	q := u.Query()
	q.Set("endpoint", req.Endpoint)
	for k, vs := range req.Params {
		if k == "endpoint" {
			continue
		}
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs the call.
func (t *HTTPTransport) Fetch(ctx context.Context, req Request) (*Response, error) {
	target, err := t.URL(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}

	t.logger.Debug("relay call",
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	return &Response{Status: resp.StatusCode, Body: body}, nil
}
