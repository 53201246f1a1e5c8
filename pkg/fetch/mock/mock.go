package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"kntu-schedule/pkg/fetch"
)

// Transport is a mock fetch.Transport for testing.
// It allows injecting custom behavior and tracks call counts.
type Transport struct {
	// FetchFunc customizes behavior; nil answers 200 with an empty object.
	FetchFunc func(ctx context.Context, req fetch.Request) (*fetch.Response, error)

	// Call tracking (must use atomic operations for race-free access)
	fetchCalls int64

	mu       sync.Mutex
	requests []fetch.Request
}

// Fetch implements fetch.Transport with optional custom behavior.
func (m *Transport) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	atomic.AddInt64(&m.fetchCalls, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, req)
	}
	return &fetch.Response{Status: 200, Body: []byte("{}")}, nil
}

// FetchCalls returns the number of Fetch calls (thread-safe).
func (m *Transport) FetchCalls() int {
	return int(atomic.LoadInt64(&m.fetchCalls))
}

// Requests returns a copy of every request received, in arrival order.
func (m *Transport) Requests() []fetch.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]fetch.Request(nil), m.requests...)
}

// NewTransport creates a Transport answering every call with status and body.
func NewTransport(status int, body string) *Transport {
	return &Transport{
		FetchFunc: func(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
			return &fetch.Response{Status: status, Body: []byte(body)}, nil
		},
	}
}

// NewFailingTransport creates a Transport whose every call fails with err.
func NewFailingTransport(err error) *Transport {
	return &Transport{
		FetchFunc: func(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
			return nil, err
		},
	}
}

// ErrUnavailable is a mock transport error.
var ErrUnavailable = &mockError{"relay unavailable"}

type mockError struct {
	msg string
}

func (e *mockError) Error() string {
	return "mock: " + e.msg
}
