package fetch_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"kntu-schedule/pkg/cache"
	"kntu-schedule/pkg/config"
	"kntu-schedule/pkg/fetch"
	"kntu-schedule/pkg/fetch/mock"
	"kntu-schedule/pkg/metrics/memory"
	"kntu-schedule/pkg/storage"
	memstorage "kntu-schedule/pkg/storage/memory"
)

type staticProvider struct {
	cfg *config.Config
}

func (p staticProvider) Config() *config.Config { return p.cfg }

func newStore(t *testing.T, mc *memory.Collector) *cache.Store {
	t.Helper()
	tiers := storage.Tiers{
		storage.Session:    memstorage.New(memstorage.Config{Name: "session"}),
		storage.Persistent: memstorage.New(memstorage.Config{Name: "persistent"}),
	}
	return cache.New(tiers, nil, cache.WithMetrics(mc))
}

func TestLogicalKey_OrderIndependent(t *testing.T) {
	a := url.Values{}
	a.Set("groupId", "42")
	a.Set("date", "2025-09-01")

	b := url.Values{}
	b.Set("date", "2025-09-01")
	b.Set("groupId", "42")

	if fetch.LogicalKey("scheduleGroup", a) != fetch.LogicalKey("scheduleGroup", b) {
		t.Errorf("Keys differ: %q vs %q", fetch.LogicalKey("scheduleGroup", a), fetch.LogicalKey("scheduleGroup", b))
	}
	if got := fetch.LogicalKey("scheduleGroup", a); got != "scheduleGroup_date=2025-09-01&groupId=42" {
		t.Errorf("Unexpected key %q", got)
	}
	if got := fetch.LogicalKey("faculties", url.Values{}); got != "faculties_" {
		t.Errorf("Unexpected key for empty params %q", got)
	}
}

func TestOrchestrator_CacheHitSkipsTransport(t *testing.T) {
	ctx := context.Background()
	mc := memory.NewCollector()
	store := newStore(t, mc)
	transport := mock.NewTransport(200, `[{"id":1}]`)
	o := fetch.NewOrchestrator(store, transport, nil)

	params := url.Values{"idFaculty": {"3"}}
	store.Write(ctx, "groups", fetch.LogicalKey("groups", params), []int{7})

	data, err := o.Request(ctx, "groups", params, fetch.Options{})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(data) != "[7]" {
		t.Errorf("Expected cached value, got %s", data)
	}
	if transport.FetchCalls() != 0 {
		t.Errorf("Expected 0 transport calls on cache hit, got %d", transport.FetchCalls())
	}
}

func TestOrchestrator_MissFetchesAndWritesOnce(t *testing.T) {
	ctx := context.Background()
	mc := memory.NewCollector()
	store := newStore(t, mc)
	transport := mock.NewTransport(200, `[{"id":1}]`)
	o := fetch.NewOrchestrator(store, transport, nil, fetch.WithMetrics(mc))

	data, err := o.Faculties(ctx, fetch.Options{})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(data) != `[{"id":1}]` {
		t.Errorf("Unexpected data %s", data)
	}
	if mc.DataType("faculties").Writes != 1 {
		t.Errorf("Expected exactly 1 write, got %d", mc.DataType("faculties").Writes)
	}

	// Served from cache now
	if _, err := o.Faculties(ctx, fetch.Options{}); err != nil {
		t.Fatal(err)
	}
	if transport.FetchCalls() != 1 {
		t.Errorf("Expected 1 transport call, got %d", transport.FetchCalls())
	}

	req := transport.Requests()[0]
	if req.Endpoint != "faculties" || len(req.Params) != 0 {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestOrchestrator_ForceRefresh(t *testing.T) {
	ctx := context.Background()
	mc := memory.NewCollector()
	store := newStore(t, mc)
	transport := mock.NewTransport(200, `["fresh"]`)
	o := fetch.NewOrchestrator(store, transport, nil)

	store.Write(ctx, "faculties", "faculties_", []string{"stale"})

	data, err := o.Request(ctx, "faculties", nil, fetch.Options{ForceRefresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["fresh"]` || transport.FetchCalls() != 1 {
		t.Errorf("Expected forced fetch, got %s after %d calls", data, transport.FetchCalls())
	}

	cached, ok := store.Read(ctx, "faculties", "faculties_")
	if !ok || string(cached) != `["fresh"]` {
		t.Errorf("Expected refreshed cache, got %s", cached)
	}
}

func TestOrchestrator_FallbackToCache(t *testing.T) {
	ctx := context.Background()
	mc := memory.NewCollector()
	store := newStore(t, mc)
	transport := mock.NewFailingTransport(mock.ErrUnavailable)
	o := fetch.NewOrchestrator(store, transport, nil, fetch.WithMetrics(mc))

	params := url.Values{"idCafedra": {"9"}}
	store.Write(ctx, "instructors", fetch.LogicalKey("instructors", params), []string{"cached"})
	writesBefore := mc.DataType("instructors").Writes

	// Force a network call so the cached entry is only used as fallback.
	data, err := o.Request(ctx, "instructors", params, fetch.Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("Expected fallback to mask the failure, got %v", err)
	}
	if string(data) != `["cached"]` {
		t.Errorf("Expected cached value, got %s", data)
	}
	if mc.DataType("instructors").Writes != writesBefore {
		t.Error("Fallback must not write to the cache")
	}
	if mc.Endpoint("instructors").Fallbacks != 1 {
		t.Errorf("Expected 1 fallback, got %d", mc.Endpoint("instructors").Fallbacks)
	}
}

func TestOrchestrator_FailureWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.NewCollector())
	o := fetch.NewOrchestrator(store, mock.NewFailingTransport(mock.ErrUnavailable), nil)

	_, err := o.Instructors(ctx, "9", fetch.Options{})
	if !fetch.IsRequestFailed(err) {
		t.Fatalf("Expected RequestFailed, got %v", err)
	}
	if !errors.Is(err, mock.ErrUnavailable) {
		t.Error("Expected the transport error to be wrapped")
	}
}

func TestOrchestrator_FallbackDisabled(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.NewCollector())
	o := fetch.NewOrchestrator(store, mock.NewTransport(503, `{"error":"API request failed","message":"Failed to fetch data from external API"}`), nil)

	store.Write(ctx, "faculties", "faculties_", []int{1})

	_, err := o.Faculties(ctx, fetch.Options{ForceRefresh: true, FallbackToCache: fetch.Fallback(false)})
	e, ok := fetch.AsError(err)
	if !ok {
		t.Fatalf("Expected *fetch.Error, got %v", err)
	}
	if e.Status != 503 {
		t.Errorf("Expected status 503, got %d", e.Status)
	}
	if e.Message != "API request failed: Failed to fetch data from external API" {
		t.Errorf("Unexpected message %q", e.Message)
	}
}

func TestOrchestrator_ConfiguredFallbackPolicy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.NewCollector())
	off := false
	provider := staticProvider{cfg: &config.Config{ErrorHandling: config.ErrorHandling{FallbackToCache: &off}}}
	o := fetch.NewOrchestrator(store, mock.NewFailingTransport(mock.ErrUnavailable), provider)

	store.Write(ctx, "faculties", "faculties_", []int{1})

	if _, err := o.Faculties(ctx, fetch.Options{ForceRefresh: true}); !fetch.IsRequestFailed(err) {
		t.Errorf("Expected configured policy to disable fallback, got %v", err)
	}
	if _, err := o.Faculties(ctx, fetch.Options{ForceRefresh: true, FallbackToCache: fetch.Fallback(true)}); err != nil {
		t.Errorf("Expected per-request override to enable fallback, got %v", err)
	}
}

func TestOrchestrator_InvalidJSON(t *testing.T) {
	ctx := context.Background()
	mc := memory.NewCollector()
	store := newStore(t, mc)
	o := fetch.NewOrchestrator(store, mock.NewTransport(200, `<html>`), nil)

	_, err := o.Faculties(ctx, fetch.Options{})
	if !fetch.IsRequestFailed(err) {
		t.Fatalf("Expected RequestFailed for invalid JSON, got %v", err)
	}
	if mc.DataType("faculties").Writes != 0 {
		t.Error("Invalid response must not be cached")
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.NewCollector())
	transport := &mock.Transport{
		FetchFunc: func(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	provider := staticProvider{cfg: &config.Config{API: config.API{TimeoutMillis: 20}}}
	o := fetch.NewOrchestrator(store, transport, provider)

	start := time.Now()
	_, err := o.Faculties(ctx, fetch.Options{})
	if !fetch.IsRequestFailed(err) {
		t.Fatalf("Expected RequestFailed on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded cause, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Timeout was not applied")
	}
}

func TestOrchestrator_CoalescesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	mc := memory.NewCollector()
	store := newStore(t, mc)

	release := make(chan struct{})
	transport := &mock.Transport{
		FetchFunc: func(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
			<-release
			return &fetch.Response{Status: 200, Body: []byte(`[1]`)}, nil
		},
	}
	o := fetch.NewOrchestrator(store, transport, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Groups(ctx, "1", fetch.Options{}); err != nil {
				t.Errorf("Request failed: %v", err)
			}
		}()
	}

	// Let the callers pile up behind the first fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if transport.FetchCalls() != 1 {
		t.Errorf("Expected 1 coalesced fetch, got %d", transport.FetchCalls())
	}
	if mc.DataType("groups").Writes != 1 {
		t.Errorf("Expected 1 write, got %d", mc.DataType("groups").Writes)
	}
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := mock.NewTransport(200, `[]`)
	o := fetch.NewOrchestrator(newStore(t, memory.NewCollector()), transport, nil)

	if _, err := o.Faculties(ctx, fetch.Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if transport.FetchCalls() != 0 {
		t.Error("Cancelled request must not reach the transport")
	}
}

func TestOrchestrator_CancelledWaiterDoesNotFailSharedFetch(t *testing.T) {
	store := newStore(t, memory.NewCollector())
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	transport := &mock.Transport{
		FetchFunc: func(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
			once.Do(func() { close(started) })
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &fetch.Response{Status: 200, Body: []byte(`[{"id":1}]`)}, nil
		},
	}
	o := fetch.NewOrchestrator(store, transport, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := o.Faculties(ctx, fetch.Options{})
		errA <- err
	}()
	<-started

	type result struct {
		data string
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		data, err := o.Faculties(context.Background(), fetch.Options{})
		resB <- result{string(data), err}
	}()

	cancel()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled for the cancelled caller, got %v", err)
	}

	close(release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("Expected shared fetch to succeed, got %v", b.err)
	}
	if b.data != `[{"id":1}]` {
		t.Errorf("Unexpected data %s", b.data)
	}
	if _, ok := store.Read(context.Background(), "faculties", fetch.LogicalKey("faculties", nil)); !ok {
		t.Error("Expected the shared fetch to be cached")
	}
}
