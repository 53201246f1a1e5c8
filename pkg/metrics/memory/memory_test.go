package memory

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"kntu-schedule/pkg/metrics"
)

func TestCollector_Cache(t *testing.T) {
	mc := NewCollector()

	mc.RecordCacheRead("faculties", true)
	mc.RecordCacheRead("faculties", false)
	mc.RecordCacheWrite("faculties", true)
	mc.RecordCacheWrite("faculties", false)
	mc.RecordCacheExpired("faculties")

	got := mc.DataType("faculties")
	want := DataTypeMetrics{Hits: 1, Misses: 1, Writes: 2, WriteFailures: 1, Expired: 1}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if empty := mc.DataType("unknown"); empty != (DataTypeMetrics{}) {
		t.Errorf("Expected zero metrics for unknown type, got %+v", empty)
	}
}

func TestCollector_Endpoints(t *testing.T) {
	mc := NewCollector()

	mc.RecordFetch("groups", true, time.Millisecond)
	mc.RecordFetch("groups", false, 2*time.Millisecond)
	mc.RecordFallback("groups")
	mc.RecordRelay("groups", 200, time.Millisecond)
	mc.RecordRelay("groups", 500, time.Millisecond)
	mc.RecordRelay("groups", 500, time.Millisecond)

	m := mc.Endpoint("groups")
	if m.Fetches != 2 || m.FetchFailures != 1 || m.Fallbacks != 1 {
		t.Errorf("Unexpected fetch metrics %+v", m)
	}
	if m.RelayByStatus[500] != 2 || m.RelayByStatus[200] != 1 {
		t.Errorf("Unexpected relay metrics %v", m.RelayByStatus)
	}
	if len(m.FetchLatencies) != 2 {
		t.Errorf("Expected 2 latencies, got %d", len(m.FetchLatencies))
	}

	// Returned copies are detached from the collector.
	m.RelayByStatus[200] = 99
	if mc.Endpoint("groups").RelayByStatus[200] != 1 {
		t.Error("Endpoint() must return a copy")
	}
}

func TestCollector_CircuitAndSnapshot(t *testing.T) {
	mc := NewCollector()
	mc.RecordCircuitState("relay", metrics.CircuitOpen)

	if mc.CircuitState("relay") != metrics.CircuitOpen {
		t.Errorf("Expected open, got %v", mc.CircuitState("relay"))
	}

	mc.RecordCacheRead("groups", true)
	mc.RecordRelay("groups", 200, 0)

	data, err := json.Marshal(mc.Snapshot())
	if err != nil {
		t.Fatalf("Snapshot is not JSON encodable: %v", err)
	}
	if len(data) == 0 {
		t.Error("Empty snapshot")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	mc := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.RecordCacheRead("groups", true)
			mc.RecordFetch("groups", true, time.Millisecond)
		}()
	}
	wg.Wait()

	if mc.DataType("groups").Hits != 20 {
		t.Errorf("Expected 20 hits, got %d", mc.DataType("groups").Hits)
	}
}
