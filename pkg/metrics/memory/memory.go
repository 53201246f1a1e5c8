package memory

import (
	"sync"
	"time"

	"kntu-schedule/pkg/metrics"
)

// Collector implements metrics.Collector in memory, for tests and the JSON
// status endpoint.
type Collector struct {
	mu sync.RWMutex

	dataTypes map[string]*DataTypeMetrics
	endpoints map[string]*EndpointMetrics
	circuits  map[string]metrics.CircuitState
}

// DataTypeMetrics holds cache metrics for one data type.
type DataTypeMetrics struct {
	Hits          int64
	Misses        int64
	Writes        int64
	WriteFailures int64
	Expired       int64
}

// EndpointMetrics holds request metrics for one endpoint.
type EndpointMetrics struct {
	Fetches        int64
	FetchFailures  int64
	Fallbacks      int64
	RelayByStatus  map[int]int64
	FetchLatencies []time.Duration
}

// NewCollector creates a new in-memory metrics collector.
func NewCollector() *Collector {
	return &Collector{
		dataTypes: make(map[string]*DataTypeMetrics),
		endpoints: make(map[string]*EndpointMetrics),
		circuits:  make(map[string]metrics.CircuitState),
	}
}

// dataType returns the metrics for name, creating them if needed.
// Callers must hold mc.mu.
func (mc *Collector) dataType(name string) *DataTypeMetrics {
	m, ok := mc.dataTypes[name]
	if !ok {
		m = &DataTypeMetrics{}
		mc.dataTypes[name] = m
	}
	return m
}

// endpoint returns the metrics for name, creating them if needed.
// Callers must hold mc.mu.
func (mc *Collector) endpoint(name string) *EndpointMetrics {
	m, ok := mc.endpoints[name]
	if !ok {
		m = &EndpointMetrics{RelayByStatus: make(map[int]int64)}
		mc.endpoints[name] = m
	}
	return m
}

// RecordCacheRead records a cache lookup.
func (mc *Collector) RecordCacheRead(dataType string, hit bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.dataType(dataType)
	if hit {
		m.Hits++
	} else {
		m.Misses++
	}
}

// RecordCacheWrite records a cache write attempt.
func (mc *Collector) RecordCacheWrite(dataType string, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.dataType(dataType)
	m.Writes++
	if !success {
		m.WriteFailures++
	}
}

// RecordCacheExpired records an entry dropped on read because its TTL passed.
func (mc *Collector) RecordCacheExpired(dataType string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.dataType(dataType).Expired++
}

// RecordFetch records a transport call.
func (mc *Collector) RecordFetch(endpoint string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.endpoint(endpoint)
	m.Fetches++
	if !success {
		m.FetchFailures++
	}
	m.FetchLatencies = append(m.FetchLatencies, duration)
}

// RecordFallback records a failed fetch answered from cache.
func (mc *Collector) RecordFallback(endpoint string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.endpoint(endpoint).Fallbacks++
}

// RecordCircuitState records the current circuit breaker state.
func (mc *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.circuits[name] = state
}

// RecordRelay records a relayed request by response status.
func (mc *Collector) RecordRelay(endpoint string, status int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.endpoint(endpoint).RelayByStatus[status]++
}

// DataType returns a copy of the metrics for a data type.
func (mc *Collector) DataType(name string) DataTypeMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if m, ok := mc.dataTypes[name]; ok {
		return *m
	}
	return DataTypeMetrics{}
}

// Endpoint returns a copy of the metrics for an endpoint.
func (mc *Collector) Endpoint(name string) EndpointMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m, ok := mc.endpoints[name]
	if !ok {
		return EndpointMetrics{RelayByStatus: map[int]int64{}}
	}

	cp := *m
	cp.RelayByStatus = make(map[int]int64, len(m.RelayByStatus))
	for k, v := range m.RelayByStatus {
		cp.RelayByStatus[k] = v
	}
	cp.FetchLatencies = append([]time.Duration(nil), m.FetchLatencies...)
	return cp
}

// CircuitState returns the last recorded state of a circuit.
func (mc *Collector) CircuitState(name string) metrics.CircuitState {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.circuits[name]
}

// Snapshot returns a JSON-friendly view of all metrics.
func (mc *Collector) Snapshot() interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	dataTypes := make(map[string]DataTypeMetrics, len(mc.dataTypes))
	for k, v := range mc.dataTypes {
		dataTypes[k] = *v
	}

	endpoints := make(map[string]map[string]interface{}, len(mc.endpoints))
	for k, v := range mc.endpoints {
		endpoints[k] = map[string]interface{}{
			"fetches":        v.Fetches,
			"fetch_failures": v.FetchFailures,
			"fallbacks":      v.Fallbacks,
			"relay":          v.RelayByStatus,
		}
	}

	circuits := make(map[string]string, len(mc.circuits))
	for k, v := range mc.circuits {
		circuits[k] = v.String()
	}

	return map[string]interface{}{
		"cache":     dataTypes,
		"endpoints": endpoints,
		"circuits":  circuits,
	}
}
