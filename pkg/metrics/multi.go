package metrics

import "time"

// Multi forwards every record to each collector in order.
type Multi []Collector

// NewMulti drops nil collectors.
func NewMulti(collectors ...Collector) Multi {
	m := make(Multi, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			m = append(m, c)
		}
	}
	return m
}

func (m Multi) RecordCacheRead(dataType string, hit bool) {
	for _, c := range m {
		c.RecordCacheRead(dataType, hit)
	}
}

func (m Multi) RecordCacheWrite(dataType string, success bool) {
	for _, c := range m {
		c.RecordCacheWrite(dataType, success)
	}
}

func (m Multi) RecordCacheExpired(dataType string) {
	for _, c := range m {
		c.RecordCacheExpired(dataType)
	}
}

func (m Multi) RecordFetch(endpoint string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordFetch(endpoint, success, duration)
	}
}

func (m Multi) RecordFallback(endpoint string) {
	for _, c := range m {
		c.RecordFallback(endpoint)
	}
}

func (m Multi) RecordCircuitState(name string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(name, state)
	}
}

func (m Multi) RecordRelay(endpoint string, status int, duration time.Duration) {
	for _, c := range m {
		c.RecordRelay(endpoint, status, duration)
	}
}
