package schedule

import (
	"sync"

	"github.com/df-mc/chunkgen/server/world/stage"
)

// Metrics tracks scheduler counters for observability. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	mu sync.Mutex

	dispatched map[stage.Stage]uint64
	completed  map[stage.Stage]uint64
	failures   map[stage.Stage]uint64

	published, unloaded, deferred, backpressure, violations uint64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{
		dispatched: make(map[stage.Stage]uint64),
		completed:  make(map[stage.Stage]uint64),
		failures:   make(map[stage.Stage]uint64),
	}
}

// IncDispatched counts a task handed to a worker.
func (m *Metrics) IncDispatched(s stage.Stage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.dispatched[s]++
	m.mu.Unlock()
}

// IncCompleted counts a task whose result was ingested.
func (m *Metrics) IncCompleted(s stage.Stage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.completed[s]++
	m.mu.Unlock()
}

// IncFailures counts a failed generation stage.
func (m *Metrics) IncFailures(s stage.Stage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failures[s]++
	m.mu.Unlock()
}

// IncPublished counts a chunk (re)published to the public map.
func (m *Metrics) IncPublished() {
	if m != nil {
		m.add(&m.published)
	}
}

// IncUnloaded counts a chunk removed from memory.
func (m *Metrics) IncUnloaded() {
	if m != nil {
		m.add(&m.unloaded)
	}
}

// IncDeferred counts an unload attempt that had to be retried later.
func (m *Metrics) IncDeferred() {
	if m != nil {
		m.add(&m.deferred)
	}
}

// IncBackpressure counts a write that blocked on a full writer queue.
func (m *Metrics) IncBackpressure() {
	if m != nil {
		m.add(&m.backpressure)
	}
}

// IncViolations counts an internal invariant violation.
func (m *Metrics) IncViolations() {
	if m != nil {
		m.add(&m.violations)
	}
}

func (m *Metrics) add(v *uint64) {
	m.mu.Lock()
	*v++
	m.mu.Unlock()
}

// MetricsSnapshot is a copy of the counters of a Metrics.
type MetricsSnapshot struct {
	Dispatched map[stage.Stage]uint64
	Completed  map[stage.Stage]uint64
	Failures   map[stage.Stage]uint64

	Published    uint64
	Unloaded     uint64
	Deferred     uint64
	Backpressure uint64
	Violations   uint64
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := func(src map[stage.Stage]uint64) map[stage.Stage]uint64 {
		dst := make(map[stage.Stage]uint64, len(src))
		for k, v := range src {
			dst[k] = v
		}
		return dst
	}
	return MetricsSnapshot{
		Dispatched:   cp(m.dispatched),
		Completed:    cp(m.completed),
		Failures:     cp(m.failures),
		Published:    m.published,
		Unloaded:     m.unloaded,
		Deferred:     m.deferred,
		Backpressure: m.backpressure,
		Violations:   m.violations,
	}
}
