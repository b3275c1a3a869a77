package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	framesReceived    atomic.Uint64
	framesDiscarded   atomic.Uint64
	ordersSent        atomic.Uint64
	broadcasts        atomic.Uint64
	broadcastFailures atomic.Uint64
	rowsPersisted     atomic.Uint64
	errorsTotal       atomic.Uint64

	// Latency tracking (frame receive to enqueue)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeSubscribers atomic.Int32
	authenticated     atomic.Int32 // 1 = logged in
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFrame records one inbound frame and its dispatch latency.
func (m *Metrics) RecordFrame(latencyNs int64) {
	m.framesReceived.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordDiscard records a frame dropped as unknown or malformed.
func (m *Metrics) RecordDiscard() {
	m.framesDiscarded.Add(1)
}

// RecordOrderSent records an order written to the exchange or filled on paper.
func (m *Metrics) RecordOrderSent() {
	m.ordersSent.Add(1)
}

// RecordBroadcast records one message delivered to one subscriber.
func (m *Metrics) RecordBroadcast() {
	m.broadcasts.Add(1)
}

// RecordBroadcastFailure records a failed subscriber write.
func (m *Metrics) RecordBroadcastFailure() {
	m.broadcastFailures.Add(1)
}

// RecordPersisted records n rows handed to the store.
func (m *Metrics) RecordPersisted(n int) {
	m.rowsPersisted.Add(uint64(n))
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementSubscribers increments active subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.activeSubscribers.Add(1)
}

// DecrementSubscribers decrements active subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.activeSubscribers.Add(-1)
}

// SetAuthenticated sets the session login state.
func (m *Metrics) SetAuthenticated(ok bool) {
	if ok {
		m.authenticated.Store(1)
	} else {
		m.authenticated.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FramesReceived    uint64    `json:"frames_received"`
	FramesDiscarded   uint64    `json:"frames_discarded"`
	OrdersSent        uint64    `json:"orders_sent"`
	Broadcasts        uint64    `json:"broadcasts"`
	BroadcastFailures uint64    `json:"broadcast_failures"`
	RowsPersisted     uint64    `json:"rows_persisted"`
	ErrorsTotal       uint64    `json:"errors_total"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	ActiveSubscribers int32     `json:"active_subscribers"`
	Authenticated     bool      `json:"authenticated"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		FramesReceived:    m.framesReceived.Load(),
		FramesDiscarded:   m.framesDiscarded.Load(),
		OrdersSent:        m.ordersSent.Load(),
		Broadcasts:        m.broadcasts.Load(),
		BroadcastFailures: m.broadcastFailures.Load(),
		RowsPersisted:     m.rowsPersisted.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveSubscribers: m.activeSubscribers.Load(),
		Authenticated:     m.authenticated.Load() == 1,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.framesReceived.Store(0)
	m.framesDiscarded.Store(0)
	m.ordersSent.Store(0)
	m.broadcasts.Store(0)
	m.broadcastFailures.Store(0)
	m.rowsPersisted.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeSubscribers.Store(0)
	m.authenticated.Store(0)
}
