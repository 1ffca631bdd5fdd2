package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	termsFetched      atomic.Uint64
	submissions       atomic.Uint64
	ordersCreated     atomic.Uint64
	businessErrors    atomic.Uint64
	transportErrors   atomic.Uint64
	autoRefetches     atomic.Uint64
	hostCloseFailures atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	inFlight atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordRequest records one round trip to the order service.
func (m *Metrics) RecordRequest(latency time.Duration) {
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordTermsFetched records a successful terms fetch.
func (m *Metrics) RecordTermsFetched() {
	m.termsFetched.Add(1)
}

// RecordSubmission records an order-create attempt.
func (m *Metrics) RecordSubmission() {
	m.submissions.Add(1)
}

// RecordOrderCreated records an accepted order.
func (m *Metrics) RecordOrderCreated() {
	m.ordersCreated.Add(1)
}

// RecordBusinessError records a server-reported error code.
func (m *Metrics) RecordBusinessError() {
	m.businessErrors.Add(1)
}

// RecordTransportError records a request that could not complete.
func (m *Metrics) RecordTransportError() {
	m.transportErrors.Add(1)
}

// RecordAutoRefetch records a terms refetch triggered by a limit error.
func (m *Metrics) RecordAutoRefetch() {
	m.autoRefetches.Add(1)
}

// RecordHostCloseFailure records a close request the host could not serve.
func (m *Metrics) RecordHostCloseFailure() {
	m.hostCloseFailures.Add(1)
}

// BeginSubmit marks a submission as in flight. Pair with EndSubmit.
func (m *Metrics) BeginSubmit() {
	m.inFlight.Add(1)
}

// EndSubmit clears an in-flight submission.
func (m *Metrics) EndSubmit() {
	m.inFlight.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TermsFetched      uint64    `json:"terms_fetched"`
	Submissions       uint64    `json:"submissions"`
	OrdersCreated     uint64    `json:"orders_created"`
	BusinessErrors    uint64    `json:"business_errors"`
	TransportErrors   uint64    `json:"transport_errors"`
	AutoRefetches     uint64    `json:"auto_refetches"`
	HostCloseFailures uint64    `json:"host_close_failures"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	InFlight          int32     `json:"in_flight"`
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
		TermsFetched:      m.termsFetched.Load(),
		Submissions:       m.submissions.Load(),
		OrdersCreated:     m.ordersCreated.Load(),
		BusinessErrors:    m.businessErrors.Load(),
		TransportErrors:   m.transportErrors.Load(),
		AutoRefetches:     m.autoRefetches.Load(),
		HostCloseFailures: m.hostCloseFailures.Load(),
		AvgLatencyNs:      avgLatency,
		InFlight:          m.inFlight.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.termsFetched.Store(0)
	m.submissions.Store(0)
	m.ordersCreated.Store(0)
	m.businessErrors.Store(0)
	m.transportErrors.Store(0)
	m.autoRefetches.Store(0)
	m.hostCloseFailures.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.inFlight.Store(0)
}
