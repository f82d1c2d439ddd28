package zbd

import (
	"sync/atomic"
	"time"

	"github.com/zbdcore/zbdadapt/internal/interfaces"
)

// Observer is the public alias for the pluggable metrics-collection
// interface consumed by Job, the Adjuster and the Completion Hook.
type Observer = interfaces.Observer

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks zone-operation statistics for one job run.
type Metrics struct {
	// Adjuster outcomes, by direction
	ReadAdjustOps  atomic.Uint64
	WriteAdjustOps atomic.Uint64
	TrimAdjustOps  atomic.Uint64
	AdjustEofOps   atomic.Uint64

	// Completion Hook outcomes
	CompleteSuccessOps atomic.Uint64
	CompleteFailureOps atomic.Uint64

	// Reset Engine activity
	ResetCalls  atomic.Uint64
	ResetZones  atomic.Uint64
	ResetErrors atomic.Uint64

	// Quiesce calls on the write-path synchronous-reset slow path
	QuiesceCalls   atomic.Uint64
	TotalQuiesceNs atomic.Uint64

	TotalAdjustLatencyNs atomic.Uint64
	AdjustOpCount        atomic.Uint64
	LatencyBuckets       [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordAdjust(direction uint8, accepted bool, latencyNs uint64) {
	switch Direction(direction) {
	case DirRead:
		m.ReadAdjustOps.Add(1)
	case DirWrite:
		m.WriteAdjustOps.Add(1)
	default:
		m.TrimAdjustOps.Add(1)
	}
	if !accepted {
		m.AdjustEofOps.Add(1)
	}
	m.TotalAdjustLatencyNs.Add(latencyNs)
	m.AdjustOpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

func (m *Metrics) recordComplete(success bool) {
	if success {
		m.CompleteSuccessOps.Add(1)
	} else {
		m.CompleteFailureOps.Add(1)
	}
}

func (m *Metrics) recordReset(zones int, success bool) {
	m.ResetCalls.Add(1)
	m.ResetZones.Add(uint64(zones))
	if !success {
		m.ResetErrors.Add(1)
	}
}

func (m *Metrics) recordQuiesce(latencyNs uint64) {
	m.QuiesceCalls.Add(1)
	m.TotalQuiesceNs.Add(latencyNs)
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	ReadAdjustOps      uint64
	WriteAdjustOps     uint64
	TrimAdjustOps      uint64
	AdjustEofOps       uint64
	CompleteSuccessOps uint64
	CompleteFailureOps uint64
	ResetCalls         uint64
	ResetZones         uint64
	ResetErrors        uint64
	QuiesceCalls       uint64

	AvgAdjustLatencyNs uint64
	LatencyHistogram   [numLatencyBuckets]uint64

	TotalAdjustOps uint64
	UptimeNs       uint64
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadAdjustOps:      m.ReadAdjustOps.Load(),
		WriteAdjustOps:     m.WriteAdjustOps.Load(),
		TrimAdjustOps:      m.TrimAdjustOps.Load(),
		AdjustEofOps:       m.AdjustEofOps.Load(),
		CompleteSuccessOps: m.CompleteSuccessOps.Load(),
		CompleteFailureOps: m.CompleteFailureOps.Load(),
		ResetCalls:         m.ResetCalls.Load(),
		ResetZones:         m.ResetZones.Load(),
		ResetErrors:        m.ResetErrors.Load(),
		QuiesceCalls:       m.QuiesceCalls.Load(),
	}
	snap.TotalAdjustOps = snap.ReadAdjustOps + snap.WriteAdjustOps + snap.TrimAdjustOps

	opCount := m.AdjustOpCount.Load()
	if opCount > 0 {
		snap.AvgAdjustLatencyNs = m.TotalAdjustLatencyNs.Load() / opCount
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	return snap
}

// Reset zeroes all counters, restarting the uptime clock. Useful for
// tests that want a clean baseline between phases of the same run.
func (m *Metrics) Reset() {
	m.ReadAdjustOps.Store(0)
	m.WriteAdjustOps.Store(0)
	m.TrimAdjustOps.Store(0)
	m.AdjustEofOps.Store(0)
	m.CompleteSuccessOps.Store(0)
	m.CompleteFailureOps.Store(0)
	m.ResetCalls.Store(0)
	m.ResetZones.Store(0)
	m.ResetErrors.Store(0)
	m.QuiesceCalls.Store(0)
	m.TotalQuiesceNs.Store(0)
	m.TotalAdjustLatencyNs.Store(0)
	m.AdjustOpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAdjust(uint8, bool, uint64) {}
func (NoOpObserver) ObserveComplete(uint8, bool)       {}
func (NoOpObserver) ObserveReset(int, uint64, bool)    {}
func (NoOpObserver) ObserveQuiesce(uint64)             {}

// MetricsObserver implements Observer on top of Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver builds an observer recording into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAdjust(direction uint8, accepted bool, latencyNs uint64) {
	o.metrics.recordAdjust(direction, accepted, latencyNs)
}

func (o *MetricsObserver) ObserveComplete(_ uint8, success bool) {
	o.metrics.recordComplete(success)
}

func (o *MetricsObserver) ObserveReset(zones int, _ uint64, success bool) {
	o.metrics.recordReset(zones, success)
}

func (o *MetricsObserver) ObserveQuiesce(latencyNs uint64) {
	o.metrics.recordQuiesce(latencyNs)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
