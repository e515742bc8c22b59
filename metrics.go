package uamp

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the fill-round-trip latency histogram buckets in
// nanoseconds. Buckets cover from 100us to 10s with logarithmic spacing —
// a single LOCATION_REQUEST round trip is expected to be a network hop
// plus server think time, not a disk operation, so the bottom of the ublk
// histogram's range (1us) is dropped.
var LatencyBuckets = []uint64{
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	500_000_000,    // 500ms
	1_000_000_000,  // 1s
	5_000_000_000,  // 5s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks protocol-level traffic for a Session: requests and replies
// exchanged during prefetch, state changes emitted, and bytes moved in each
// direction, plus a latency histogram over fill round trips. Other blocking
// network operations (the connect handshake, state-change flushes,
// Terminate) are not timed.
type Metrics struct {
	RequestsSent     atomic.Uint64 // LOCATION_REQUEST messages sent
	UpdatesReceived  atomic.Uint64 // Updates accepted into agent queues
	StateChangesSent atomic.Uint64 // change_state entries flushed to the wire
	FillRoundTrips   atomic.Uint64 // fillUpdateQueues invocations
	BytesRead        atomic.Uint64
	BytesWritten     atomic.Uint64

	FillErrors atomic.Uint64 // fillUpdateQueues calls that returned an error

	TotalLatencyNs atomic.Uint64 // cumulative fill-round-trip latency
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics returns a Metrics with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordFill records one fillUpdateQueues round trip: the number of
// requests it sent, the number of updates it accepted, the bytes moved in
// each direction, how long it took, and whether it ultimately failed.
func (m *Metrics) RecordFill(requests, updates, bytesRead, bytesWritten uint64, latencyNs uint64, success bool) {
	m.FillRoundTrips.Add(1)
	m.RequestsSent.Add(requests)
	m.UpdatesReceived.Add(updates)
	m.BytesRead.Add(bytesRead)
	m.BytesWritten.Add(bytesWritten)
	if !success {
		m.FillErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordStateChangeFlush records one Batcher.Flush call.
func (m *Metrics) RecordStateChangeFlush(count uint64, bytesWritten uint64) {
	m.StateChangesSent.Add(count)
	m.BytesWritten.Add(bytesWritten)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as terminated for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived rates.
type MetricsSnapshot struct {
	RequestsSent     uint64
	UpdatesReceived  uint64
	StateChangesSent uint64
	FillRoundTrips   uint64
	FillErrors       uint64
	BytesRead        uint64
	BytesWritten     uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	FillsPerSecond float64
	ErrorRate      float64
}

// Snapshot returns a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RequestsSent:     m.RequestsSent.Load(),
		UpdatesReceived:  m.UpdatesReceived.Load(),
		StateChangesSent: m.StateChangesSent.Load(),
		FillRoundTrips:   m.FillRoundTrips.Load(),
		FillErrors:       m.FillErrors.Load(),
		BytesRead:        m.BytesRead.Load(),
		BytesWritten:     m.BytesWritten.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.FillsPerSecond = float64(snap.FillRoundTrips) / uptimeSeconds
	}

	if snap.FillRoundTrips > 0 {
		snap.ErrorRate = float64(snap.FillErrors) / float64(snap.FillRoundTrips) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, for use between test cases.
func (m *Metrics) Reset() {
	m.RequestsSent.Store(0)
	m.UpdatesReceived.Store(0)
	m.StateChangesSent.Store(0)
	m.FillRoundTrips.Store(0)
	m.FillErrors.Store(0)
	m.BytesRead.Store(0)
	m.BytesWritten.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection: a caller can record fill
// round trips and state-change flushes into their own backend instead of
// (or alongside) a Session's built-in Metrics.
type Observer interface {
	ObserveFill(requests, updates, bytesRead, bytesWritten uint64, latencyNs uint64, success bool)
	ObserveStateChangeFlush(count uint64, bytesWritten uint64)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveFill(uint64, uint64, uint64, uint64, uint64, bool) {}
func (NoOpObserver) ObserveStateChangeFlush(uint64, uint64)                  {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveFill(requests, updates, bytesRead, bytesWritten uint64, latencyNs uint64, success bool) {
	o.metrics.RecordFill(requests, updates, bytesRead, bytesWritten, latencyNs, success)
}

func (o *MetricsObserver) ObserveStateChangeFlush(count uint64, bytesWritten uint64) {
	o.metrics.RecordStateChangeFlush(count, bytesWritten)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
