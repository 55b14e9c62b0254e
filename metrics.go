package walb

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for one walb device: log-pack
// writes, data-device writes, redo-engine replay, and snapshot record
// operations.
type Metrics struct {
	LogPackWrites      atomic.Uint64
	LogPackWriteBytes  atomic.Uint64
	LogPackWriteErrors atomic.Uint64

	DataWrites      atomic.Uint64
	DataWriteBytes  atomic.Uint64
	DataWriteErrors atomic.Uint64

	DiscardOps   atomic.Uint64
	DiscardBytes atomic.Uint64

	RedoPacksReplayed atomic.Uint64
	RedoRuns          atomic.Uint64
	RedoErrors        atomic.Uint64

	SnapshotAdds    atomic.Uint64
	SnapshotDeletes atomic.Uint64
	SnapshotErrors  atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordLogPackWrite records one log-pack write to the log device.
func (m *Metrics) RecordLogPackWrite(bytes uint64, latencyNs uint64, success bool) {
	m.LogPackWrites.Add(1)
	if success {
		m.LogPackWriteBytes.Add(bytes)
	} else {
		m.LogPackWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDataWrite records one record's payload applied to the data
// device, whether by redo or by a later direct-write path.
func (m *Metrics) RecordDataWrite(bytes uint64, latencyNs uint64, success bool) {
	m.DataWrites.Add(1)
	if success {
		m.DataWriteBytes.Add(bytes)
	} else {
		m.DataWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDiscard records one discard record applied to the data device.
func (m *Metrics) RecordDiscard(bytes uint64, latencyNs uint64) {
	m.DiscardOps.Add(1)
	m.DiscardBytes.Add(bytes)
	m.recordLatency(latencyNs)
}

// RecordRedoRun records the outcome of one redo engine pass.
func (m *Metrics) RecordRedoRun(packsReplayed uint64, latencyNs uint64, err error) {
	m.RedoRuns.Add(1)
	m.RedoPacksReplayed.Add(packsReplayed)
	if err != nil {
		m.RedoErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSnapshotAdd records a snapshot.Store Add call.
func (m *Metrics) RecordSnapshotAdd(success bool) {
	m.SnapshotAdds.Add(1)
	if !success {
		m.SnapshotErrors.Add(1)
	}
}

// RecordSnapshotDelete records a snapshot.Store DelByName/DelRange call.
func (m *Metrics) RecordSnapshotDelete(success bool) {
	m.SnapshotDeletes.Add(1)
	if !success {
		m.SnapshotErrors.Add(1)
	}
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

// Stop marks the device as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	LogPackWrites      uint64
	LogPackWriteBytes  uint64
	LogPackWriteErrors uint64

	DataWrites      uint64
	DataWriteBytes  uint64
	DataWriteErrors uint64

	DiscardOps   uint64
	DiscardBytes uint64

	RedoRuns          uint64
	RedoPacksReplayed uint64
	RedoErrors        uint64

	SnapshotAdds    uint64
	SnapshotDeletes uint64
	SnapshotErrors  uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	ErrorRate float64
}

// Snapshot creates a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		LogPackWrites:      m.LogPackWrites.Load(),
		LogPackWriteBytes:  m.LogPackWriteBytes.Load(),
		LogPackWriteErrors: m.LogPackWriteErrors.Load(),
		DataWrites:         m.DataWrites.Load(),
		DataWriteBytes:     m.DataWriteBytes.Load(),
		DataWriteErrors:    m.DataWriteErrors.Load(),
		DiscardOps:         m.DiscardOps.Load(),
		DiscardBytes:       m.DiscardBytes.Load(),
		RedoRuns:           m.RedoRuns.Load(),
		RedoPacksReplayed:  m.RedoPacksReplayed.Load(),
		RedoErrors:         m.RedoErrors.Load(),
		SnapshotAdds:       m.SnapshotAdds.Load(),
		SnapshotDeletes:    m.SnapshotDeletes.Load(),
		SnapshotErrors:     m.SnapshotErrors.Load(),
	}

	snap.TotalOps = snap.LogPackWrites + snap.DataWrites + snap.DiscardOps

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

	totalErrors := snap.LogPackWriteErrors + snap.DataWriteErrors + snap.RedoErrors + snap.SnapshotErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
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

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
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

// Reset resets all counters, for test isolation.
func (m *Metrics) Reset() {
	m.LogPackWrites.Store(0)
	m.LogPackWriteBytes.Store(0)
	m.LogPackWriteErrors.Store(0)
	m.DataWrites.Store(0)
	m.DataWriteBytes.Store(0)
	m.DataWriteErrors.Store(0)
	m.DiscardOps.Store(0)
	m.DiscardBytes.Store(0)
	m.RedoRuns.Store(0)
	m.RedoPacksReplayed.Store(0)
	m.RedoErrors.Store(0)
	m.SnapshotAdds.Store(0)
	m.SnapshotDeletes.Store(0)
	m.SnapshotErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection for the log-pack write
// path, redo engine and snapshot store.
type Observer interface {
	ObserveLogPackWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveDataWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveDiscard(bytes uint64, latencyNs uint64)
	ObserveRedoRun(packsReplayed uint64, latencyNs uint64, err error)
	ObserveSnapshotAdd(success bool)
	ObserveSnapshotDelete(success bool)
}

// NoOpObserver is a no-op Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveLogPackWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveDataWrite(uint64, uint64, bool)    {}
func (NoOpObserver) ObserveDiscard(uint64, uint64)            {}
func (NoOpObserver) ObserveRedoRun(uint64, uint64, error)     {}
func (NoOpObserver) ObserveSnapshotAdd(bool)                  {}
func (NoOpObserver) ObserveSnapshotDelete(bool)               {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveLogPackWrite(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordLogPackWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveDataWrite(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordDataWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveDiscard(bytes, latencyNs uint64) {
	o.metrics.RecordDiscard(bytes, latencyNs)
}

func (o *MetricsObserver) ObserveRedoRun(packsReplayed, latencyNs uint64, err error) {
	o.metrics.RecordRedoRun(packsReplayed, latencyNs, err)
}

func (o *MetricsObserver) ObserveSnapshotAdd(success bool) {
	o.metrics.RecordSnapshotAdd(success)
}

func (o *MetricsObserver) ObserveSnapshotDelete(success bool) {
	o.metrics.RecordSnapshotDelete(success)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
