package uringcp

import (
	"sync"
	"sync/atomic"
)

// Metrics accumulates counters and a latency histogram across one or
// more copies. It implements interfaces.Observer so it can be passed
// directly as Options.Observer; it is also usable concurrently since a
// caller may want to read a snapshot from another goroutine while a
// copy is in flight, even though the copy driver itself is
// single-threaded.
type Metrics struct {
	readOps  atomic.Uint64
	writeOps atomic.Uint64

	readBytes  atomic.Uint64
	writeBytes atomic.Uint64

	readErrors  atomic.Uint64
	writeErrors atomic.Uint64

	restartsAgain atomic.Uint64
	restartsShort atomic.Uint64

	mu      sync.Mutex
	buckets LatencyBuckets
}

// LatencyBuckets counts completions falling into each latency bucket,
// in nanoseconds: [0,1ms), [1ms,10ms), [10ms,100ms), [100ms,+inf).
type LatencyBuckets struct {
	Under1ms   uint64
	Under10ms  uint64
	Under100ms uint64
	Over100ms  uint64
}

// NewMetrics returns a ready-to-use, zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case latencyNs < 1_000_000:
		m.buckets.Under1ms++
	case latencyNs < 10_000_000:
		m.buckets.Under10ms++
	case latencyNs < 100_000_000:
		m.buckets.Under100ms++
	default:
		m.buckets.Over100ms++
	}
}

// ObserveRead implements interfaces.Observer.
func (m *Metrics) ObserveRead(offset int64, length int, latencyNs uint64, success bool) {
	m.readOps.Add(1)
	if success {
		m.readBytes.Add(uint64(length))
		m.recordLatency(latencyNs)
	} else {
		m.readErrors.Add(1)
	}
}

// ObserveWrite implements interfaces.Observer.
func (m *Metrics) ObserveWrite(offset int64, length int, latencyNs uint64, success bool) {
	m.writeOps.Add(1)
	if success {
		m.writeBytes.Add(uint64(length))
		m.recordLatency(latencyNs)
	} else {
		m.writeErrors.Add(1)
	}
}

// ObserveRestart implements interfaces.Observer.
func (m *Metrics) ObserveRestart(kind string, offset int64) {
	switch kind {
	case "read-again", "write-again":
		m.restartsAgain.Add(1)
	default:
		m.restartsShort.Add(1)
	}
}

// Snapshot is a point-in-time copy of a Metrics' counters.
type Snapshot struct {
	ReadOps, WriteOps             uint64
	ReadBytes, WriteBytes         uint64
	ReadErrors, WriteErrors       uint64
	RestartsAgain, RestartsShort  uint64
	Latency                       LatencyBuckets
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	buckets := m.buckets
	m.mu.Unlock()

	return Snapshot{
		ReadOps:       m.readOps.Load(),
		WriteOps:      m.writeOps.Load(),
		ReadBytes:     m.readBytes.Load(),
		WriteBytes:    m.writeBytes.Load(),
		ReadErrors:    m.readErrors.Load(),
		WriteErrors:   m.writeErrors.Load(),
		RestartsAgain: m.restartsAgain.Load(),
		RestartsShort: m.restartsShort.Load(),
		Latency:       buckets,
	}
}
