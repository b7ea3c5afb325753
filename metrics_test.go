package uringcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAccumulatesReadsAndWrites(t *testing.T) {
	m := NewMetrics()
	m.ObserveRead(0, 128, 500_000, true)
	m.ObserveRead(128, 128, 2_000_000, true)
	m.ObserveWrite(0, 128, 500_000, true)
	m.ObserveWrite(128, 64, 0, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.ReadOps)
	assert.Equal(t, uint64(256), snap.ReadBytes)
	assert.Equal(t, uint64(2), snap.WriteOps)
	assert.Equal(t, uint64(128), snap.WriteBytes) // failed write doesn't count bytes
	assert.Equal(t, uint64(1), snap.WriteErrors)
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics()
	m.ObserveRead(0, 1, 500_000, true)       // under 1ms
	m.ObserveRead(0, 1, 5_000_000, true)     // under 10ms
	m.ObserveRead(0, 1, 50_000_000, true)    // under 100ms
	m.ObserveRead(0, 1, 500_000_000, true)   // over 100ms

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Latency.Under1ms)
	assert.Equal(t, uint64(1), snap.Latency.Under10ms)
	assert.Equal(t, uint64(1), snap.Latency.Under100ms)
	assert.Equal(t, uint64(1), snap.Latency.Over100ms)
}

func TestMetricsRestartCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveRestart("read-again", 0)
	m.ObserveRestart("write-again", 4096)
	m.ObserveRestart("read-short", 8192)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RestartsAgain)
	assert.Equal(t, uint64(1), snap.RestartsShort)
}
