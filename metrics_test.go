package kerncore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicksToDurationUsesTimerFreq(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, ticksToDuration(1, 100))
	assert.Equal(t, time.Second, ticksToDuration(50, 50))
	assert.Equal(t, time.Duration(0), ticksToDuration(5, 0))
}

func TestMetricsNilReceiverIsANoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.recordTick(roleUser)
		m.recordContextSwitch()
		m.recordYield()
		m.recordDonation()
		m.recordEviction()
		m.recordSwapWrite()
		m.recordSwapRead()
		m.recordPageFault()
		m.recordReadyWait(time.Millisecond)
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetricsSnapshotCountersAccumulate(t *testing.T) {
	m := NewMetrics()
	m.recordContextSwitch()
	m.recordContextSwitch()
	m.recordYield()
	m.recordDonation()
	m.recordEviction()
	m.recordSwapWrite()
	m.recordSwapRead()
	m.recordPageFault()
	m.recordTick(roleIdle)
	m.recordTick(roleKernel)
	m.recordTick(roleUser)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.ContextSwitches)
	assert.Equal(t, uint64(1), snap.Yields)
	assert.Equal(t, uint64(1), snap.Donations)
	assert.Equal(t, uint64(1), snap.Evictions)
	assert.Equal(t, uint64(1), snap.SwapWrites)
	assert.Equal(t, uint64(1), snap.SwapReads)
	assert.Equal(t, uint64(1), snap.PageFaults)
	assert.Equal(t, uint64(1), snap.IdleTicks)
	assert.Equal(t, uint64(1), snap.KernelTicks)
	assert.Equal(t, uint64(1), snap.UserTicks)
}

func TestMetricsReadyWaitQuantilesTrackSamples(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.recordReadyWait(time.Duration(i) * time.Millisecond)
	}
	snap := m.Snapshot()
	// The P-square estimator is approximate; just assert the percentiles
	// land in the right ballpark and are non-decreasing.
	assert.True(t, snap.ReadyWaitP50 > 0)
	assert.True(t, snap.ReadyWaitP50 <= snap.ReadyWaitP90)
	assert.True(t, snap.ReadyWaitP90 <= snap.ReadyWaitP99)
}
