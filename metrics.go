package kerncore

import (
	"sync"
	"time"
)

// Metrics tracks runtime statistics for a Kernel. All methods are
// thread-safe; a Metrics is only installed when a Kernel is constructed
// with WithMetrics(true). Call sites invoke the record methods on a
// possibly-nil *Metrics; each method returns immediately on a nil receiver.
type Metrics struct {
	mu sync.Mutex

	// Tick accounting, mirroring the role-split tick counters the tick
	// handler maintains (§4.3).
	idleTicks   uint64
	kernelTicks uint64
	userTicks   uint64

	// Scheduling events.
	contextSwitches uint64
	yields          uint64
	donations       uint64

	// VM events.
	evictions    uint64
	swapWrites    uint64
	swapReads     uint64
	pageFaults    uint64

	// ReadyWait estimates the distribution of time a thread spends ready
	// (enqueued, not yet running) using a streaming quantile algorithm so
	// percentiles are available without retaining every sample.
	readyWait *readyWaitDistribution
}

// NewMetrics returns an empty Metrics ready for use.
func NewMetrics() *Metrics {
	return &Metrics{
		readyWait: newReadyWaitDistribution(0.50, 0.90, 0.99),
	}
}

func (m *Metrics) recordTick(role ThreadStatusRole) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch role {
	case roleIdle:
		m.idleTicks++
	case roleKernel:
		m.kernelTicks++
	case roleUser:
		m.userTicks++
	}
}

func (m *Metrics) recordContextSwitch() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.contextSwitches++
	m.mu.Unlock()
}

func (m *Metrics) recordYield() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.yields++
	m.mu.Unlock()
}

func (m *Metrics) recordDonation() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.donations++
	m.mu.Unlock()
}

func (m *Metrics) recordEviction() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.evictions++
	m.mu.Unlock()
}

func (m *Metrics) recordSwapWrite() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.swapWrites++
	m.mu.Unlock()
}

func (m *Metrics) recordSwapRead() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.swapReads++
	m.mu.Unlock()
}

func (m *Metrics) recordPageFault() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.pageFaults++
	m.mu.Unlock()
}

func (m *Metrics) recordReadyWait(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyWait.Update(float64(d))
}

// Snapshot is a point-in-time copy of Metrics, safe to read without
// further locking.
type Snapshot struct {
	IdleTicks, KernelTicks, UserTicks    uint64
	ContextSwitches, Yields, Donations  uint64
	Evictions, SwapWrites, SwapReads    uint64
	PageFaults                          uint64
	ReadyWaitP50, ReadyWaitP90, ReadyWaitP99 time.Duration
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		IdleTicks:       m.idleTicks,
		KernelTicks:     m.kernelTicks,
		UserTicks:       m.userTicks,
		ContextSwitches: m.contextSwitches,
		Yields:          m.yields,
		Donations:       m.donations,
		Evictions:       m.evictions,
		SwapWrites:      m.swapWrites,
		SwapReads:       m.swapReads,
		PageFaults:      m.pageFaults,
		ReadyWaitP50:    time.Duration(m.readyWait.Quantile(0)),
		ReadyWaitP90:    time.Duration(m.readyWait.Quantile(1)),
		ReadyWaitP99:    time.Duration(m.readyWait.Quantile(2)),
	}
}

// ticksToDuration converts a count of simulated timer ticks to a
// time.Duration given the kernel's configured ticks-per-second, for
// reporting tick-denominated measurements (ready-queue wait) on the same
// Duration-based Metrics surface as everything else.
func ticksToDuration(ticks uint64, timerFreq int) time.Duration {
	if timerFreq <= 0 {
		return 0
	}
	return time.Duration(ticks) * time.Second / time.Duration(timerFreq)
}

// ThreadStatusRole classifies a tick for the idle/kernel/user counters.
type ThreadStatusRole int

const (
	roleIdle ThreadStatusRole = iota
	roleKernel
	roleUser
)
