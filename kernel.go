// kernel.go assembles the Kernel: thread table, ready queues, sleep list,
// MLFQS accounting, and the VM subsystems (frame table, swap device),
// wired together the way eventloop.NewLoop's constructor wires ingress
// queue + registry + poller + metrics, but built from KernelOption values
// instead of functional-option-only fields since the spec's configuration
// surface (scheduler mode, pool sizes, swap geometry) is resolved once at
// construction and never mutated afterward.

package kerncore

import (
	"sort"
	"sync"
)

// Kernel is a complete simulated single-CPU kernel: a thread scheduler
// (priority-donation or MLFQS), a frame table, and a swap device. Every
// exported method that touches scheduling state takes k.mu internally;
// callers never need their own locking.
type Kernel struct {
	mu   sync.Mutex
	cond *sync.Cond

	schedMode SchedMode
	timerFreq int

	threads *threadTable
	readyQ  *readySet
	current *Thread
	idle    *Thread

	// sleeping holds every thread parked by ThreadSleep, kept sorted by
	// WakeupAt so Tick's wakeup sweep only has to look at a prefix.
	sleeping []*Thread

	ticks       uint64
	threadTicks int
	loadAvg     Fixed

	frames *frameTable
	swap   *swapDevice

	logger  *Logger
	metrics *Metrics

	started bool
}

// New constructs a Kernel with the given options applied over the
// defaults (priority scheduling, TimerFreq ticks/sec, a 32-frame user
// pool, a no-op logger, metrics disabled).
func New(opts ...KernelOption) (*Kernel, error) {
	const defaultFrames = 32
	cfg, err := resolveKernelOptions(defaultFrames, opts)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		schedMode: cfg.schedMode,
		timerFreq: cfg.timerFreq,
		threads:   newThreadTable(),
		readyQ:    newReadySet(),
		logger:    cfg.logger,
		frames:    newFrameTable(cfg.userFrames),
		swap:      newSwapDevice(cfg.swapSectors, cfg.sectorSize),
	}
	k.cond = sync.NewCond(&k.mu)
	if cfg.metricsEnabled {
		k.metrics = NewMetrics()
	}
	if k.logger == nil {
		k.logger = NewNoOpLogger()
	}

	// The idle thread is created at PRI_MAX and installed directly as the
	// current thread here, so Start has nothing left to schedule. It is
	// never pushed onto a ready queue; the scheduler falls back to it
	// directly whenever the ready set is empty, so its priority never
	// factors into a selection decision.
	k.idle = k.newThreadLocked("idle", PriMax, nil)
	k.idle.status.Store(ThreadRunning)
	k.current = k.idle

	return k, nil
}

// Metrics returns the kernel's metrics collector, or nil if metrics were
// not enabled.
func (k *Kernel) Metrics() *Metrics { return k.metrics }

// SchedMode returns the scheduling discipline the kernel was built with.
func (k *Kernel) SchedMode() SchedMode { return k.schedMode }

// Ticks returns the number of simulated timer ticks elapsed.
func (k *Kernel) Ticks() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// newThreadLocked allocates and registers a Thread without starting a
// goroutine for it (used for the idle thread, which the scheduler itself
// drives by simply never giving it real work).
func (k *Kernel) newThreadLocked(name string, priority int, proc *Process) *Thread {
	t := &Thread{
		Name:     name,
		Priority: priority,
		magic:    ThreadMagic,
		Proc:     proc,
		done:     make(chan struct{}),
		resumeCh: make(chan struct{}, 1),
	}
	t.status.Store(ThreadBlocked)
	k.threads.alloc(t)
	return t
}

// ThreadCreate allocates a new thread running body, adds it to the ready
// queue, and returns it. Preemption goes through driverPreempt: if the
// idle thread is current, the new thread is switched to at once; if a real
// thread is current and the new thread's priority exceeds its
// EffectivePriority, that thread is only flagged (preemptPending) and does
// not yield until it reaches CheckPreempt or a blocking call.
func (k *Kernel) ThreadCreate(name string, priority int, body func(t *Thread)) *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()

	t := k.newThreadLocked(name, priority, nil)
	if k.schedMode == SchedMLFQS && k.current != nil {
		t.Nice = k.current.Nice
		t.Priority = mlfqsPriority(0, t.Nice)
	}
	t.body = body

	go k.runThread(t)

	t.status.Store(ThreadReady)
	t.readyEnqueuedAt = k.ticks
	k.readyQ.Push(t)
	k.logger.Info("sched", "thread created", "thread", t.ID, "name", name, "priority", t.EffectivePriority())

	// ThreadCreate may be called either by an existing thread's own body
	// (nested creation) or by whatever external code seeded the first
	// thread(s) -- driverPreempt is safe either way, unlike a synchronous
	// yieldLocked which would park a non-thread caller forever.
	k.driverPreempt(t.EffectivePriority())
	return t
}

// runThread is the goroutine body every created thread runs in: it waits
// to become current, runs its body once, then exits.
func (k *Kernel) runThread(t *Thread) {
	k.mu.Lock()
	for k.current != t {
		k.cond.Wait()
	}
	k.mu.Unlock()

	t.body(t)

	k.ThreadExit()
}

// ThreadBlock transitions the calling thread to Blocked and parks it until
// some other operation (SemaUp, ThreadUnblock, a timer wakeup) makes it
// ready again. Equivalent to thread_block.
func (k *Kernel) ThreadBlock() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.blockCurrentLocked(ThreadBlocked)
}

// ThreadUnblock moves t from Blocked to Ready. Like thread_unblock it never
// parks the caller. Under SchedPriority it then calls driverPreempt, which
// switches to t at once if the idle thread is current, and otherwise only
// flags a lower-priority running thread for its next CheckPreempt.
func (k *Kernel) ThreadUnblock(t *Thread) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.unblockLocked(t)
	if k.schedMode == SchedPriority {
		k.driverPreempt(t.EffectivePriority())
	}
}

// ThreadSleep parks the calling thread until ticks have elapsed, using the
// sleeping list rather than a busy-wait loop (the spec's improvement over
// the original's historical busy-wait, same rationale thread_make_sleep
// exists to avoid). Equivalent to timer_sleep + thread_make_sleep.
func (k *Kernel) ThreadSleep(ticks uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	cur := k.current
	cur.WakeupAt = k.ticks + ticks
	cur.sleeping = true
	k.sleeping = append(k.sleeping, cur)
	sort.Slice(k.sleeping, func(i, j int) bool { return k.sleeping[i].WakeupAt < k.sleeping[j].WakeupAt })
	k.blockCurrentLocked(ThreadBlocked)
}

// ThreadExit transitions the calling thread to Dying, removes it from the
// thread table, and hands off the CPU. Never returns.
func (k *Kernel) ThreadExit() {
	k.mu.Lock()
	cur := k.current
	cur.status.Store(ThreadDying)
	k.logger.Info("sched", "thread exit", "thread", cur.ID, "name", cur.Name)
	k.threads.remove(cur.ID)
	close(cur.done)
	k.schedule()
	k.mu.Unlock()
	runtimeParkForever(cur)
}

// runtimeParkForever blocks the goroutine backing an exited thread so it
// never spuriously becomes current again; schedule() never selects a
// thread not present in k.threads, so this is purely defensive.
func runtimeParkForever(t *Thread) { <-t.done }

// ThreadCurrent returns the thread currently holding the CPU, analogous to
// thread_current(), including its stack-overflow sentinel check.
func (k *Kernel) ThreadCurrent() *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.current.checkMagic()
	return k.current
}

// SetPriority sets the calling thread's base priority. Under SchedMLFQS
// this is a no-op, matching thread_set_priority's documented behavior
// when thread_mlfqs is enabled. If the new priority is lower than the
// thread's previous EffectivePriority and a higher-priority thread is
// ready, the caller yields.
func (k *Kernel) SetPriority(priority int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.schedMode == SchedMLFQS {
		return
	}
	k.current.Priority = priority
	k.checkPreemptLocked()
}

// GetPriority returns the calling thread's EffectivePriority.
func (k *Kernel) GetPriority() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current.EffectivePriority()
}

// SetNice sets the calling thread's MLFQS niceness and immediately
// recomputes its priority, yielding if it no longer has the highest
// priority. A no-op outside SchedMLFQS.
func (k *Kernel) SetNice(nice int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.schedMode != SchedMLFQS {
		return
	}
	k.current.Nice = nice
	k.current.Priority = mlfqsPriority(k.current.RecentCPU, nice)
	k.checkPreemptLocked()
}

// GetNice returns the calling thread's niceness.
func (k *Kernel) GetNice() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current.Nice
}

// GetRecentCPU returns the calling thread's recent_cpu, scaled to an
// integer by the same 100x + round-to-nearest convention
// thread_get_recent_cpu uses.
func (k *Kernel) GetRecentCPU() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current.RecentCPU.MulInt(100).ToIntNearest()
}

// GetLoadAvg returns the system load average, scaled by 100 and rounded,
// matching thread_get_load_avg.
func (k *Kernel) GetLoadAvg() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadAvg.MulInt(100).ToIntNearest()
}

// Each invokes fn once per live thread, analogous to thread_foreach.
func (k *Kernel) Each(fn func(*Thread)) { k.threads.Each(fn) }

// ReadyThreads returns the count of threads currently ready or running,
// excluding the idle thread -- the counter the MLFQS load-average formula
// consumes.
func (k *Kernel) ReadyThreads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := k.readyQ.Len()
	if k.current != k.idle {
		n++
	}
	return n
}

// Start performs the one-time startup sequence: nothing further is
// required beyond New's construction (the idle thread is already current
// and published), but Start exists as the named operation thread_start
// describes so callers have an explicit place to hang startup logging.
// Calling Start a second time returns ErrKernelAlreadyRunning; Tick
// returns ErrKernelNotRunning until Start has succeeded.
func (k *Kernel) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return ErrKernelAlreadyRunning
	}
	k.started = true
	k.logger.Info("sched", "kernel started", "mode", k.schedMode.String(), "idle", k.idle.ID)
	return nil
}
