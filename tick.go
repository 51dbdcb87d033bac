// tick.go implements the simulated timer interrupt: per-tick statistics,
// round-robin/MLFQS preemption enforcement, the sleeping-thread wakeup
// sweep, the MLFQS load_avg/recent_cpu recompute pass (every TimerFreq
// ticks) and priority recompute pass (every 4 ticks). Grounded on thread_tick, thread_wakeup, and
// the load_avg/recent_cpu/priority recompute block in timer_interrupt /
// thread.c.

package kerncore

// Tick advances the simulated clock by one timer tick. It returns
// ErrKernelNotRunning until Start has succeeded. TimeSlice enforcement uses
// Kernel.threadTicks (declared in kernel.go), which counts ticks since the
// current thread was scheduled and is reset on every schedule(); it lives
// on the Kernel rather than the Thread since only the running thread's
// slice matters, matching the original's single static thread_ticks
// counter.
func (k *Kernel) Tick() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.started {
		return ErrKernelNotRunning
	}

	k.ticks++
	cur := k.current

	switch {
	case cur == k.idle:
		k.metrics.recordTick(roleIdle)
	case cur.Proc != nil:
		k.metrics.recordTick(roleUser)
	default:
		k.metrics.recordTick(roleKernel)
	}

	if k.schedMode == SchedMLFQS {
		cur.RecentCPU = cur.RecentCPU.AddInt(1)
	}

	k.wakeupSweepLocked()

	if k.schedMode == SchedMLFQS {
		if k.ticks%uint64(k.timerFreq) == 0 {
			k.mlfqsRecomputeSecondLocked()
		}
		if k.ticks%4 == 0 {
			k.mlfqsRecomputePrioritiesLocked()
		}
	}

	k.threadTicks++
	if k.threadTicks >= TimeSlice {
		cur.preemptPending = true
	}
	if k.schedMode == SchedPriority && k.readyQ.mask != 0 {
		k.driverPreempt(k.readyQ.HighestPriority())
	}
	return nil
}

// wakeupSweepLocked wakes every sleeping thread whose WakeupAt has
// arrived. k.sleeping is kept sorted by WakeupAt so this stops at the
// first thread not yet due. Tick (the only caller) runs in an arbitrary
// driver's goroutine, not necessarily the current thread's own, so
// preemption is requested once after the sweep via driverPreempt rather
// than synchronously inside the loop.
func (k *Kernel) wakeupSweepLocked() {
	i := 0
	for ; i < len(k.sleeping); i++ {
		t := k.sleeping[i]
		if t.WakeupAt > k.ticks {
			break
		}
		t.sleeping = false
		k.unblockLocked(t)
	}
	if i > 0 {
		k.sleeping = k.sleeping[i:]
	}
	if k.schedMode == SchedPriority && k.readyQ.mask != 0 {
		k.driverPreempt(k.readyQ.HighestPriority())
	}
}

// mlfqsRecomputeSecondLocked runs the once-per-second load_avg and
// recent_cpu recompute pass (calculate_load_avg / calculate_recent_cpu).
func (k *Kernel) mlfqsRecomputeSecondLocked() {
	readyThreads := k.readyQ.Len()
	if k.current != k.idle {
		readyThreads++
	}
	k.loadAvg = mlfqsLoadAvg(k.loadAvg, readyThreads)

	k.threads.Each(func(t *Thread) {
		t.RecentCPU = mlfqsRecentCPU(t.RecentCPU, k.loadAvg, t.Nice)
	})
}

// mlfqsRecomputePrioritiesLocked runs the every-4-ticks priority
// recompute pass (calculate_priority), re-leveling any ready thread whose
// priority changed.
func (k *Kernel) mlfqsRecomputePrioritiesLocked() {
	k.threads.Each(func(t *Thread) {
		newPriority := mlfqsPriority(t.RecentCPU, t.Nice)
		if newPriority == t.Priority {
			return
		}
		wasReady := t.Status() == ThreadReady && t != k.current
		if wasReady {
			k.readyQ.Remove(t)
		}
		t.Priority = newPriority
		if wasReady {
			k.readyQ.Push(t)
		}
	})
	if k.readyQ.mask != 0 {
		k.driverPreempt(k.readyQ.HighestPriority())
	}
}
