// sync.go implements the two synchronization primitives the scheduler
// builds everything else from: Semaphore (the only primitive the original
// kernel implements against interrupt-disable/enable) and Lock, a binary
// semaphore augmented with priority donation. Donation is resolved by
// Thread.EffectivePriority walking the held-lock graph on demand (see
// thread.go) rather than by propagating and restoring explicit donation
// records, which sidesteps a known defect in the donation chain this
// kernel's priority scheme is modeled on: releasing one of several locks
// that donated to the same holder must not blow away the donation still
// owed from the others, and a recompute-on-demand model gets that free.
//
// Every exported method here assumes the caller already holds the owning
// Kernel's mutex (k.mu) -- these are internal scheduling primitives, not a
// public concurrency API.

package kerncore

// Semaphore is a counting semaphore: Down blocks while value == 0, Up
// increments value and wakes one waiter if any are parked. Waiters are
// served in priority order: Up wakes whichever waiter currently has the
// highest EffectivePriority, not strictly FIFO, matching the "wake the
// highest priority waiting thread" requirement priority donation exists
// to satisfy.
type Semaphore struct {
	value   int
	waiters []*Thread
}

// NewSemaphore returns a Semaphore initialized to value.
func NewSemaphore(value int) *Semaphore {
	if value < 0 {
		fatalf(nil, "semaphore: negative initial value %d", value)
	}
	return &Semaphore{value: value}
}

// maxWaiterPriority returns the highest EffectivePriority among s's
// waiters, or PriMin-1 if none, used by Lock.maxWaiterPriority.
func (s *Semaphore) maxWaiterPriority() int {
	best := PriMin - 1
	for _, t := range s.waiters {
		if p := t.EffectivePriority(); p > best {
			best = p
		}
	}
	return best
}

// SemaDown blocks the current thread until s.value > 0, then decrements
// it. k.mu must be held; SemaDown releases it across the block and
// reacquires it before returning, same as the rest of the scheduler's
// blocking calls.
func (k *Kernel) SemaDown(s *Semaphore) {
	cur := k.current
	for s.value == 0 {
		s.waiters = append(s.waiters, cur)
		k.blockCurrentLocked(ThreadBlocked)
		s.removeWaiter(cur)
	}
	s.value--
}

// SemaTryDown attempts a non-blocking Down, returning whether it succeeded.
func (k *Kernel) SemaTryDown(s *Semaphore) bool {
	if s.value == 0 {
		return false
	}
	s.value--
	return true
}

// SemaUp increments s.value and, if any thread is waiting, moves the
// highest-priority waiter to the ready queue. SemaUp is always reached from
// a thread acting on its own behalf (LockRelease, CondSignal releasing its
// own wait), so -- unlike the tick handler's wakeup sweep -- it's safe to
// synchronously check whether the caller should yield right here.
func (k *Kernel) SemaUp(s *Semaphore) {
	s.value++
	if len(s.waiters) == 0 {
		return
	}
	best, bestIdx := s.waiters[0], 0
	for i, t := range s.waiters[1:] {
		if t.EffectivePriority() > best.EffectivePriority() {
			best, bestIdx = t, i+1
		}
	}
	s.waiters = append(s.waiters[:bestIdx], s.waiters[bestIdx+1:]...)
	k.unblockLocked(best)
	if k.schedMode == SchedPriority {
		k.checkPreemptLocked()
	}
}

func (s *Semaphore) removeWaiter(t *Thread) {
	for i, w := range s.waiters {
		if w == t {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// Lock is a binary semaphore with an owner, granting priority donation:
// a thread blocked acquiring a Lock held by a lower-priority thread raises
// that thread's EffectivePriority (transitively, through any lock chain)
// until the lock is released.
type Lock struct {
	sema   Semaphore
	holder *Thread
}

// NewLock returns an unheld Lock.
func NewLock() *Lock { return &Lock{sema: Semaphore{value: 1}} }

// maxWaiterPriority delegates to the underlying semaphore's waiter set;
// Thread.EffectivePriority calls this for every lock the thread holds.
func (l *Lock) maxWaiterPriority() int { return l.sema.maxWaiterPriority() }

// IsHeld reports whether the lock is currently held (by any thread).
func (l *Lock) IsHeld() bool { return l.holder != nil }

// Holder returns the thread currently holding l, or nil.
func (l *Lock) Holder() *Thread { return l.holder }

// LockAcquire blocks the current thread until l is free, then takes it.
// If l is already held, the acquiring thread's priority is donated to the
// holder for the duration of the wait (SchedPriority mode only; MLFQS does
// not donate, matching thread_mlfqs's disabling of donate_priority).
func (k *Kernel) LockAcquire(l *Lock) {
	cur := k.current
	if l.holder == cur {
		fatalf(nil, "thread %d: recursive acquire of lock already held", cur.ID)
	}

	if l.holder != nil && k.schedMode == SchedPriority {
		if h := l.holder; h.waitsTransitivelyFor(cur) {
			fatalf(nil, "thread %d: donation cycle through lock held by thread %d", cur.ID, h.ID)
		}
		cur.WaitingFor = l
		k.logger.Debug("donate", "blocking with donation", "thread", cur.ID, "holder", l.holder.ID)
		k.metrics.recordDonation()
		// Preemption check: the holder's EffectivePriority may now exceed
		// the previously-scheduled highest ready thread, but the holder
		// itself is not on the ready queue (it is running or itself
		// blocked), so there is nothing further to reschedule here; the
		// raised priority takes effect the next time the holder is
		// enqueued or compared against during schedule().
	}

	k.SemaDown(&l.sema)

	cur.WaitingFor = nil
	l.holder = cur
	if k.schedMode == SchedPriority {
		if cur.HeldLocksCount >= MaxPriorityDonation {
			fatalf(nil, "thread %d: exceeded MaxPriorityDonation held locks", cur.ID)
		}
		cur.HeldLocks[cur.HeldLocksCount] = l
		cur.HeldLocksCount++
	}
}

// LockTryAcquire attempts a non-blocking acquire, returning whether it
// succeeded. Never donates, since it never blocks.
func (k *Kernel) LockTryAcquire(l *Lock) bool {
	if !k.SemaTryDown(&l.sema) {
		return false
	}
	cur := k.current
	l.holder = cur
	if k.schedMode == SchedPriority {
		if cur.HeldLocksCount >= MaxPriorityDonation {
			fatalf(nil, "thread %d: exceeded MaxPriorityDonation held locks", cur.ID)
		}
		cur.HeldLocks[cur.HeldLocksCount] = l
		cur.HeldLocksCount++
	}
	return true
}

// LockRelease releases l, removing it from the holder's HeldLocks set
// (which alone drops any priority donation it was carrying) and waking
// the highest-priority waiter, if any.
func (k *Kernel) LockRelease(l *Lock) {
	cur := k.current
	if l.holder != cur {
		fatalf(nil, "thread %d: release of lock not held", cur.ID)
	}
	l.holder = nil
	for i := 0; i < cur.HeldLocksCount; i++ {
		if cur.HeldLocks[i] == l {
			cur.HeldLocksCount--
			cur.HeldLocks[i] = cur.HeldLocks[cur.HeldLocksCount]
			cur.HeldLocks[cur.HeldLocksCount] = nil
			break
		}
	}
	k.SemaUp(&l.sema)
	// Releasing may have dropped cur's EffectivePriority below the ready
	// queue's highest, so give the scheduler a chance to preempt.
	k.checkPreemptLocked()
}

// Condition is a monitor condition variable used together with a Lock,
// mirroring struct condition / cond_wait / cond_signal / cond_broadcast.
// l must be held by the caller on every call.
type Condition struct {
	waiters []*Semaphore
}

// NewCondition returns a ready-to-use Condition.
func NewCondition() *Condition { return &Condition{} }

// CondWait atomically releases l, blocks until signaled, then reacquires l.
func (k *Kernel) CondWait(c *Condition, l *Lock) {
	waitSema := NewSemaphore(0)
	c.waiters = append(c.waiters, waitSema)
	k.LockRelease(l)
	k.SemaDown(waitSema)
	k.LockAcquire(l)
}

// CondSignal wakes one waiter, if any. l must be held by the caller.
func (k *Kernel) CondSignal(c *Condition) {
	if len(c.waiters) == 0 {
		return
	}
	s := c.waiters[0]
	c.waiters = c.waiters[1:]
	k.SemaUp(s)
}

// CondBroadcast wakes every waiter. l must be held by the caller.
func (k *Kernel) CondBroadcast(c *Condition) {
	for len(c.waiters) > 0 {
		k.CondSignal(c)
	}
}
