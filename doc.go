// Package kerncore implements the scheduling and virtual-memory core of a
// small educational kernel: a preemptive thread scheduler (priority
// donation and MLFQS modes), the semaphore/lock primitives that cooperate
// with it to resolve priority inversion, and the virtual-memory layer
// (frame table, swap device, per-process page-mapping metadata) that backs
// user processes.
//
// # Architecture
//
// A [Kernel] owns every piece of scheduler-lifetime state: the thread
// table, the ready set (the same 64 priority buckets in both scheduling
// modes; a thread sits at the EffectivePriority it had when enqueued), the
// sleep queue, the running-thread pointer, and the
// fixed-point load-average accumulator. Threads ([Thread]) are modeled as
// goroutines gated by a condition variable baton: at any instant only the
// thread the scheduler has selected as current may proceed past a
// scheduling checkpoint, which reproduces the single-CPU,
// one-runnable-context-at-a-time semantics of the source kernel without
// needing real hardware preemption.
//
// The virtual-memory layer is three cooperating pieces threaded into the
// Kernel: an internal frame table (physical frame ownership and
// clock-style eviction), an internal swap device (slot allocation and
// page-sized I/O against a simulated block device), and per-process
// [VaddrMap] entries (stack growth, mmap regions, address-range
// validation) reached through [Kernel.PageFault].
//
// # Concurrency model
//
// The scheduler is cooperative within kernel code; a call to [Kernel.Tick]
// (standing in for the timer-interrupt source, an external collaborator)
// performs MLFQS accounting and the sleep-queue wakeup sweep, then sets a
// yield-on-return flag that a thread clears by calling
// [Kernel.CheckPreempt] at its next safe point. This is the one place the
// spec's asynchronous preemption is necessarily approximated: Go has no
// portable way to interrupt a goroutine mid-instruction, so preemption is
// modeled as tick-driven accounting plus a cooperative checkpoint rather
// than a true asynchronous trap.
//
// # Thread safety
//
// All scheduler-lifetime mutable state (ready set, thread table,
// ready-thread count, load average, donation chains) is guarded by a
// single mutex standing in for "interrupts disabled". The frame table has
// its own mutex. The swap device uses its own mutex, matching the
// spec's requirement that swap I/O may suspend and therefore cannot run
// under a global interrupts-disabled section.
//
// # Logging and metrics
//
// Structured, leveled logging is provided by [Logger], a thin wrapper
// around github.com/joeycumines/logiface with a github.com/joeycumines/stumpy
// JSON backend. [Metrics] tracks tick counters, eviction counts, and a
// P-square streaming quantile estimator for ready-queue wait-time
// percentiles, exposed via [Metrics.Snapshot].
package kerncore
