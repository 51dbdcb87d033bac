// Command kernsim drives the kerncore scheduler through the donation,
// MLFQS, and sleep-ordering scenarios the package's design was validated
// against, printing a message log to stdout via a structured logger, in
// the same spirit as the teacher package's examples directory.
//
// Thread bodies run as goroutines arbitrated by the kernel's own baton; the
// driver itself is not a scheduled thread, so it never blocks inside a
// kernel call (ThreadCreate, Tick, and ThreadUnblock are all safe to call
// from outside any thread's body -- see Kernel.driverPreempt). Each
// scenario uses a sync.WaitGroup purely to know when its threads have
// finished, so scenario output doesn't interleave with the next header.
package main

import (
	"fmt"
	"os"
	"sync"

	"kerncore"
)

func main() {
	fmt.Println("=== S1: single-lock priority donation ===")
	runDonationScenario()

	fmt.Println("=== S3: MLFQS convergence ===")
	runMLFQSScenario()

	fmt.Println("=== S4: sleep ordering ===")
	runSleepScenario()
}

func runDonationScenario() {
	k, err := kerncore.New(kerncore.WithLogger(kerncore.NewLogger(kerncore.LevelInfo, os.Stdout)))
	if err != nil {
		fmt.Println("new kernel:", err)
		return
	}
	if err := k.Start(); err != nil {
		fmt.Println("start kernel:", err)
		return
	}

	l := kerncore.NewLock()
	var wg sync.WaitGroup
	wg.Add(3)

	k.ThreadCreate("main", 31, func(t *kerncore.Thread) {
		defer wg.Done()
		k.LockAcquire(l)
		fmt.Println("main acquired lock at priority", k.GetPriority())
		// Sleep while holding l so A and B actually run, contend for the
		// lock, and donate -- a plain channel wait here would never give
		// them a turn, since nothing but a kernel blocking call yields the
		// CPU in this model.
		k.ThreadSleep(5)
		fmt.Println("main woke still holding lock, effective priority", k.GetPriority())
		k.LockRelease(l)
	})

	k.ThreadCreate("A", 32, func(t *kerncore.Thread) {
		defer wg.Done()
		k.LockAcquire(l)
		fmt.Println("A got lock")
		k.LockRelease(l)
		fmt.Println("A done")
	})

	k.ThreadCreate("B", 33, func(t *kerncore.Thread) {
		defer wg.Done()
		k.LockAcquire(l)
		fmt.Println("B got lock")
		k.LockRelease(l)
		fmt.Println("B done")
	})

	for i := 0; i < 10; i++ {
		k.Tick()
	}
	wg.Wait()
}

func runMLFQSScenario() {
	k, err := kerncore.New(kerncore.WithSchedMode(kerncore.SchedMLFQS))
	if err != nil {
		fmt.Println("new kernel:", err)
		return
	}
	if err := k.Start(); err != nil {
		fmt.Println("start kernel:", err)
		return
	}

	const workIterations = 200
	var wg sync.WaitGroup
	wg.Add(4)

	for i := 0; i < 3; i++ {
		k.ThreadCreate(fmt.Sprintf("nice5-%d", i), kerncore.PriDefault, func(t *kerncore.Thread) {
			defer wg.Done()
			k.SetNice(5)
			for j := 0; j < workIterations; j++ {
				k.CheckPreempt()
			}
		})
	}
	k.ThreadCreate("nice0-cpu-bound", kerncore.PriDefault, func(t *kerncore.Thread) {
		defer wg.Done()
		for j := 0; j < workIterations; j++ {
			k.CheckPreempt()
		}
	})

	for i := 0; i < kerncore.TimerFreq; i++ {
		k.Tick()
	}
	wg.Wait()
	fmt.Println("load average (x100):", k.GetLoadAvg())
}

func runSleepScenario() {
	k, err := kerncore.New()
	if err != nil {
		fmt.Println("new kernel:", err)
		return
	}
	if err := k.Start(); err != nil {
		fmt.Println("start kernel:", err)
		return
	}

	var wg sync.WaitGroup
	for _, d := range []uint64{10, 20, 30} {
		d := d
		wg.Add(1)
		k.ThreadCreate(fmt.Sprintf("sleeper-%d", d), kerncore.PriDefault, func(t *kerncore.Thread) {
			defer wg.Done()
			k.ThreadSleep(d)
			fmt.Println("woke:", d, "at tick", k.Ticks())
		})
	}

	for i := 0; i < 40; i++ {
		k.Tick()
	}
	wg.Wait()
}
