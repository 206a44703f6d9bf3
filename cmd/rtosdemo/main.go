// Command rtosdemo runs the classic priority-inversion scenario on top of
// the kernel: a low-priority thread holds an inherit-protocol mutex, a
// high-priority thread blocks on it, and a medium-priority thread that
// depends on neither keeps running in between — demonstrating that the low
// thread's inherited boost, not accidental luck, is what lets the high
// thread make progress.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wellrun/micro-os-plus-iii/internal/buildinfo"
	"github.com/wellrun/micro-os-plus-iii/internal/ktrace"
	"github.com/wellrun/micro-os-plus-iii/rtos"
)

func main() {
	var (
		tickHz      int
		verbose     bool
		showVersion bool
	)
	flag.IntVar(&tickHz, "tick-hz", 1000, "Simulated scheduler tick rate.")
	flag.BoolVar(&verbose, "verbose", false, "Emit structured kernel traces to stderr.")
	flag.BoolVar(&showVersion, "version", false, "Print build version and exit.")
	flag.Parse()

	if showVersion {
		fmt.Println("rtosdemo", buildinfo.Short())
		return
	}

	k := rtos.NewKernel(rtos.DefaultConfig())
	if verbose {
		k.SetTracer(ktrace.NewZerolog(os.Stderr))
	}

	m, err := k.Sched.NewMutex(rtos.MutexAttributes{Name: "shared-resource", Protocol: rtos.ProtocolInherit})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtosdemo:", err)
		os.Exit(1)
	}

	const lowPrio, midPrio, highPrio = rtos.Priority(40), rtos.Priority(120), rtos.Priority(220)
	locked := make(chan struct{})

	low, err := k.NewThread(rtos.Attributes{Name: "low", Priority: lowPrio}, func(ctx context.Context, th *rtos.Thread) {
		fmt.Println("low: acquiring mutex")
		if err := m.Lock(th); err != nil {
			fmt.Fprintln(os.Stderr, "low: lock:", err)
			return
		}
		close(locked)
		fmt.Println("low: holding mutex, doing work")
		k.Sched.SleepFor(5) // give up the CPU without releasing the mutex
		fmt.Printf("low: effective priority while held: %d\n", th.Priority())
		fmt.Println("low: releasing mutex")
		_ = m.Unlock(th)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtosdemo:", err)
		os.Exit(1)
	}

	mid, err := k.NewThread(rtos.Attributes{Name: "mid", Priority: midPrio}, func(ctx context.Context, th *rtos.Thread) {
		<-locked
		fmt.Println("mid: running, independent of the mutex")
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtosdemo:", err)
		os.Exit(1)
	}

	high, err := k.NewThread(rtos.Attributes{Name: "high", Priority: highPrio}, func(ctx context.Context, th *rtos.Thread) {
		<-locked
		fmt.Println("high: blocking on the mutex low holds")
		if err := m.Lock(th); err != nil {
			fmt.Fprintln(os.Stderr, "high: lock:", err)
			return
		}
		defer m.Unlock(th)
		fmt.Println("high: acquired the mutex")
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtosdemo:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	k.RunTicker(gctx, g, time.Second/time.Duration(tickHz))

	k.Start(low)
	k.Start(mid)
	k.Start(high)

	deadline := time.After(2 * time.Second)
	for _, th := range []*rtos.Thread{low, mid, high} {
		for !th.Exited() {
			select {
			case <-deadline:
				fmt.Fprintln(os.Stderr, "rtosdemo: timed out waiting for threads to finish")
				os.Exit(1)
			case <-time.After(time.Millisecond):
			}
		}
	}

	stop()
	k.Shutdown()
	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, "rtosdemo:", err)
		os.Exit(1)
	}
}
