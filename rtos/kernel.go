// Package rtos implements the scheduler, thread, mutex, semaphore,
// condition variable and signal primitives of the kernel. Kernel is its
// single bootstrap entry point.
package rtos

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wellrun/micro-os-plus-iii/internal/ktrace"
	"github.com/wellrun/micro-os-plus-iii/port"
	"github.com/wellrun/micro-os-plus-iii/rtclock"
)

// Kernel wires a Scheduler to a concrete Port and Clock, the equivalent of
// the original's global kernel namespace.
type Kernel struct {
	Sched *Scheduler
	Clock *rtclock.Clock

	port port.Port
	cfg  Config
}

// NewKernel creates a kernel backed by a SimPort and a fresh clock.
func NewKernel(cfg Config) *Kernel {
	clk := rtclock.New()
	p := port.NewSim()
	return &Kernel{Sched: New(cfg, p, clk), Clock: clk, port: p, cfg: cfg}
}

// SetTracer installs a ktrace.Tracer on the kernel's scheduler.
func (k *Kernel) SetTracer(t ktrace.Tracer) { k.Sched.SetTracer(t) }

// NewThread forwards to Sched.NewThread.
func (k *Kernel) NewThread(attrs Attributes, fn func(ctx context.Context, t *Thread)) (*Thread, error) {
	return k.Sched.NewThread(attrs, fn)
}

// Start marks th ready to run. If nothing is currently dispatched this also
// performs the dispatch; otherwise th simply joins the ready queue.
func (k *Kernel) Start(th *Thread) { k.Sched.Start(th) }

// RunTicker drives the scheduler's clock forward by one tick every period,
// supervised by g, until ctx is cancelled. This is the host-side stand-in
// for the hardware systick interrupt.
func (k *Kernel) RunTicker(ctx context.Context, g *errgroup.Group, period time.Duration) {
	g.Go(func() error {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				k.Sched.Tick(1)
			}
		}
	})
}

// Shutdown releases every goroutine backing a spawned thread. Call it once
// no thread is expected to run again, typically alongside g.Wait().
func (k *Kernel) Shutdown() {
	k.port.Shutdown()
}
