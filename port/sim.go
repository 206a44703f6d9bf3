package port

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// simSlot is a goroutine's parking spot: a capacity-1 channel it blocks
// receiving from whenever it is not the thread currently dispatched.
type simSlot struct {
	resume chan struct{}
}

// Resume wakes the slot if it is parked. Sending is non-blocking: a slot
// resumed twice before it gets a chance to park again simply keeps one
// pending wakeup, which is the behaviour SwitchTo relies on.
func (s *simSlot) Resume() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

// SimPort is a host-side Port: every kernel thread is a real goroutine, but
// SwitchTo is the only place control ever moves between them, so above this
// package the kernel can still reason about scheduling as single-CPU and
// non-preemptive except at the points it chooses to call SwitchTo.
type SimPort struct {
	irqDepth int32
	isrDepth atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

var _ Port = (*SimPort)(nil)

// NewSim creates a SimPort ready to Spawn threads.
func NewSim() *SimPort {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &SimPort{ctx: ctx, cancel: cancel, group: g}
}

// Spawn starts fn on a fresh goroutine, parked immediately until the
// scheduler's first SwitchTo names its slot.
func (p *SimPort) Spawn(fn func(ctx context.Context)) Slot {
	slot := &simSlot{resume: make(chan struct{}, 1)}
	p.group.Go(func() error {
		select {
		case <-slot.resume:
		case <-p.ctx.Done():
			return nil
		}
		fn(p.ctx)
		return nil
	})
	return slot
}

// SwitchTo hands off execution: to is resumed first, then the caller parks
// as from and does not return until something switches back to it. from may
// be nil for the initial dispatch out of the boot goroutine, which has no
// slot of its own to park on.
func (p *SimPort) SwitchTo(from, to Slot) {
	if to != nil {
		to.(*simSlot).Resume()
	}
	if from == nil {
		return
	}
	f := from.(*simSlot)
	select {
	case <-f.resume:
	case <-p.ctx.Done():
	}
}

// MaskInterrupts increments the nesting depth; the mask is effectively held
// as long as depth is above zero.
func (p *SimPort) MaskInterrupts() InterruptMask {
	d := atomic.AddInt32(&p.irqDepth, 1)
	return InterruptMask{depth: d}
}

// RestoreInterrupts undoes one MaskInterrupts call.
func (p *SimPort) RestoreInterrupts(InterruptMask) {
	atomic.AddInt32(&p.irqDepth, -1)
}

// InInterruptContext reports whether the caller is running inside RunISR.
func (p *SimPort) InInterruptContext() bool {
	return p.isrDepth.Load() > 0
}

// RunISR simulates an interrupt handler running fn to completion on the
// calling goroutine. Nothing actually preempts concurrently in this port,
// but InInterruptContext correctly reports true for code run this way.
// Package rtos does not consult InInterruptContext: its blocking calls do
// not reject callers running inside RunISR.
func (p *SimPort) RunISR(fn func()) {
	p.isrDepth.Add(1)
	defer p.isrDepth.Add(-1)
	fn()
}

// Shutdown cancels every spawned thread's context and waits for them to
// return. Threads parked on SwitchTo unblock via ctx.Done; threads actually
// running are expected to check p.ctx (passed into Spawn's fn) themselves.
func (p *SimPort) Shutdown() {
	p.cancel()
	_ = p.group.Wait()
}
