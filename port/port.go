// Package port abstracts the hardware/OS boundary the scheduler dispatches
// through. On real silicon this layer is PendSV handlers and a tick timer;
// here it is SimPort, a goroutine-baton implementation that gives every
// kernel thread a real goroutine but only ever lets one of them run at a
// time, so the rest of the kernel can keep treating scheduling as strictly
// single-CPU and cooperative at the point of SwitchTo.
package port

import "context"

// Port is everything the scheduler needs below the line it does not want to
// know the mechanism for: starting a thread, switching the running thread,
// masking interrupts around a critical section, and reporting whether the
// caller is inside a simulated interrupt handler.
type Port interface {
	// Spawn prepares a new thread of execution running fn, parked until the
	// scheduler first SwitchTo's it.
	Spawn(fn func(ctx context.Context)) Slot

	// SwitchTo parks the calling slot (from) and resumes to. The caller must
	// currently be running as "from"; it returns once some later SwitchTo
	// names "from" as its target again. A nil from is valid only for the
	// very first dispatch out of the boot goroutine.
	SwitchTo(from, to Slot)

	// MaskInterrupts disables preemption at the port level and returns a
	// token to pass to RestoreInterrupts. Re-entrant: nested Mask/Restore
	// pairs nest correctly.
	MaskInterrupts() InterruptMask
	RestoreInterrupts(InterruptMask)

	// InInterruptContext reports whether the calling goroutine is running
	// inside a RunISR call.
	InInterruptContext() bool

	// RunISR executes fn as a simulated interrupt handler: InInterruptContext
	// reports true for its duration. fn must not block or call SwitchTo.
	RunISR(fn func())

	// Shutdown cancels every spawned thread's context and releases any slot
	// still parked, so goroutines spawned by a test or demo do not leak.
	Shutdown()
}

// Slot identifies one thread's execution context within a Port.
type Slot interface {
	// Resume wakes the slot if parked. Used to dispatch a thread that is not
	// the caller, e.g. the idle thread at boot, or a thread just unblocked
	// by an ISR.
	Resume()
}

// InterruptMask is an opaque token returned by MaskInterrupts; it records
// nesting depth so RestoreInterrupts only lifts the mask once the outermost
// call returns.
type InterruptMask struct {
	depth int32
}
