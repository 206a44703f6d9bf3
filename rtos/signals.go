package rtos

import "github.com/wellrun/micro-os-plus-iii/rtclock"

// SigMode selects both the wait predicate (all bits vs. any bit) and
// whether a satisfied wait consumes the bits it matched, mirroring the
// original's flags::mode_t, which combines flags::mode::all|any with
// flags::mode::clear|keep via bitwise OR. SigGet only consults the
// clear/keep bit; the all/any bit has no meaning for a non-blocking read.
type SigMode uint8

const (
	// SigAny is satisfied once at least one masked bit is pending.
	SigAny SigMode = 1 << iota
	// SigAll is satisfied only once every masked bit is pending.
	SigAll
	// SigClear consumes the bits a wait matched, or the bits SigGet read.
	SigClear
	// SigKeep leaves matched/read bits pending for a later call.
	SigKeep
)

// sigSatisfied reports whether mode's predicate holds for signals&mask, and
// which bits matched: all of mask for SigAll, whatever subset is currently
// set for SigAny.
func sigSatisfied(signals, mask uint32, mode SigMode) (ok bool, matched uint32) {
	if mode&SigAll != 0 {
		if signals&mask == mask {
			return true, mask
		}
		return false, 0
	}
	matched = signals & mask
	return matched != 0, matched
}

// SigRaise sets bits in th's pending signal set and wakes th if it is
// blocked in SigWait/SigTimedWait on a mask and mode this raise satisfies.
func (th *Thread) SigRaise(mask uint32) error {
	if mask == 0 {
		return ErrInvalid
	}
	th.mu.Lock()
	th.signals |= mask
	shouldWake := false
	if th.sigWaiting {
		shouldWake, _ = sigSatisfied(th.signals, th.sigWaitMask, th.sigWaitMode)
	}
	th.mu.Unlock()
	if shouldWake {
		th.sched.wake(th)
		th.sched.maybePreempt(th.sched.Current())
	}
	return nil
}

// SigClear clears bits from th's pending signal set and returns the bits
// that were actually cleared.
func (th *Thread) SigClear(mask uint32) uint32 {
	th.mu.Lock()
	defer th.mu.Unlock()
	cleared := th.signals & mask
	th.signals &^= mask
	return cleared
}

// SigGet reads th's pending signals intersected with mask without blocking,
// clearing the bits it read when mode includes SigClear.
func (th *Thread) SigGet(mask uint32, mode SigMode) uint32 {
	th.mu.Lock()
	defer th.mu.Unlock()
	got := th.signals & mask
	if mode&SigClear != 0 {
		th.signals &^= got
	}
	return got
}

// SigWait blocks th until mode's predicate over mask is satisfied, then
// returns the bits that satisfied it, clearing them first when mode
// includes SigClear. For example, with mode = SigAll|SigClear, a wait on 0x6
// stays blocked after a 0x2 raise alone and only wakes, with the returned
// bits 0x6 and the mask cleared, once 0x4 is also raised.
func (th *Thread) SigWait(mask uint32, mode SigMode) (uint32, error) {
	if mask == 0 {
		return 0, ErrInvalid
	}
	for {
		th.mu.Lock()
		if ok, got := sigSatisfied(th.signals, mask, mode); ok {
			if mode&SigClear != 0 {
				th.signals &^= got
			}
			th.mu.Unlock()
			return got, nil
		}
		th.sigWaitMask = mask
		th.sigWaitMode = mode
		th.sigWaiting = true
		th.mu.Unlock()

		th.sched.block(th, nil, nil)

		th.mu.Lock()
		th.sigWaiting = false
		th.mu.Unlock()
	}
}

// SigTimedWait is SigWait bounded by deadline.
func (th *Thread) SigTimedWait(mask uint32, deadline rtclock.Tick, mode SigMode) (uint32, error) {
	if mask == 0 {
		return 0, ErrInvalid
	}
	for {
		th.mu.Lock()
		if ok, got := sigSatisfied(th.signals, mask, mode); ok {
			if mode&SigClear != 0 {
				th.signals &^= got
			}
			th.mu.Unlock()
			return got, nil
		}
		th.sigWaitMask = mask
		th.sigWaitMode = mode
		th.sigWaiting = true
		th.mu.Unlock()

		timedOut := th.sched.block(th, nil, &deadline)

		th.mu.Lock()
		th.sigWaiting = false
		th.mu.Unlock()

		if timedOut {
			return 0, ErrTimedOut
		}
	}
}
