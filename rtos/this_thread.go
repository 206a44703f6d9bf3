package rtos

import "github.com/wellrun/micro-os-plus-iii/rtclock"

// SleepFor blocks the calling thread for the given number of ticks. It must be called from
// inside a thread's own body.
func (s *Scheduler) SleepFor(ticks rtclock.Tick) error {
	th := s.Current()
	if th == nil {
		return ErrPermission
	}
	deadline := s.Now() + ticks
	s.block(th, nil, &deadline)
	return nil
}

// YieldCurrent gives up the remainder of the calling thread's turn.
func (s *Scheduler) YieldCurrent() error {
	th := s.Current()
	if th == nil {
		return ErrPermission
	}
	s.Yield(th)
	return nil
}
