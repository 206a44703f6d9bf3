package rtos

import (
	"github.com/wellrun/micro-os-plus-iii/rtclock"
	"github.com/wellrun/micro-os-plus-iii/rtlist"
)

// CondVar is a condition variable used together with a Mutex, the usual
// producer/consumer companion to mutex.
type CondVar struct {
	sched   *Scheduler
	name    string
	waiters rtlist.List[Thread]
}

// NewCondVar creates a condition variable bound to s.
func (s *Scheduler) NewCondVar(name string) *CondVar {
	return &CondVar{sched: s, name: name}
}

// Wait atomically releases m and blocks caller, reacquiring m before
// returning, exactly like pthread_cond_wait.
func (cv *CondVar) Wait(caller *Thread, m *Mutex) error {
	if err := m.Unlock(caller); err != nil {
		return err
	}
	cv.sched.block(caller, &cv.waiters, nil)
	return m.Lock(caller)
}

// TimedWait is Wait bounded by deadline. On timeout it still reacquires m
// before returning, matching pthread_cond_timedwait's contract.
func (cv *CondVar) TimedWait(caller *Thread, m *Mutex, deadline rtclock.Tick) error {
	if err := m.Unlock(caller); err != nil {
		return err
	}
	timedOut := cv.sched.block(caller, &cv.waiters, &deadline)
	if lockErr := m.Lock(caller); lockErr != nil {
		return lockErr
	}
	if timedOut {
		return ErrTimedOut
	}
	return nil
}

// Signal wakes at most one waiter.
// caller is the thread performing the signal, used to decide preemption;
// nil if called from outside any kernel thread.
func (cv *CondVar) Signal(caller *Thread) {
	if next := cv.sched.popHighestWaiter(&cv.waiters); next != nil {
		cv.sched.wake(next)
		cv.sched.maybePreempt(caller)
	}
}

// Broadcast wakes every waiter.
func (cv *CondVar) Broadcast(caller *Thread) {
	var woke bool
	for {
		next := cv.sched.popHighestWaiter(&cv.waiters)
		if next == nil {
			break
		}
		cv.sched.wake(next)
		woke = true
	}
	if woke {
		cv.sched.maybePreempt(caller)
	}
}
