package rtos

import (
	"sync"

	"github.com/wellrun/micro-os-plus-iii/rtclock"
	"github.com/wellrun/micro-os-plus-iii/rtlist"
)

// Semaphore is a counting semaphore bounded by max, matching the
// original's counting semaphore.
type Semaphore struct {
	sched *Scheduler
	name  string

	mu      sync.Mutex
	count   int
	max     int
	waiters rtlist.List[Thread]
}

// NewSemaphore creates a semaphore starting at initial, saturating at max.
func (s *Scheduler) NewSemaphore(name string, initial, max int) (*Semaphore, error) {
	if max <= 0 || initial < 0 || initial > max {
		return nil, ErrInvalid
	}
	return &Semaphore{sched: s, name: name, count: initial, max: max}, nil
}

// TryWait decrements the count without blocking, or returns ErrAgain.
func (sem *Semaphore) TryWait() error {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	if sem.count == 0 {
		return ErrAgain
	}
	sem.count--
	return nil
}

// Wait decrements the count if it is non-zero; otherwise it blocks until
// Post hands a unit directly to caller.
func (sem *Semaphore) Wait(caller *Thread) error {
	sem.mu.Lock()
	if sem.count > 0 {
		sem.count--
		sem.mu.Unlock()
		return nil
	}
	sem.mu.Unlock()
	sem.sched.block(caller, &sem.waiters, nil)
	return nil
}

// TimedWait blocks until the count is non-zero or deadline passes.
func (sem *Semaphore) TimedWait(caller *Thread, deadline rtclock.Tick) error {
	sem.mu.Lock()
	if sem.count > 0 {
		sem.count--
		sem.mu.Unlock()
		return nil
	}
	sem.mu.Unlock()
	if sem.sched.block(caller, &sem.waiters, &deadline) {
		return ErrTimedOut
	}
	return nil
}

// Post increments the count, or directly hands the unit to the
// highest-priority waiter if one is queued.
// caller is the thread performing the post, used only to decide whether a
// freshly woken higher-priority waiter should preempt it; pass nil when
// posting from outside any kernel thread (e.g. an ISR simulation).
func (sem *Semaphore) Post(caller *Thread) error {
	if next := sem.sched.popHighestWaiter(&sem.waiters); next != nil {
		sem.sched.wake(next)
		sem.sched.maybePreempt(caller)
		return nil
	}
	sem.mu.Lock()
	defer sem.mu.Unlock()
	if sem.count >= sem.max {
		return ErrAgain
	}
	sem.count++
	return nil
}

// Value returns the current count, for introspection.
func (sem *Semaphore) Value() int {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	return sem.count
}

// Reset clears the wait queue and resets the count, used by recovery
// tooling and tests.
func (sem *Semaphore) Reset(count int) {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	sem.count = count
	sem.waiters = rtlist.List[Thread]{}
}
