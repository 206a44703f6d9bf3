package rtos

import (
	"sync"

	"github.com/wellrun/micro-os-plus-iii/internal/ktrace"
	"github.com/wellrun/micro-os-plus-iii/port"
	"github.com/wellrun/micro-os-plus-iii/rtclock"
	"github.com/wellrun/micro-os-plus-iii/rtlist"
)

// Scheduler owns the ready queue and is the single place threads are
// dispatched from. Every blocking primitive in this package (mutex,
// semaphore, condvar, signal wait, sleep) ultimately calls into it through
// block/wake/maybePreempt.
type Scheduler struct {
	port  port.Port
	clock *rtclock.Clock
	cfg   Config
	trace ktrace.Tracer

	mu          sync.Mutex
	ready       [priorityLevels]rtlist.List[Thread]
	current     *Thread
	lockDepth   int
	pendingResched bool
	nextID      int

	// threads and mutexes are registries kept purely for introspection
	// (cmd/rtosctl's ps/locks/mem commands); nothing in the scheduler's
	// own dispatch logic reads them.
	threads []*Thread
	mutexes []*Mutex
}

// Threads returns every thread ever created on s, in creation order.
func (s *Scheduler) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Thread(nil), s.threads...)
}

// Mutexes returns every mutex ever created on s, in creation order.
func (s *Scheduler) Mutexes() []*Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Mutex(nil), s.mutexes...)
}

// New creates a scheduler driven by p and clocked by c.
func New(cfg Config, p port.Port, c *rtclock.Clock) *Scheduler {
	return &Scheduler{port: p, clock: c, cfg: cfg, trace: ktrace.NoOp()}
}

// SetTracer installs a tracer; nil restores the no-op tracer.
func (s *Scheduler) SetTracer(t ktrace.Tracer) {
	if t == nil {
		t = ktrace.NoOp()
	}
	s.trace = t
}

// Current returns the thread presently dispatched, or nil if the scheduler
// is idle.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Lock disables rescheduling. Calls nest; Unlock must be called once per
// Lock.
func (s *Scheduler) Lock() {
	s.mu.Lock()
	s.lockDepth++
	s.mu.Unlock()
}

// Unlock re-enables rescheduling once its nesting depth returns to zero. If
// a reschedule was deferred while locked, the caller (necessarily the
// thread that is still current) is offered up for preemption exactly as
// maybePreempt would.
func (s *Scheduler) Unlock() {
	s.mu.Lock()
	if s.lockDepth == 0 {
		s.mu.Unlock()
		return
	}
	s.lockDepth--
	runNow := s.lockDepth == 0 && s.pendingResched
	if runNow {
		s.pendingResched = false
	}
	current := s.current
	s.mu.Unlock()
	if runNow {
		s.maybePreempt(current)
	}
}

// readyLocked inserts th at the tail of its priority bucket. Caller holds
// s.mu.
func (s *Scheduler) readyLocked(th *Thread) {
	th.state = stateReady
	s.ready[th.effPrio].PushBack(th.readyNode)
}

// pickHighestReadyLocked returns the front of the highest non-empty
// priority bucket, or nil. It never considers s.current: a running thread
// is, by construction, linked into no bucket. Caller holds s.mu.
func (s *Scheduler) pickHighestReadyLocked() *Thread {
	for lvl := priorityLevels - 1; lvl >= int(PriorityLowest); lvl-- {
		if front := s.ready[lvl].Front(); front != nil {
			return front.Value()
		}
	}
	return nil
}

// stepDown dispatches the highest-priority ready thread in place of from,
// which the caller has already made ineligible to keep running — either by
// queuing it onto a ready/wait list itself, or by leaving it on no list at
// all because it is blocked or has exited. It must be called on from's own
// goroutine (from may be nil only for the very first boot dispatch, driven
// by a non-thread goroutine with nothing to park).
func (s *Scheduler) stepDown(from *Thread) {
	s.mu.Lock()
	if s.lockDepth > 0 {
		s.pendingResched = true
		s.mu.Unlock()
		return
	}
	next := s.pickHighestReadyLocked()
	if next != nil {
		s.ready[next.effPrio].Remove(next.readyNode)
		next.state = stateRunning
	}
	s.current = next
	s.mu.Unlock()

	s.trace.Reschedule(threadName(from), threadName(next))

	var fromSlot, nextSlot port.Slot
	if from != nil {
		fromSlot = from.slot
	}
	if next != nil {
		nextSlot = next.slot
	}
	s.port.SwitchTo(fromSlot, nextSlot)
}

// maybePreempt is called by the currently running thread (caller) right
// after it has readied some other thread (e.g. unlocking a mutex a higher
// priority thread was waiting on). If the readied thread now outranks
// caller, caller is requeued behind it and control switches immediately;
// otherwise this is a no-op and caller keeps running.
func (s *Scheduler) maybePreempt(caller *Thread) {
	if caller == nil {
		return
	}
	s.mu.Lock()
	if s.lockDepth > 0 {
		s.pendingResched = true
		s.mu.Unlock()
		return
	}
	next := s.pickHighestReadyLocked()
	if next == nil || next.effPrio <= caller.effPrio {
		s.mu.Unlock()
		return
	}
	s.ready[next.effPrio].Remove(next.readyNode)
	next.state = stateRunning
	s.readyLocked(caller)
	s.current = next
	s.mu.Unlock()

	s.trace.Reschedule(threadName(caller), threadName(next))
	s.port.SwitchTo(caller.slot, next.slot)
}

func threadName(t *Thread) string {
	if t == nil {
		return "<idle>"
	}
	return t.name
}

// wake moves th from blocked to ready. If some thread is already running,
// wake leaves th queued and relies on the caller to follow up with
// maybePreempt (or on that thread's own next voluntary reschedule point) —
// wake has no "from" slot of its own to park. If the scheduler is idle,
// though, there is nothing to preserve and wake dispatches th itself,
// exactly like Start's cold path.
func (s *Scheduler) wake(th *Thread) {
	s.mu.Lock()
	if th.state != stateBlocked {
		s.mu.Unlock()
		return
	}
	s.readyLocked(th)
	cold := s.current == nil
	s.mu.Unlock()
	if cold {
		s.stepDown(nil)
	}
}

// Yield requeues the calling thread behind its same-priority peers and steps
// down in favour of the new highest-priority ready thread. Queuing th before picking means pickHighestReadyLocked naturally
// returns th itself when nothing else at or above its level is ready, making
// this a harmless self-resume rather than a true no-op.
func (s *Scheduler) Yield(th *Thread) {
	s.mu.Lock()
	s.readyLocked(th)
	s.mu.Unlock()
	s.stepDown(th)
}

// block removes th from running, optionally links it into waitList, arms a
// timeout if deadline is non-nil, and parks it until woken. It returns true
// if the wait ended because of a timeout.
func (s *Scheduler) block(th *Thread, waitList *rtlist.List[Thread], deadline *rtclock.Tick) bool {
	s.mu.Lock()
	th.state = stateBlocked
	if waitList != nil {
		waitList.PushBack(th.readyNode)
	}
	s.mu.Unlock()

	var timeoutNode *rtclock.Node
	if deadline != nil {
		timeoutNode = s.clock.Arm(*deadline, &threadTimeout{s: s, th: th, waitList: waitList})
	}

	s.stepDown(th)

	if timeoutNode != nil {
		s.clock.Disarm(timeoutNode)
	}

	th.mu.Lock()
	timedOut := th.timedOut
	th.timedOut = false
	th.mu.Unlock()
	return timedOut
}

// threadTimeout implements rtclock.Waiter for a thread parked with a
// deadline.
type threadTimeout struct {
	s        *Scheduler
	th       *Thread
	waitList *rtlist.List[Thread]
}

func (t *threadTimeout) Expire() {
	t.s.mu.Lock()
	blocked := t.th.state == stateBlocked
	if blocked && t.waitList != nil {
		t.waitList.Remove(t.th.readyNode)
	}
	t.s.mu.Unlock()
	if !blocked {
		return
	}
	t.th.mu.Lock()
	t.th.timedOut = true
	t.th.mu.Unlock()
	t.s.wake(t.th)
}

// popHighestWaiter removes and returns the highest-priority thread linked
// into list, or nil if it is empty. All mutation of a shared wait list
// (mutex, semaphore, or condvar waiters) goes through this and the other
// s.mu-guarded helpers below, so a list is never touched concurrently by
// both a dispatched thread's own mutex and the external tick driver.
func (s *Scheduler) popHighestWaiter(list *rtlist.List[Thread]) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Thread
	for n := list.Front(); n != nil; n = n.Next() {
		t := n.Value()
		if best == nil || t.effPrio > best.effPrio {
			best = t
		}
	}
	if best != nil {
		list.Remove(best.readyNode)
	}
	return best
}

// removeWaiter unlinks th from list if it is still linked there; a no-op
// otherwise.
func (s *Scheduler) removeWaiter(list *rtlist.List[Thread], th *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list.Remove(th.readyNode)
}

// waiterLen reports how many threads are linked into list.
func (s *Scheduler) waiterLen(list *rtlist.List[Thread]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return list.Len()
}

// Tick advances the scheduler's clock, firing any due timeouts. Call it
// from a single external driver goroutine (a simulated tick source), never
// from inside a dispatched thread.
func (s *Scheduler) Tick(delta rtclock.Tick) {
	s.clock.Advance(delta)
}

// Now returns the current tick count.
func (s *Scheduler) Now() rtclock.Tick { return s.clock.Now() }
