package rtos

import (
	"context"
	"sync"

	"github.com/wellrun/micro-os-plus-iii/port"
	"github.com/wellrun/micro-os-plus-iii/rtlist"
	"github.com/wellrun/micro-os-plus-iii/rtmem"
)

type threadState int

const (
	stateInactive threadState = iota
	stateReady
	stateRunning
	stateBlocked
	stateTerminated
)

func (s threadState) String() string {
	switch s {
	case stateInactive:
		return "inactive"
	case stateReady:
		return "ready"
	case stateRunning:
		return "running"
	case stateBlocked:
		return "blocked"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Thread is one schedulable unit of execution. Its life cycle mirrors the
// original's: Inactive (created, not yet started), Ready (started, not yet
// dispatched), Running, Blocked (queued on a mutex, semaphore, condvar,
// sleep, or signal wait), and Terminated.
type Thread struct {
	id       int
	name     string
	sched    *Scheduler
	slot     port.Slot
	stack    []byte
	stackMem rtmem.Resource

	mu sync.Mutex

	state    threadState
	basePrio Priority
	effPrio  Priority

	readyNode *rtlist.Node[Thread]

	// heldMutexes lists mutexes this thread currently owns, most recently
	// acquired last; effective priority is recomputed from this set plus
	// basePrio whenever a boost is added or removed.
	heldMutexes []*Mutex

	detached bool
	exited   bool
	exitErr  error
	joiners  rtlist.List[Thread]

	cancelRequested bool

	signals     uint32
	sigWaitMask uint32
	sigWaitMode SigMode
	sigWaiting  bool

	timedOut bool
}

// Attributes configures a new thread.
type Attributes struct {
	Name      string
	Priority  Priority
	StackSize int
	StackMem  rtmem.Resource // nil allocates the stack from the Go heap (rtmem.HeapResource)
}

// NewThread allocates a thread's stack and registers it with the
// scheduler, ready to run fn once Start is called. fn receives the port's
// Context, which is cancelled on kernel shutdown; Thread.Cancel does not
// cancel it.
func (s *Scheduler) NewThread(attrs Attributes, fn func(ctx context.Context, t *Thread)) (*Thread, error) {
	if attrs.Priority == 0 {
		attrs.Priority = PriorityNormal
	}
	if !attrs.Priority.valid() {
		return nil, ErrInvalid
	}
	size := attrs.StackSize
	if size <= 0 {
		size = s.cfg.DefaultStackSize
	}
	if size < s.cfg.MinStackSize {
		return nil, ErrInvalid
	}
	mem := attrs.StackMem
	if mem == nil {
		mem = rtmem.NewHeapResource(0)
	}
	stack := mem.Allocate(size, 16)
	if stack == nil {
		return nil, ErrOutOfMemory
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	th := &Thread{
		id:       id,
		name:     attrs.Name,
		sched:    s,
		stack:    stack,
		stackMem: mem,
		state:    stateInactive,
		basePrio: attrs.Priority,
		effPrio:  attrs.Priority,
	}
	th.readyNode = rtlist.NewNode(th)

	th.slot = s.port.Spawn(func(ctx context.Context) {
		fn(ctx, th)
		s.finish(th)
	})

	s.mu.Lock()
	s.threads = append(s.threads, th)
	s.mu.Unlock()
	return th, nil
}

// Start marks th ready to run. If the scheduler is currently idle (no
// thread dispatched yet), this also performs the very first dispatch,
// picking whichever ready thread is highest priority — not necessarily th
// itself, if other threads were already Start-ed. If some thread is already
// running, th simply waits in the ready queue for that thread's next
// voluntary reschedule point: Start is called from outside any kernel
// thread's own goroutine, so it cannot force a preemption (the same
// limitation documented on Scheduler.wake).
func (s *Scheduler) Start(th *Thread) {
	s.mu.Lock()
	s.readyLocked(th)
	cold := s.current == nil
	s.mu.Unlock()
	if cold {
		s.stepDown(nil)
	}
}

// finish is invoked once a thread's fn returns. It wakes any joiners and
// hands the CPU to the next ready thread.
func (s *Scheduler) finish(th *Thread) {
	th.mu.Lock()
	th.exited = true
	detached := th.detached
	held := append([]*Mutex(nil), th.heldMutexes...)
	var joiners []*Thread
	for n := th.joiners.Front(); n != nil; n = th.joiners.Front() {
		joiners = append(joiners, n.Value())
		th.joiners.Remove(n)
	}
	th.mu.Unlock()

	for _, m := range held {
		m.onOwnerExit(th)
	}

	s.mu.Lock()
	th.state = stateTerminated
	s.mu.Unlock()

	for _, j := range joiners {
		s.wake(j)
	}
	if detached {
		th.stackMem.Deallocate(th.stack)
	}
	s.stepDown(th)
}

// Join blocks the calling thread until target exits, returning target's
// exit error. Joining an already-detached thread is an error.
func (th *Thread) Join(caller *Thread) error {
	th.mu.Lock()
	if th.detached {
		th.mu.Unlock()
		return ErrInvalid
	}
	if th.exited {
		err := th.exitErr
		th.mu.Unlock()
		return err
	}
	th.joiners.PushBack(caller.readyNode)
	th.mu.Unlock()

	th.sched.block(caller, nil, nil)

	th.mu.Lock()
	defer th.mu.Unlock()
	return th.exitErr
}

// Detach marks th so its stack is reclaimed automatically on exit instead
// of waiting for a Join.
func (th *Thread) Detach() error {
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.detached {
		return ErrInvalid
	}
	th.detached = true
	if th.exited {
		th.stackMem.Deallocate(th.stack)
	}
	return nil
}

// Cancel requests cooperative cancellation; fn observes this by polling
// Thread.CancelRequested. Cancel only sets that flag: it does not cancel
// fn's ctx and does not wake th from a blocking call.
func (th *Thread) Cancel() {
	th.mu.Lock()
	th.cancelRequested = true
	th.mu.Unlock()
}

// CancelRequested reports whether Cancel has been called.
func (th *Thread) CancelRequested() bool {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.cancelRequested
}

// Name returns the thread's name.
func (th *Thread) Name() string { return th.name }

// State reports the thread's scheduling state, for introspection.
func (th *Thread) State() string {
	th.sched.mu.Lock()
	defer th.sched.mu.Unlock()
	return th.state.String()
}

// Exited reports whether th's body has returned. Join's blocking path must
// only ever be called from the joining thread's own dispatched goroutine;
// code running outside any kernel thread (tests, external drivers) should
// poll Exited first and only call Join once it is true, which takes Join's
// non-blocking fast path.
func (th *Thread) Exited() bool {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.exited
}

// SetExitError is called by the thread's own body just before returning to
// record its result for Join.
func (th *Thread) SetExitError(err error) {
	th.mu.Lock()
	th.exitErr = err
	th.mu.Unlock()
}

// Priority returns the thread's effective (post-inheritance) priority.
func (th *Thread) Priority() Priority {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.effPrio
}

// BasePriority returns the priority th was created or last explicitly set
// with, ignoring any inherited boost.
func (th *Thread) BasePriority() Priority {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.basePrio
}

// SetPriority changes th's base priority and recomputes its effective
// priority, re-sorting it within the ready queue if it is currently ready.
func (th *Thread) SetPriority(p Priority) error {
	if !p.valid() {
		return ErrInvalid
	}
	s := th.sched
	s.mu.Lock()
	th.mu.Lock()
	th.basePrio = p
	wasReady := th.state == stateReady
	oldEff := th.effPrio
	if wasReady {
		s.ready[oldEff].Remove(th.readyNode)
	}
	th.recomputeEffectiveLocked()
	if wasReady {
		s.ready[th.effPrio].PushBack(th.readyNode)
	}
	th.mu.Unlock()
	s.mu.Unlock()
	s.maybePreempt(s.Current())
	return nil
}

// recomputeEffectiveLocked sets effPrio to the max of basePrio and every
// mutex ceiling/inherited boost th currently carries. Caller holds th.mu.
func (th *Thread) recomputeEffectiveLocked() {
	best := th.basePrio
	for _, m := range th.heldMutexes {
		if c := m.boostFor(th); c > best {
			best = c
		}
	}
	th.effPrio = best
}
