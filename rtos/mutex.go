package rtos

import (
	"sync"

	"github.com/wellrun/micro-os-plus-iii/rtclock"
	"github.com/wellrun/micro-os-plus-iii/rtlist"
)

// Type selects a mutex's recursive-locking behaviour.
type Type int

const (
	TypeNormal Type = iota
	TypeRecursive
	TypeErrorCheck
)

// Protocol selects how a mutex prevents priority inversion while it is
// held.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolInherit
	ProtocolProtect
)

// MutexAttributes configures a new Mutex.
type MutexAttributes struct {
	Name       string
	Type       Type
	Protocol   Protocol
	Ceiling    Priority // used when Protocol == ProtocolProtect
	Robust     bool
	RecursiveMax int // 0 means unlimited; otherwise the maximum recursion depth
}

// Mutex implements the original's try_lock/lock/timed_lock/unlock state
// machine, including recursive counting, priority inheritance and
// ceiling, and the robust/OWNER_DEAD/consistent/NOT_RECOVERABLE lifecycle,
// grounded on the original's os-mutex.cpp.
type Mutex struct {
	sched *Scheduler
	name  string
	typ   Type
	proto Protocol
	ceil  Priority
	robust bool
	recursiveMax int

	mu             sync.Mutex
	owner          *Thread
	lockCount      int
	waiters        rtlist.List[Thread]
	ownerDiedDirty bool // robust: owner exited while holding the lock
	notRecoverable bool
}

// NewMutex creates a mutex bound to s.
func (s *Scheduler) NewMutex(attrs MutexAttributes) (*Mutex, error) {
	if attrs.Protocol == ProtocolProtect && !attrs.Ceiling.valid() {
		return nil, ErrInvalid
	}
	m := &Mutex{
		sched:        s,
		name:         attrs.Name,
		typ:          attrs.Type,
		proto:        attrs.Protocol,
		ceil:         attrs.Ceiling,
		robust:       attrs.Robust,
		recursiveMax: attrs.RecursiveMax,
	}
	s.mu.Lock()
	s.mutexes = append(s.mutexes, m)
	s.mu.Unlock()
	return m, nil
}

// Name returns the mutex's name, for introspection.
func (m *Mutex) Name() string { return m.name }

// boostFor returns the priority boost this mutex currently contributes to
// owner's effective priority, PriorityIdle if owner does not hold it.
func (m *Mutex) boostFor(owner *Thread) Priority {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != owner {
		return PriorityIdle
	}
	switch m.proto {
	case ProtocolProtect:
		return m.ceil
	case ProtocolInherit:
		best := PriorityIdle
		for n := m.waiters.Front(); n != nil; n = n.Next() {
			if p := n.Value().Priority(); p > best {
				best = p
			}
		}
		return best
	default:
		return PriorityIdle
	}
}

// TryLock attempts to acquire m without blocking.
func (m *Mutex) TryLock(caller *Thread) error {
	m.mu.Lock()
	err, acquired := m.tryAcquireLocked(caller)
	m.mu.Unlock()
	if acquired {
		m.attachToOwner(caller)
	}
	return err
}

// tryAcquireLocked implements the non-blocking fast path shared by
// TryLock, Lock and TimedLock, including the protect-protocol ceiling
// check: all three entry points acquire through this one gate. Caller
// holds m.mu. acquired reports whether caller just became the new owner,
// in which case the caller must release m.mu and then call attachToOwner
// itself — attachToOwner recomputes priority boosts by re-locking m.mu,
// so it cannot run while this function's own lock is still held.
func (m *Mutex) tryAcquireLocked(caller *Thread) (err error, acquired bool) {
	if m.notRecoverable {
		return ErrNotRecoverable, false
	}
	if m.proto == ProtocolProtect && caller.Priority() > m.ceil {
		return ErrInvalid, false
	}
	if m.owner == nil {
		m.owner = caller
		m.lockCount = 1
		if m.ownerDiedDirty {
			m.ownerDiedDirty = false
			return ErrOwnerDead, true
		}
		return nil, true
	}
	if m.owner == caller {
		switch m.typ {
		case TypeRecursive:
			if m.recursiveMax > 0 && m.lockCount >= m.recursiveMax {
				return ErrAgain, false
			}
			m.lockCount++
			return nil, false
		case TypeErrorCheck:
			return ErrDeadlock, false
		default: // TypeNormal: self-relock is WOULD_BLOCK, not an error — the
			// caller's own Lock/TimedLock retry loop enqueues it onto m's
			// waiter list below, producing the self-deadlock-by-waiting the
			// original specifies rather than a distinguishable failure.
			return ErrBusy, false
		}
	}
	return ErrBusy, false
}

func (m *Mutex) attachToOwner(th *Thread) {
	th.mu.Lock()
	th.heldMutexes = append(th.heldMutexes, m)
	th.recomputeEffectiveLocked()
	th.mu.Unlock()
}

func (m *Mutex) detachFromOwner(th *Thread) {
	th.mu.Lock()
	for i, hm := range th.heldMutexes {
		if hm == m {
			th.heldMutexes = append(th.heldMutexes[:i], th.heldMutexes[i+1:]...)
			break
		}
	}
	th.recomputeEffectiveLocked()
	th.mu.Unlock()
}

// Lock blocks until m is acquired. A ceiling violation (caller's priority
// already exceeds the mutex's protect ceiling) is reported as ErrInvalid,
// matching the original's EINVALIDPRIORITY case collapsed into a single
// error. A TypeNormal mutex relocked by its own owner blocks here forever,
// the original's specified self-deadlock-by-waiting.
func (m *Mutex) Lock(caller *Thread) error {
	for {
		m.mu.Lock()
		err, acquired := m.tryAcquireLocked(caller)
		m.mu.Unlock()
		if acquired {
			m.attachToOwner(caller)
			return err
		}
		if err != ErrBusy {
			return err
		}
		m.sched.block(caller, &m.waiters, nil)
	}
}

// TimedLock blocks until m is acquired or the deadline passes.
func (m *Mutex) TimedLock(caller *Thread, deadline rtclock.Tick) error {
	for {
		m.mu.Lock()
		err, acquired := m.tryAcquireLocked(caller)
		m.mu.Unlock()
		if acquired {
			m.attachToOwner(caller)
			return err
		}
		if err != ErrBusy {
			return err
		}
		timedOut := m.sched.block(caller, &m.waiters, &deadline)
		if timedOut {
			return ErrTimedOut
		}
	}
}

// Unlock releases m, handing it to the highest-priority waiter if any.
func (m *Mutex) Unlock(caller *Thread) error {
	m.mu.Lock()
	if m.owner != caller {
		m.mu.Unlock()
		return ErrPermission
	}
	if m.typ == TypeRecursive && m.lockCount > 1 {
		m.lockCount--
		m.mu.Unlock()
		return nil
	}

	m.owner = nil
	m.lockCount = 0
	m.mu.Unlock()

	m.detachFromOwner(caller)

	// The woken waiter reacquires m itself, through the same
	// tryAcquireLocked fast path a fresh TryLock would take (owner == nil),
	// rather than being handed ownership here: nothing else can run
	// concurrently with caller in between (every other thread is parked
	// until caller itself switches away below), so there is no race to
	// guard against, and pre-assigning ownership here would make that
	// thread's own retry loop mistake the hand-off for a recursive
	// self-lock.
	if next := m.sched.popHighestWaiter(&m.waiters); next != nil {
		m.sched.wake(next)
	}
	m.sched.maybePreempt(caller)
	return nil
}

// onOwnerExit is called by Scheduler.finish for every mutex a thread still
// holds when it terminates. A robust mutex is left for the next locker to
// claim with ErrOwnerDead; any other mutex becomes not recoverable.
func (m *Mutex) onOwnerExit(dead *Thread) {
	m.mu.Lock()
	if m.owner != dead {
		m.mu.Unlock()
		return
	}
	m.owner = nil
	m.lockCount = 0
	if m.robust {
		m.ownerDiedDirty = true
	} else {
		m.notRecoverable = true
	}
	m.mu.Unlock()

	// Wake the highest-priority waiter, if any, and let it re-run its own
	// Lock/TimedLock loop: it will see owner == nil and, for a robust
	// mutex, claim ownership with ErrOwnerDead exactly like a fresh
	// tryAcquireLocked would, rather than being handed ownership here.
	if next := m.sched.popHighestWaiter(&m.waiters); next != nil {
		m.sched.wake(next)
	}
}

// Consistent marks a robust mutex recovered after an OwnerDead lock,
// allowing future locks to proceed normally. Calling it on a non-robust, non-dirty mutex is a
// no-op error.
func (m *Mutex) Consistent(caller *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != caller {
		return ErrPermission
	}
	if !m.robust {
		return ErrInvalid
	}
	m.notRecoverable = false
	return nil
}

// PrioCeiling returns the mutex's protect-protocol ceiling.
func (m *Mutex) PrioCeiling() Priority {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ceil
}

// SetPrioCeiling changes the ceiling, returning the previous value. It does not retroactively
// re-evaluate a boost already granted to the current owner.
func (m *Mutex) SetPrioCeiling(p Priority) (Priority, error) {
	if !p.valid() {
		return 0, ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.ceil
	m.ceil = p
	return old, nil
}

// WaiterCount reports how many threads are currently blocked on m, for
// introspection and tests.
func (m *Mutex) WaiterCount() int {
	return m.sched.waiterLen(&m.waiters)
}

// Owner returns the thread currently holding m, or nil.
func (m *Mutex) Owner() *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Reset forcibly clears ownership and the wait queue, used by tests and by
// recovery tooling; it is not part of the normal lock/unlock protocol.
func (m *Mutex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = nil
	m.lockCount = 0
	m.waiters = rtlist.List[Thread]{}
	m.ownerDiedDirty = false
	m.notRecoverable = false
}
