// Package rtclock implements the monotonic tick counter and the ordered
// timeout list used by every timed suspension point in the kernel
// (mutex.timed_lock, timed_sig_wait, sleep_for, ...).
package rtclock

import "sync"

// Tick is the clock's unit of monotonic time.
type Tick uint64

// Waiter is notified when its timeout node expires. Implementations must
// not block; Expire typically marks the owning thread timed-out and resumes
// it through the scheduler.
type Waiter interface {
	Expire()
}

// Node is a timeout list entry. The zero value is not armed; obtain one
// from Clock.Arm.
type Node struct {
	expiry Tick
	waiter Waiter
	next   *Node
	armed  bool
}

// Expiry returns the tick at which this node fires.
func (n *Node) Expiry() Tick { return n.expiry }

// Clock is a monotonic tick counter plus an ascending-order timeout list.
// Multiple independent clocks may coexist (e.g. a systick clock and a
// real-time clock); a thread picks one via its attributes.
type Clock struct {
	mu      sync.Mutex
	now     Tick
	pending *Node // ascending by expiry
}

// New creates a clock starting at tick 0.
func New() *Clock {
	return &Clock{}
}

// Now returns the current tick count.
func (c *Clock) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Arm inserts a timeout node keyed by expiry, in ascending order, and
// returns it so the caller can Disarm it later. Disarm finds the node by a
// linear scan of the pending list, so cancellation is O(n), not O(1).
func (c *Clock) Arm(expiry Tick, w Waiter) *Node {
	n := &Node{expiry: expiry, waiter: w, armed: true}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(n)
	return n
}

func (c *Clock) insertLocked(n *Node) {
	var prev *Node
	cur := c.pending
	for cur != nil && cur.expiry <= n.expiry {
		prev = cur
		cur = cur.next
	}
	n.next = cur
	if prev == nil {
		c.pending = n
	} else {
		prev.next = n
	}
}

// Disarm removes n from the timeout list if it is still armed. It is a
// no-op if the node already fired or was never armed on this clock.
func (c *Clock) Disarm(n *Node) {
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !n.armed {
		return
	}
	var prev *Node
	cur := c.pending
	for cur != nil {
		if cur == n {
			if prev == nil {
				c.pending = cur.next
			} else {
				prev.next = cur.next
			}
			n.armed = false
			n.next = nil
			return
		}
		prev = cur
		cur = cur.next
	}
	n.armed = false
}

// Advance moves the clock forward by delta ticks (normally 1, called from
// the hardware tick interrupt handler) and fires every node whose expiry
// has been reached, oldest first. Waiter.Expire is invoked with the clock's
// internal lock released, so waiters may safely call back into the
// scheduler.
func (c *Clock) Advance(delta Tick) {
	c.mu.Lock()
	c.now += delta
	now := c.now
	var due []*Node
	for c.pending != nil && c.pending.expiry <= now {
		n := c.pending
		c.pending = n.next
		n.next = nil
		n.armed = false
		due = append(due, n)
	}
	c.mu.Unlock()

	for _, n := range due {
		n.waiter.Expire()
	}
}

// Pending reports how many timeout nodes are currently armed. Exposed for
// introspection and tests.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for cur := c.pending; cur != nil; cur = cur.next {
		n++
	}
	return n
}
