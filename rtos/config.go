package rtos

// Config bundles the kernel-wide tunables: stack sizing and the nominal tick
// period. The priority range is fixed (see priority.go) and the arena's
// block maximum is the rtmem.MaxBlock constant; neither is configurable
// here. A zero Config is not valid; use DefaultConfig as a starting point.
type Config struct {
	// MinStackSize and DefaultStackSize bound thread stack allocations
	// carved from the backing rtmem.Resource.
	MinStackSize     int
	DefaultStackSize int
	// TickPeriodNanos documents the nominal duration of one rtclock.Tick; it is
	// informational only; the scheduler itself is tick-unit agnostic.
	TickPeriodNanos int64
}

// DefaultConfig mirrors the defaults the original RTOS ships with a generic
// Cortex-M port: a 1ms tick and a 1KiB default stack.
func DefaultConfig() Config {
	return Config{
		MinStackSize:     256,
		DefaultStackSize: 1024,
		TickPeriodNanos:  1_000_000,
	}
}
