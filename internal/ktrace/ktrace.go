// Package ktrace wraps zerolog for kernel-internal tracing. The scheduler
// emits one Reschedule event per context switch; nothing in the kernel
// emits ThreadStateChange, and mutex hand-offs and timer firings are not
// traced. Tracing is a no-op by default; a kernel opts in with
// Scheduler.SetTracer when it wants the detail.
package ktrace

import (
	"io"

	"github.com/rs/zerolog"
)

// Tracer receives kernel scheduling events. Implementations must not block
// or call back into the scheduler.
type Tracer interface {
	Reschedule(from, to string)
	ThreadStateChange(name, state string)
}

type noop struct{}

func (noop) Reschedule(string, string)        {}
func (noop) ThreadStateChange(string, string) {}

// NoOp returns a Tracer that discards every event.
func NoOp() Tracer { return noop{} }

// zerologTracer logs events through a zerolog.Logger at debug level.
type zerologTracer struct {
	log zerolog.Logger
}

// NewZerolog builds a Tracer writing structured debug events to w.
func NewZerolog(w io.Writer) Tracer {
	return &zerologTracer{log: zerolog.New(w).With().Timestamp().Str("component", "kernel").Logger()}
}

func (t *zerologTracer) Reschedule(from, to string) {
	t.log.Debug().Str("from", from).Str("to", to).Msg("reschedule")
}

func (t *zerologTracer) ThreadStateChange(name, state string) {
	t.log.Debug().Str("thread", name).Str("state", state).Msg("state change")
}
