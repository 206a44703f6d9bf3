package rtos

import "errors"

// Sentinel errors returned by kernel operations, named after the POSIX
// errno values the original RTOS reports through its Result type.
var (
	ErrInvalid        = errors.New("rtos: invalid argument")
	ErrAgain          = errors.New("rtos: resource temporarily unavailable")
	ErrTimedOut       = errors.New("rtos: timed out")
	ErrDeadlock       = errors.New("rtos: resource deadlock would occur")
	ErrNotRecoverable = errors.New("rtos: mutex state not recoverable")
	ErrOwnerDead      = errors.New("rtos: previous owner died while holding the mutex")
	ErrPermission     = errors.New("rtos: operation not permitted")
	ErrBusy           = errors.New("rtos: resource busy")
	ErrOutOfMemory    = errors.New("rtos: out of memory")
	ErrClosed         = errors.New("rtos: object closed")
)
