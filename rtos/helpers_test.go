package rtos

import (
	"testing"
	"time"
)

func newTestKernel() *Kernel {
	return NewKernel(DefaultConfig())
}

// waitClosed fails the test if ch is not closed within a generous bound,
// used to turn a hung goroutine-handoff bug into a test failure instead of
// an indefinitely stuck test run.
func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
