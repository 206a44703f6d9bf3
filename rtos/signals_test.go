package rtos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSigWaitReturnsPendingSignalImmediately(t *testing.T) {
	k := newTestKernel()
	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {})
	require.NoError(t, err)

	require.NoError(t, th.SigRaise(0x1))
	got, err := th.SigWait(0x1, SigAny|SigClear)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1), got)
}

func TestSigWaitBlocksUntilRaised(t *testing.T) {
	k := newTestKernel()

	waiting := make(chan struct{})
	result := make(chan uint32, 1)

	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {
		close(waiting)
		got, err := self.SigWait(0x4, SigAny|SigClear)
		require.NoError(t, err)
		result <- got
	})
	require.NoError(t, err)
	k.Start(th)
	waitClosed(t, waiting, "thread to start waiting on the signal")

	require.NoError(t, th.SigRaise(0x4))

	select {
	case got := <-result:
		require.Equal(t, uint32(0x4), got)
	case <-time.After(2 * time.Second):
		t.Fatal("SigWait never returned after SigRaise")
	}
}

func TestSigWaitIgnoresNonMatchingBits(t *testing.T) {
	k := newTestKernel()

	waiting := make(chan struct{})
	result := make(chan uint32, 1)

	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {
		close(waiting)
		got, _ := self.SigWait(0x2, SigAny|SigClear)
		result <- got
	})
	require.NoError(t, err)
	k.Start(th)
	waitClosed(t, waiting, "thread to start waiting")

	require.NoError(t, th.SigRaise(0x1)) // does not match the waited mask

	select {
	case <-result:
		t.Fatal("SigWait returned on a non-matching signal")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, th.SigRaise(0x2))
	select {
	case got := <-result:
		require.Equal(t, uint32(0x2), got)
	case <-time.After(2 * time.Second):
		t.Fatal("SigWait never returned after the matching signal")
	}
}

// TestSigWaitAllModeRequiresEveryBit checks that a SigAll|SigClear wait on
// 0x6 stays blocked after only 0x2 is raised, and wakes with both bits
// returned (and the mask fully cleared) only once 0x4 is also raised.
func TestSigWaitAllModeRequiresEveryBit(t *testing.T) {
	k := newTestKernel()

	waiting := make(chan struct{})
	result := make(chan uint32, 1)

	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {
		close(waiting)
		got, err := self.SigWait(0x6, SigAll|SigClear)
		require.NoError(t, err)
		result <- got
	})
	require.NoError(t, err)
	k.Start(th)
	waitClosed(t, waiting, "thread to start waiting")

	require.NoError(t, th.SigRaise(0x2))
	select {
	case <-result:
		t.Fatal("SigWait(SigAll) returned before every masked bit was raised")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, th.SigRaise(0x4))
	select {
	case got := <-result:
		require.Equal(t, uint32(0x6), got)
		require.Equal(t, uint32(0), th.SigGet(0x6, SigKeep), "all matched bits must be cleared on wake")
	case <-time.After(2 * time.Second):
		t.Fatal("SigWait(SigAll) never returned once every bit was raised")
	}
}

func TestSigTimedWaitTimesOut(t *testing.T) {
	k := newTestKernel()

	started := make(chan struct{})
	result := make(chan error, 1)

	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {
		deadline := k.Sched.Now() + 4
		close(started)
		_, err := self.SigTimedWait(0x1, deadline, SigAny|SigClear)
		result <- err
	})
	require.NoError(t, err)
	k.Start(th)
	waitClosed(t, started, "thread to start waiting")

	k.Sched.Tick(4)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrTimedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("timed signal wait never timed out")
	}
}

func TestSigClearRemovesPendingBitsWithoutWaking(t *testing.T) {
	k := newTestKernel()
	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {})
	require.NoError(t, err)

	require.NoError(t, th.SigRaise(0x3))
	cleared := th.SigClear(0x1)
	require.Equal(t, uint32(0x1), cleared)

	got, err := th.SigWait(0x2, SigAny|SigClear)
	require.NoError(t, err)
	require.Equal(t, uint32(0x2), got)
}

func TestSigGetKeepLeavesBitsPending(t *testing.T) {
	k := newTestKernel()
	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {})
	require.NoError(t, err)

	require.NoError(t, th.SigRaise(0x5))
	require.Equal(t, uint32(0x1), th.SigGet(0x1, SigKeep))
	require.Equal(t, uint32(0x1), th.SigGet(0x1, SigKeep), "SigKeep must not consume the bit")
	require.Equal(t, uint32(0x1), th.SigGet(0x1, SigClear))
	require.Equal(t, uint32(0), th.SigGet(0x1, SigKeep), "SigClear must consume the bit")
}
