package rtos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSemaphoreTryWait(t *testing.T) {
	k := newTestKernel()
	sem, err := k.Sched.NewSemaphore("sem", 1, 1)
	require.NoError(t, err)

	require.NoError(t, sem.TryWait())
	require.ErrorIs(t, sem.TryWait(), ErrAgain)
}

func TestSemaphorePostSaturatesAtMax(t *testing.T) {
	k := newTestKernel()
	sem, err := k.Sched.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	require.NoError(t, sem.Post(nil))
	require.Equal(t, 1, sem.Value())
	require.ErrorIs(t, sem.Post(nil), ErrAgain)
}

// TestSemaphorePostWakesHighestPriorityWaiter starts two threads blocked on
// an empty semaphore and checks that a single Post hands the unit to the
// higher-priority one, not whichever blocked first.
func TestSemaphorePostWakesHighestPriorityWaiter(t *testing.T) {
	k := newTestKernel()
	sem, err := k.Sched.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	lowBlocked := make(chan struct{})
	highBlocked := make(chan struct{})
	lowDone := make(chan struct{})
	highDone := make(chan struct{})

	low, err := k.NewThread(Attributes{Name: "low", Priority: 10}, func(ctx context.Context, th *Thread) {
		close(lowBlocked)
		require.NoError(t, sem.Wait(th))
		close(lowDone)
	})
	require.NoError(t, err)
	k.Start(low)
	waitClosed(t, lowBlocked, "low to start waiting")

	high, err := k.NewThread(Attributes{Name: "high", Priority: 200}, func(ctx context.Context, th *Thread) {
		close(highBlocked)
		require.NoError(t, sem.Wait(th))
		close(highDone)
	})
	require.NoError(t, err)
	k.Start(high)
	waitClosed(t, highBlocked, "high to start waiting")

	require.Eventually(t, func() bool {
		return k.Sched.waiterLen(&sem.waiters) == 2
	}, time.Second, time.Millisecond, "both threads should be blocked on the semaphore")

	require.NoError(t, sem.Post(nil))

	waitClosed(t, highDone, "high should be woken first")
	select {
	case <-lowDone:
		t.Fatal("low should still be waiting; only one unit was posted")
	default:
	}
}

func TestSemaphoreTimedWaitTimesOut(t *testing.T) {
	k := newTestKernel()
	sem, err := k.Sched.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	started := make(chan struct{})
	result := make(chan error, 1)

	th, err := k.NewThread(Attributes{Name: "th", Priority: PriorityNormal}, func(ctx context.Context, t *Thread) {
		deadline := k.Sched.Now() + 3
		close(started)
		result <- sem.TimedWait(t, deadline)
	})
	require.NoError(t, err)
	k.Start(th)
	waitClosed(t, started, "waiter to start")

	k.Sched.Tick(3)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrTimedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("timed wait never timed out")
	}
}
