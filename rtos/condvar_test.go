package rtos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCondVarWaitReacquiresMutex runs a classic producer/consumer pair: the
// consumer waits on an empty condition guarded by m, the producer sets the
// condition and signals, and the consumer must observe the change with m
// held again once Wait returns.
func TestCondVarWaitReacquiresMutex(t *testing.T) {
	k := newTestKernel()
	m, err := k.Sched.NewMutex(MutexAttributes{Name: "m"})
	require.NoError(t, err)
	cv := k.Sched.NewCondVar("cv")

	var ready bool
	consumerWaiting := make(chan struct{})
	consumerDone := make(chan struct{})

	consumer, err := k.NewThread(Attributes{Name: "consumer", Priority: PriorityNormal}, func(ctx context.Context, th *Thread) {
		require.NoError(t, m.Lock(th))
		for !ready {
			close(consumerWaiting)
			require.NoError(t, cv.Wait(th, m))
		}
		require.Same(t, th, m.Owner(), "Wait must reacquire m before returning")
		require.NoError(t, m.Unlock(th))
		close(consumerDone)
	})
	require.NoError(t, err)
	k.Start(consumer)
	waitClosed(t, consumerWaiting, "consumer to block on the condition")

	producer, err := k.NewThread(Attributes{Name: "producer", Priority: PriorityNormal}, func(ctx context.Context, th *Thread) {
		require.NoError(t, m.Lock(th))
		ready = true
		require.NoError(t, m.Unlock(th))
		cv.Signal(th)
	})
	require.NoError(t, err)
	k.Start(producer)

	waitClosed(t, consumerDone, "consumer to wake, observe ready, and finish")
}

func TestCondVarBroadcastWakesAllWaiters(t *testing.T) {
	k := newTestKernel()
	m, err := k.Sched.NewMutex(MutexAttributes{Name: "m"})
	require.NoError(t, err)
	cv := k.Sched.NewCondVar("cv")

	const n = 3
	var waiting, done int
	waitingCh := make(chan struct{})
	doneCh := make(chan struct{})

	for i := 0; i < n; i++ {
		th, err := k.NewThread(Attributes{Name: "waiter", Priority: PriorityNormal}, func(ctx context.Context, th *Thread) {
			require.NoError(t, m.Lock(th))
			waiting++
			if waiting == n {
				close(waitingCh)
			}
			require.NoError(t, cv.Wait(th, m))
			require.NoError(t, m.Unlock(th))
			done++
			if done == n {
				close(doneCh)
			}
		})
		require.NoError(t, err)
		k.Start(th)
	}

	waitClosed(t, waitingCh, "every waiter to block on the condition")

	broadcaster, err := k.NewThread(Attributes{Name: "broadcaster", Priority: PriorityNormal}, func(ctx context.Context, th *Thread) {
		cv.Broadcast(th)
	})
	require.NoError(t, err)
	k.Start(broadcaster)

	waitClosed(t, doneCh, "every waiter to finish after the broadcast")
}

func TestCondVarTimedWaitTimesOutAndReacquiresMutex(t *testing.T) {
	k := newTestKernel()
	m, err := k.Sched.NewMutex(MutexAttributes{Name: "m"})
	require.NoError(t, err)
	cv := k.Sched.NewCondVar("cv")

	started := make(chan struct{})
	result := make(chan error, 1)
	var owner *Thread

	th, err := k.NewThread(Attributes{Name: "waiter", Priority: PriorityNormal}, func(ctx context.Context, self *Thread) {
		require.NoError(t, m.Lock(self))
		deadline := k.Sched.Now() + 3
		close(started)
		err := cv.TimedWait(self, m, deadline)
		owner = m.Owner()
		result <- err
	})
	require.NoError(t, err)
	k.Start(th)
	waitClosed(t, started, "waiter to start")

	k.Sched.Tick(3)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrTimedOut)
		require.Same(t, th, owner, "TimedWait must reacquire m even on timeout")
	case <-time.After(2 * time.Second):
		t.Fatal("timed wait never timed out")
	}
}
