package thread

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startThread(t *testing.T, name string) *Thread {
	t.Helper()
	th := New(name)
	th.Start(context.Background())
	t.Cleanup(th.Stop)
	return th
}

func TestThread_RunsTasksInOrder(t *testing.T) {
	th := startThread(t, "order")

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, th.PostTask(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, th.PostTaskAndWait(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestThread_RunsTasksOnCurrentThread(t *testing.T) {
	th := startThread(t, "affinity")
	other := startThread(t, "other")

	assert.False(t, th.RunsTasksOnCurrentThread(), "test goroutine is not the thread")

	var onThread, onOther bool
	require.NoError(t, th.PostTaskAndWait(context.Background(), func() {
		onThread = th.RunsTasksOnCurrentThread()
		onOther = other.RunsTasksOnCurrentThread()
	}))

	assert.True(t, onThread)
	assert.False(t, onOther)
}

func TestThread_NotStartedIsNeverCurrent(t *testing.T) {
	th := New("idle")
	assert.False(t, th.RunsTasksOnCurrentThread())
	th.Stop()
}

func TestThread_TasksPostedBeforeStartRun(t *testing.T) {
	th := New("early")
	ran := make(chan struct{})
	require.True(t, th.PostTask(func() { close(ran) }))

	th.Start(context.Background())
	defer th.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task posted before Start never ran")
	}
}

func TestThread_StopDrainsQueuedTasks(t *testing.T) {
	th := New("drain")
	th.Start(context.Background())

	gate := make(chan struct{})
	th.PostTask(func() { <-gate })

	var count int
	for i := 0; i < 10; i++ {
		th.PostTask(func() { count++ })
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(gate)
	}()
	th.Stop()

	assert.Equal(t, 10, count, "Stop must run every task queued before it")
}

func TestThread_PostAfterStop(t *testing.T) {
	th := New("stopped")
	th.Start(context.Background())
	th.Stop()

	assert.False(t, th.PostTask(func() {}))

	err := th.PostTaskAndWait(context.Background(), func() {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestThread_StopIsIdempotent(t *testing.T) {
	th := New("twice")
	th.Start(context.Background())
	th.Stop()
	assert.NotPanics(t, th.Stop)
}

func TestThread_ContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	th := New("cancel")
	th.Start(ctx)

	cancel()

	require.Eventually(t, func() bool {
		return !th.PostTask(func() {})
	}, time.Second, 5*time.Millisecond)
	th.Stop()
}

func TestThread_ContextCancelDropsQueuedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	th := New("cancel-queued")
	th.Start(ctx)

	gate := make(chan struct{})
	var ran atomic.Bool
	require.True(t, th.PostTask(func() { <-gate }))
	require.True(t, th.PostTask(func() { ran.Store(true) }))

	cancel()
	close(gate)
	th.Stop()

	assert.False(t, ran.Load(), "tasks queued behind a cancellation must not run")
	assert.False(t, th.PostTask(func() {}))
}

func TestThread_StartTwicePanics(t *testing.T) {
	th := startThread(t, "start")
	assert.Panics(t, func() { th.Start(context.Background()) })
}

func TestThread_PostNilTaskPanics(t *testing.T) {
	th := startThread(t, "nil")
	assert.Panics(t, func() { th.PostTask(nil) })
}

func TestThread_PostTaskAndWait_ContextDone(t *testing.T) {
	th := startThread(t, "slow")

	gate := make(chan struct{})
	defer close(gate)
	th.PostTask(func() { <-gate })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := th.PostTaskAndWait(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAssertCurrent(t *testing.T) {
	th := startThread(t, "assert")

	assert.PanicsWithValue(t, `Owner.Store called off thread "assert"`, func() {
		AssertCurrent(th, "Owner.Store")
	})

	var panicked bool
	require.NoError(t, th.PostTaskAndWait(context.Background(), func() {
		defer func() { panicked = recover() != nil }()
		AssertCurrent(th, "Owner.Store")
	}))
	assert.False(t, panicked)
}

func TestCurrentGoroutineID(t *testing.T) {
	id := currentGoroutineID()
	assert.Positive(t, id)
	assert.Equal(t, id, currentGoroutineID(), "stable within a goroutine")

	other := make(chan int64)
	go func() { other <- currentGoroutineID() }()
	assert.NotEqual(t, id, <-other)
}
