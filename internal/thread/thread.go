package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrStopped is returned when a task cannot be posted because the Thread
// no longer accepts work.
var ErrStopped = errors.New("thread stopped")

// TaskRunner runs posted closures on one specific goroutine, in FIFO order.
//
// PostTask returns false when the runner no longer accepts tasks. A task that
// was not accepted is dropped and never runs.
type TaskRunner interface {
	PostTask(task func()) bool
	RunsTasksOnCurrentThread() bool
}

// Option configures a Thread.
type Option func(*Thread)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Thread) {
		t.logger = logger
	}
}

// Thread is a named single-goroutine task runner.
//
// INVARIANTS:
//   - at most one task runs at a time, on the loop goroutine
//   - tasks run in the order PostTask accepted them
//   - once Stop has been called no new task is accepted
type Thread struct {
	name   string
	queue  *taskQueue
	logger *slog.Logger

	goid    atomic.Int64 // loop goroutine id, 0 until the loop runs
	started atomic.Bool
	ready   chan struct{} // closed once goid is recorded
	done    chan struct{} // closed when the loop returns
}

// New creates a Thread. The loop does not run until Start is called, but
// tasks may be posted before that; they run once the loop starts.
func New(name string, opts ...Option) *Thread {
	t := &Thread{
		name:   name,
		queue:  newTaskQueue(),
		logger: slog.Default(),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("thread", name)
	return t
}

// Name returns the name given to New.
func (t *Thread) Name() string {
	return t.name
}

// Start launches the loop goroutine and returns once it is running.
//
// The loop stops when Stop is called, after running every task that was
// already queued, or when ctx is cancelled. Cancellation is noticed between
// tasks: the running task finishes and the rest of the queue is dropped.
// Panics if called twice.
func (t *Thread) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("thread %q: Start called twice", t.name))
	}
	go t.loop(ctx)
	<-t.ready
}

func (t *Thread) loop(ctx context.Context) {
	defer close(t.done)

	t.goid.Store(currentGoroutineID())
	close(t.ready)
	t.logger.Debug("thread starting")

	for {
		if ctx.Err() != nil {
			t.cancelled()
			return
		}
		if task, ok := t.queue.TryDequeue(); ok {
			task()
			continue
		}

		select {
		case <-ctx.Done():
			t.cancelled()
			return

		case <-t.queue.Wait():
			// The signal channel is closed when the queue is closed, so
			// this case keeps firing until everything queued has run.
			if t.queue.Drained() {
				t.logger.Debug("thread stopping: queue closed")
				return
			}
		}
	}
}

func (t *Thread) cancelled() {
	t.queue.Close()
	t.logger.Debug("thread stopping: context cancelled", "dropped", t.queue.Len())
}

// PostTask queues task to run on the Thread.
// Thread-safe: may be called from any goroutine, including the Thread itself.
func (t *Thread) PostTask(task func()) bool {
	if task == nil {
		panic(fmt.Sprintf("thread %q: nil task posted", t.name))
	}
	return t.queue.Enqueue(task)
}

// RunsTasksOnCurrentThread reports whether the caller is the loop goroutine.
func (t *Thread) RunsTasksOnCurrentThread() bool {
	id := t.goid.Load()
	return id != 0 && id == currentGoroutineID()
}

// PostTaskAndWait runs task on the Thread and blocks until it has run or
// ctx is done. It exists for setup code and tests that need a synchronous
// hop; the cookie proxy itself never blocks.
//
// Panics if called from the Thread itself, which would deadlock.
func (t *Thread) PostTaskAndWait(ctx context.Context, task func()) error {
	if t.RunsTasksOnCurrentThread() {
		panic(fmt.Sprintf("thread %q: PostTaskAndWait called on its own thread", t.name))
	}

	done := make(chan struct{})
	if !t.PostTask(func() {
		defer close(done)
		task()
	}) {
		return fmt.Errorf("thread %q: %w", t.name, ErrStopped)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting tasks, lets the loop run everything already queued,
// and waits for the loop to exit. Stopping a Thread that was never started
// only closes its queue. Safe to call more than once.
//
// Panics if called from the Thread itself.
func (t *Thread) Stop() {
	if t.RunsTasksOnCurrentThread() {
		panic(fmt.Sprintf("thread %q: Stop called on its own thread", t.name))
	}
	t.queue.Close()
	if t.started.Load() {
		<-t.done
	}
}

// Pending returns the number of tasks waiting to run.
func (t *Thread) Pending() int {
	return t.queue.Len()
}

// AssertCurrent panics unless the caller runs on r. what names the
// operation for the panic message.
func AssertCurrent(r TaskRunner, what string) {
	if r.RunsTasksOnCurrentThread() {
		return
	}
	if named, ok := r.(interface{ Name() string }); ok {
		panic(fmt.Sprintf("%s called off thread %q", what, named.Name()))
	}
	panic(fmt.Sprintf("%s called off its thread", what))
}
