package storeproxy

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/thread"
)

// resolver yields the live store, or nil. It is consulted on the store
// thread for every request and never cached.
type resolver interface {
	resolve() cookiestore.Store
}

// guardedStore is the detachable store reference used by UIProxy. Only the
// pointer is guarded; the store itself is still store-thread only.
type guardedStore struct {
	runner thread.TaskRunner

	mu    sync.Mutex
	store cookiestore.Store
}

func (g *guardedStore) resolve() cookiestore.Store {
	thread.AssertCurrent(g.runner, "guardedStore.resolve")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store
}

func (g *guardedStore) detach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store = nil
}

// core moves requests between the client and store threads. Proxies and
// every closure they post share it; the garbage collector keeps it alive
// until the last of them is gone.
type core struct {
	client   thread.TaskRunner
	store    thread.TaskRunner
	resolver resolver
	ids      RequestIDGenerator
	logger   *slog.Logger

	inFlight atomic.Int64
}

func newCore(client, store thread.TaskRunner, r resolver, cfg config) *core {
	return &core{
		client:   client,
		store:    store,
		resolver: r,
		ids:      cfg.ids,
		logger:   cfg.logger,
	}
}

// pending returns the number of requests not yet delivered or discarded.
func (c *core) pending() int {
	return int(c.inFlight.Load())
}

func (c *core) newRequest(op Operation) *request {
	c.inFlight.Add(1)
	return &request{id: c.ids.Generate(), op: op}
}

func (c *core) finish(r *request, s State, reason string) {
	r.advance(s)
	c.inFlight.Add(-1)
	c.logger.Debug("cookie request finished",
		"request", r.id, "op", r.op.String(), "state", s.String(), "reason", reason)
}

// storeCall runs one operation against a live store. It must arrange for
// reply to be called with the store's result.
type storeCall[R any] func(s cookiestore.Store, reply func(R))

// dispatch forwards a request to the store thread and returns at once.
// absent is the result when no store is present. gate, when non-nil, is
// checked on the client thread before cb runs; false discards the result.
func dispatch[R any](c *core, op Operation, call storeCall[R], absent R, gate func() bool, cb func(R)) {
	r := c.newRequest(op)
	r.advance(StateQueuedOnStoreThread)
	if !c.store.PostTask(func() { execute(c, r, call, absent, gate, cb) }) {
		c.finish(r, StateDiscarded, "store thread stopped")
	}
}

func execute[R any](c *core, r *request, call storeCall[R], absent R, gate func() bool, cb func(R)) {
	thread.AssertCurrent(c.store, "storeproxy: execute")

	s := c.resolver.resolve()
	if s == nil {
		r.advance(StateSkippedAbsentStore)
		reply(c, r, absent, gate, cb)
		return
	}

	r.advance(StateExecuted)
	var replied atomic.Bool
	call(s, func(v R) {
		if !replied.CompareAndSwap(false, true) {
			c.logger.Warn("cookie store replied more than once, ignoring",
				"request", r.id, "op", r.op.String())
			return
		}
		reply(c, r, v, gate, cb)
	})
}

func reply[R any](c *core, r *request, v R, gate func() bool, cb func(R)) {
	r.advance(StateQueuedOnClientThread)
	if !c.client.PostTask(func() { deliver(c, r, v, gate, cb) }) {
		c.finish(r, StateDiscarded, "client thread stopped")
	}
}

func deliver[R any](c *core, r *request, v R, gate func() bool, cb func(R)) {
	thread.AssertCurrent(c.client, "storeproxy: deliver")

	switch {
	case cb == nil:
		c.finish(r, StateDelivered, "no callback")
	case gate != nil && !gate():
		c.finish(r, StateDiscarded, "proxy closed")
	default:
		c.finish(r, StateDelivered, "")
		cb(v)
	}
}
