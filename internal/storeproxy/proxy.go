package storeproxy

import (
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/thread"
	"github.com/roach88/cookieproxy/internal/weakptr"
)

// Proxy is a cookiestore.Store for the client thread backed by the store
// an Owner holds on the store thread.
//
// Results arriving after Close are dropped. Everything else about a Proxy,
// including Close, must happen on the client thread.
type Proxy struct {
	surface
}

var _ cookiestore.Store = (*Proxy)(nil)

// New creates a Proxy. owner is resolved on store for every request, so
// the store may be installed, replaced or destroyed at any time.
func New(owner WeakHandle, client, store thread.TaskRunner, opts ...Option) *Proxy {
	cfg := newConfig(opts)
	p := &Proxy{}
	p.surface = surface{
		kind: "Proxy",
		core: newCore(client, store, owner, cfg),
	}
	p.surface.self = weakptr.NewFactory(&p.surface)
	return p
}

// Close invalidates the Proxy's weak self references: callbacks of
// requests still in flight will not run. The requests themselves still
// reach the store. Safe to call more than once.
func (p *Proxy) Close() {
	thread.AssertCurrent(p.core.client, "Proxy.Close")
	if p.closed {
		return
	}
	p.closed = true
	p.self.InvalidateWeakPtrs()
}

// UIProxy is a cookiestore.Store for a client thread that holds a direct
// reference to a store living on another thread, typically the UI side of
// a browser context talking to its store thread.
//
// The reference is guarded and can be detached. Callbacks are never
// dropped: requests that find the store detached get the default result.
type UIProxy struct {
	surface
	guarded *guardedStore
}

var _ cookiestore.Store = (*UIProxy)(nil)

// NewUIProxy creates a UIProxy for s, which lives on io and is used from ui.
func NewUIProxy(s cookiestore.Store, ui, io thread.TaskRunner, opts ...Option) *UIProxy {
	cfg := newConfig(opts)
	g := &guardedStore{runner: io, store: s}
	return &UIProxy{
		surface: surface{
			kind: "UIProxy",
			core: newCore(ui, io, g, cfg),
		},
		guarded: g,
	}
}

// Detach drops the store reference. Every request that reaches the store
// thread from now on, including ones already queued, sees no store.
// Must be called on the client thread. Idempotent.
func (p *UIProxy) Detach() {
	thread.AssertCurrent(p.core.client, "UIProxy.Detach")
	p.guarded.detach()
}

// Revoke drops the store reference like Detach, from the store thread.
// The owner of the store calls it when the store is about to go away, so
// requests still queued behind it get the default result. Idempotent.
func (p *UIProxy) Revoke() {
	thread.AssertCurrent(p.core.store, "UIProxy.Revoke")
	p.guarded.detach()
}

// Close detaches the store and retires the UIProxy. Safe to call more
// than once.
func (p *UIProxy) Close() {
	thread.AssertCurrent(p.core.client, "UIProxy.Close")
	if p.closed {
		return
	}
	p.closed = true
	p.guarded.detach()
}
