package storeproxy

import (
	"io"
	"log/slog"

	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/thread"
	"github.com/roach88/cookieproxy/internal/weakptr"
)

// Owner holds the one real store and decides when it comes and goes.
// Except for WeakHandle, every method must be called on the store thread.
type Owner struct {
	runner thread.TaskRunner
	logger *slog.Logger
	weak   *weakptr.Factory[Owner]

	store     cookiestore.Store
	destroyed bool
}

// NewOwner creates an empty Owner for the store living on storeThread.
// The store itself is usually installed later with SetStore.
func NewOwner(storeThread thread.TaskRunner, opts ...Option) *Owner {
	cfg := newConfig(opts)
	o := &Owner{
		runner: storeThread,
		logger: cfg.logger,
	}
	o.weak = weakptr.NewFactory(o)
	return o
}

// SetStore installs s, replacing and releasing the previous store.
// A nil s just releases it. Released stores are closed if they implement
// io.Closer.
func (o *Owner) SetStore(s cookiestore.Store) {
	thread.AssertCurrent(o.runner, "Owner.SetStore")
	if o.destroyed {
		panic("storeproxy: Owner.SetStore called after Destroy")
	}
	old := o.store
	o.store = s
	if old != nil && old != s {
		o.release(old)
	}
}

// Store returns the current store, or nil.
func (o *Owner) Store() cookiestore.Store {
	thread.AssertCurrent(o.runner, "Owner.Store")
	return o.store
}

// WeakHandle returns a handle that may be copied to any goroutine.
func (o *Owner) WeakHandle() WeakHandle {
	return WeakHandle{ptr: o.weak.GetWeakPtr(), runner: o.runner}
}

// Destroy invalidates every WeakHandle and releases the store.
// Safe to call more than once.
func (o *Owner) Destroy() {
	thread.AssertCurrent(o.runner, "Owner.Destroy")
	if o.destroyed {
		return
	}
	o.destroyed = true
	o.weak.InvalidateWeakPtrs()
	if o.store != nil {
		o.release(o.store)
		o.store = nil
	}
}

func (o *Owner) release(s cookiestore.Store) {
	c, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		o.logger.Error("close cookie store", "error", err)
	}
}

// WeakHandle is a revocable reference to an Owner's store. The zero value
// never resolves.
type WeakHandle struct {
	ptr    weakptr.Ptr[Owner]
	runner thread.TaskRunner
}

// Resolve returns the owner's current store, or nil if there is none or
// the owner has been destroyed. Must be called on the store thread.
func (h WeakHandle) Resolve() cookiestore.Store {
	if h.runner == nil {
		return nil
	}
	thread.AssertCurrent(h.runner, "WeakHandle.Resolve")
	o := h.ptr.Get()
	if o == nil {
		return nil
	}
	return o.store
}

func (h WeakHandle) resolve() cookiestore.Store {
	return h.Resolve()
}
