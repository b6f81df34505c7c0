// Package weakptr provides revocable references to an object whose lifetime
// is ended explicitly rather than by the garbage collector.
//
// A Factory is embedded in (or held by) the referenced object. Pointers
// handed out by the factory share a validity flag; InvalidateWeakPtrs flips
// it permanently, so every Ptr obtained before that call resolves to nil
// from then on. Pointers obtained afterwards use a fresh flag.
//
// The flag is atomic, so a Ptr may be copied to and checked from any
// goroutine. Whether the object behind a valid Ptr may be *used* is a
// separate question: callers that need "valid and safe to use" must resolve
// the Ptr on the goroutine that also invalidates it.
package weakptr

import (
	"sync"
	"sync/atomic"
)

type flag struct {
	valid atomic.Bool
}

func newFlag() *flag {
	f := &flag{}
	f.valid.Store(true)
	return f
}

// Factory hands out weak pointers to a single target.
type Factory[T any] struct {
	mu     sync.Mutex
	target *T
	flag   *flag
}

// NewFactory creates a factory for target.
func NewFactory[T any](target *T) *Factory[T] {
	return &Factory[T]{target: target}
}

// GetWeakPtr returns a pointer that resolves to the target until the next
// InvalidateWeakPtrs call.
func (f *Factory[T]) GetWeakPtr() Ptr[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flag == nil {
		f.flag = newFlag()
	}
	return Ptr[T]{target: f.target, flag: f.flag}
}

// InvalidateWeakPtrs makes every outstanding Ptr resolve to nil, forever.
func (f *Factory[T]) InvalidateWeakPtrs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flag == nil {
		return
	}
	f.flag.valid.Store(false)
	f.flag = nil
}

// HasWeakPtrs reports whether pointers from the current generation exist.
func (f *Factory[T]) HasWeakPtrs() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flag != nil
}

// Ptr is a weak pointer. The zero value never resolves.
type Ptr[T any] struct {
	target *T
	flag   *flag
}

// Get returns the target, or nil once the pointer has been invalidated.
func (p Ptr[T]) Get() *T {
	if p.flag == nil || !p.flag.valid.Load() {
		return nil
	}
	return p.target
}

// IsValid reports whether Get would return the target.
func (p Ptr[T]) IsValid() bool {
	return p.Get() != nil
}
