package browsercontext

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrDuplicateName is returned when registering a name twice.
	ErrDuplicateName = errors.New("browser context already registered")
	// ErrNotFound is returned for a name that is not registered.
	ErrNotFound = errors.New("browser context not found")
)

// Registry maps names to contexts and remembers the default one.
//
// The first context registered becomes the default until another is
// selected with SetDefault.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	contexts map[string]*Context
	order    []string
	def      string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Context)}
}

// Register adds c under name.
func (r *Registry) Register(name string, c *Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contexts[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.contexts[name] = c
	r.order = append(r.order, name)
	if r.def == "" {
		r.def = name
	}
	return nil
}

// Get returns the context registered under name.
func (r *Registry) Get(name string) (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c, nil
}

// Default returns the default context and its name, or nil and "" if the
// registry is empty.
func (r *Registry) Default() (*Context, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def == "" {
		return nil, ""
	}
	return r.contexts[r.def], r.def
}

// SetDefault makes the context registered under name the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	r.def = name
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Remove unregisters name and closes its context. Removing the default
// promotes the earliest remaining context.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	c, ok := r.contexts[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.contexts, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	if r.def == name {
		r.def = ""
		if len(r.order) > 0 {
			r.def = r.order[0]
		}
	}
	r.mu.Unlock()

	c.Close()
	return nil
}

// CloseAll closes every context, most recently registered first, and
// empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	contexts := make([]*Context, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		contexts = append(contexts, r.contexts[r.order[i]])
	}
	r.contexts = make(map[string]*Context)
	r.order = nil
	r.def = ""
	r.mu.Unlock()

	for _, c := range contexts {
		c.Close()
	}
}
