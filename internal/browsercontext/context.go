package browsercontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/store"
	"github.com/roach88/cookieproxy/internal/storeproxy"
	"github.com/roach88/cookieproxy/internal/thread"
)

// CookiesFilename is the name of the cookie database inside a context's
// data directory.
const CookiesFilename = "cookies.sqlite"

var (
	// ErrNoStore is returned when a context has no cookie store to offer,
	// because initialization failed or the context was closed.
	ErrNoStore = errors.New("browser context has no cookie store")
	// ErrUnknownSessionCookieMode is returned for an unrecognized mode name.
	ErrUnknownSessionCookieMode = errors.New("unknown session cookie mode")
)

// SessionCookieMode decides what happens to cookies without an expiry date.
type SessionCookieMode int

const (
	// SessionCookiesEphemeral keeps session cookies in memory only.
	SessionCookiesEphemeral SessionCookieMode = iota
	// SessionCookiesPersistent writes session cookies to disk but does not
	// restore them on the next start.
	SessionCookiesPersistent
	// SessionCookiesRestored writes session cookies to disk and restores
	// them on the next start.
	SessionCookiesRestored
)

var sessionCookieModeNames = [...]string{"ephemeral", "persistent", "restored"}

func (m SessionCookieMode) String() string {
	if m < 0 || int(m) >= len(sessionCookieModeNames) {
		return fmt.Sprintf("SessionCookieMode(%d)", int(m))
	}
	return sessionCookieModeNames[m]
}

// ParseSessionCookieMode parses the names printed by String.
func ParseSessionCookieMode(s string) (SessionCookieMode, error) {
	for i, name := range sessionCookieModeNames {
		if s == name {
			return SessionCookieMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSessionCookieMode, s)
}

// Params describes a Context.
type Params struct {
	// Path is the data directory, created if missing. Empty means nothing
	// touches the disk.
	Path string
	// Driver is the SQLite driver name, store.DriverCgo if empty.
	Driver            string
	SessionCookieMode SessionCookieMode
	// StoreThreadName names the store thread, "store" if empty.
	StoreThreadName string
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger for the context and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// WithClock replaces the wall clock of the context's Monster.
func WithClock(clock cookiestore.Clock) Option {
	return func(c *Context) { c.clock = clock }
}

// Context owns the cookie store of one browsing profile.
type Context struct {
	params Params
	logger *slog.Logger
	clock  cookiestore.Clock

	storeThread *thread.Thread
	owner       *storeproxy.Owner

	ready   chan struct{}
	initErr error // written before ready is closed
	initWG  sync.WaitGroup

	closing   bool                  // store thread only
	handedOut []*storeproxy.UIProxy // store thread only
	closeOnce sync.Once
}

// New starts the store thread and begins building the store. It returns
// before the store is ready; see Ready and Wait.
func New(ctx context.Context, p Params, opts ...Option) *Context {
	if p.StoreThreadName == "" {
		p.StoreThreadName = "store"
	}
	if p.Driver == "" {
		p.Driver = store.DriverCgo
	}

	c := &Context{
		params: p,
		logger: slog.Default(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.storeThread = thread.New(p.StoreThreadName, thread.WithLogger(c.logger))
	c.storeThread.Start(ctx)
	c.owner = storeproxy.NewOwner(c.storeThread, storeproxy.WithLogger(c.logger))

	if p.Path == "" {
		c.storeThread.PostTask(func() {
			c.install(nil, nil)
		})
		return c
	}

	c.initWG.Add(1)
	go func() {
		defer c.initWG.Done()
		c.initPersistent(ctx)
	}()
	return c
}

func (c *Context) initPersistent(ctx context.Context) {
	path := filepath.Join(c.params.Path, CookiesFilename)
	restore := c.params.SessionCookieMode == SessionCookiesRestored

	if err := os.MkdirAll(c.params.Path, 0o755); err != nil {
		c.fail(fmt.Errorf("create data directory: %w", err))
		return
	}

	db, err := store.Open(path,
		store.WithDriver(c.params.Driver),
		store.WithLogger(c.logger),
		store.WithRestoreOldSessionCookies(restore))
	if err != nil {
		c.fail(fmt.Errorf("open cookie database: %w", err))
		return
	}

	loaded, err := db.Load(ctx)
	if err != nil {
		db.Close()
		c.fail(fmt.Errorf("load cookies: %w", err))
		return
	}

	if !c.storeThread.PostTask(func() { c.install(db, loaded) }) {
		db.Close()
		c.fail(ErrNoStore)
	}
}

// install runs on the store thread.
func (c *Context) install(db *store.Store, loaded cookie.List) {
	defer close(c.ready)

	if c.closing {
		if db != nil {
			db.Close()
		}
		c.initErr = ErrNoStore
		return
	}

	opts := []cookiestore.Option{cookiestore.WithLogger(c.logger)}
	if c.clock != nil {
		opts = append(opts, cookiestore.WithClock(c.clock))
	}
	if db != nil {
		opts = append(opts,
			cookiestore.WithPersistentStore(db),
			cookiestore.WithLoadedCookies(loaded),
			cookiestore.WithPersistSessionCookies(c.params.SessionCookieMode != SessionCookiesEphemeral))
		if c.params.SessionCookieMode == SessionCookiesRestored {
			db.SetForceKeepSessionState()
		}
	}

	c.owner.SetStore(cookiestore.NewMonster(c.storeThread, opts...))
	c.logger.Info("cookie store ready",
		"path", c.params.Path, "session_cookies", c.params.SessionCookieMode.String(), "loaded", len(loaded))
}

// shutdown runs on the store thread. It may run more than once.
func (c *Context) shutdown() {
	c.closing = true
	for _, p := range c.handedOut {
		p.Revoke()
	}
	c.handedOut = nil
	c.owner.Destroy()
}

func (c *Context) fail(err error) {
	c.logger.Error("cookie store initialization failed", "error", err)
	c.initErr = err
	close(c.ready)
}

// Ready is closed once initialization has finished, successfully or not.
func (c *Context) Ready() <-chan struct{} {
	return c.ready
}

// Wait blocks until initialization has finished and returns its error.
func (c *Context) Wait(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StoreThread returns the thread the cookie store lives on.
func (c *Context) StoreThread() thread.TaskRunner {
	return c.storeThread
}

// CookieStore returns a Proxy for use on client. It can be created before
// the store is ready and stays usable after Close, answering with defaults.
func (c *Context) CookieStore(client thread.TaskRunner, opts ...storeproxy.Option) *storeproxy.Proxy {
	opts = append([]storeproxy.Option{storeproxy.WithLogger(c.logger)}, opts...)
	return storeproxy.New(c.owner.WeakHandle(), client, c.storeThread, opts...)
}

// UICookieStore waits for the store and returns a UIProxy holding it
// directly, for use on ui. Close revokes every UIProxy handed out, so
// requests that reach the store thread afterwards get default results.
func (c *Context) UICookieStore(ctx context.Context, ui thread.TaskRunner, opts ...storeproxy.Option) (*storeproxy.UIProxy, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}

	opts = append([]storeproxy.Option{storeproxy.WithLogger(c.logger)}, opts...)

	var p *storeproxy.UIProxy
	if err := c.storeThread.PostTaskAndWait(ctx, func() {
		s := c.owner.Store()
		if s == nil || c.closing {
			return
		}
		p = storeproxy.NewUIProxy(s, ui, c.storeThread, opts...)
		c.handedOut = append(c.handedOut, p)
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStore, err)
	}
	if p == nil {
		return nil, ErrNoStore
	}
	return p, nil
}

// Close revokes outstanding UIProxies and destroys the store on the store
// thread, which flushes and closes the cookie database, then stops the
// thread. Proxies stay valid but no longer reach a store. Safe to call more
// than once.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.storeThread.PostTask(c.shutdown)
		c.storeThread.Stop()
		c.initWG.Wait()
		c.logger.Info("browser context closed", "path", c.params.Path)
	})
}
