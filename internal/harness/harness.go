package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/storeproxy"
	"github.com/roach88/cookieproxy/internal/testutil"
	"github.com/roach88/cookieproxy/internal/thread"
)

// drainRounds is how many store-then-client hops a wait step makes. The
// longest path, a Monster callback relayed by a proxy, needs three.
const drainRounds = 4

// Option configures Run.
type Option func(*runner)

// WithLogger routes the threads', proxy's and store's logs to logger.
// By default they are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

// proxy is what both storeproxy variants offer the client thread.
type proxy interface {
	cookiestore.Store
	Pending() int
	Close()
}

type runner struct {
	scenario *Scenario
	logger   *slog.Logger
	result   *Result

	client *thread.Thread
	store  *thread.Thread
	owner  *storeproxy.Owner
	calls  *countingStore
	proxy  proxy

	gate         chan []func() // non-nil while the store thread is blocked
	afterUnblock []func()      // handed to the store thread on unblock
}

// Run executes scenario against fresh threads and returns the trace with
// assertion results. The error is for runs that could not be carried out,
// not for failed assertions.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		scenario: scenario,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx := context.Background()
	r.client = thread.New("client", thread.WithLogger(r.logger))
	r.store = thread.New("store", thread.WithLogger(r.logger))
	r.client.Start(ctx)
	r.store.Start(ctx)
	defer func() {
		if r.gate != nil {
			close(r.gate)
		}
		if r.owner != nil {
			r.store.PostTask(r.owner.Destroy)
		}
		r.client.Stop()
		r.store.Stop()
	}()

	if err := r.setup(ctx); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := r.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	if r.gate != nil {
		r.unblock()
	}
	if err := r.drain(ctx); err != nil {
		return nil, fmt.Errorf("final drain: %w", err)
	}

	r.result.Pending = r.proxy.Pending()
	if r.calls != nil {
		r.result.StoreCalls = r.calls.calls.Load()
	}

	for _, msg := range EvaluateAssertions(r.result, scenario.Assertions) {
		r.result.AddError(msg)
	}
	r.logger.Info("scenario finished",
		"scenario", scenario.Name, "delivered", len(r.result.Trace), "pass", r.result.Pass)
	return r.result, nil
}

func (r *runner) setup(ctx context.Context) error {
	r.owner = storeproxy.NewOwner(r.store, storeproxy.WithLogger(r.logger))

	var s cookiestore.Store
	if r.scenario.Store == StoreMemory {
		err := r.store.PostTaskAndWait(ctx, func() {
			r.calls = &countingStore{Store: cookiestore.NewMonster(r.store,
				cookiestore.WithClock(testutil.NewDeterministicClock()),
				cookiestore.WithLogger(r.logger))}
			r.owner.SetStore(r.calls)
		})
		if err != nil {
			return fmt.Errorf("install store: %w", err)
		}
		s = r.calls
	}

	ids := storeproxy.WithRequestIDGenerator(testutil.NewSequentialIDs("req"))
	return r.client.PostTaskAndWait(ctx, func() {
		switch r.scenario.Variant {
		case VariantGuarded:
			r.proxy = storeproxy.NewUIProxy(s, r.client, r.store, storeproxy.WithLogger(r.logger), ids)
		default:
			r.proxy = storeproxy.New(r.owner.WeakHandle(), r.client, r.store, storeproxy.WithLogger(r.logger), ids)
		}
	})
}

func (r *runner) execute(ctx context.Context, step Step) error {
	switch step.Op {
	case OpBlockStore:
		r.block()
		return nil
	case OpUnblockStore:
		r.unblock()
		return nil
	case OpWait:
		return r.drain(ctx)
	case OpDestroyOwner:
		if r.gate != nil {
			r.afterUnblock = append(r.afterUnblock, r.owner.Destroy)
			return nil
		}
		return r.store.PostTaskAndWait(ctx, r.owner.Destroy)
	}

	var issueErr error
	err := r.client.PostTaskAndWait(ctx, func() {
		issueErr = r.issue(step)
	})
	if err != nil {
		return err
	}
	return issueErr
}

// issue runs on the client thread.
func (r *runner) issue(step Step) error {
	switch step.Op {
	case OpSet:
		d, err := step.details()
		if err != nil {
			return err
		}
		if step.Repeat == 0 {
			r.set(step.Label, d)
			return nil
		}
		name := d.Name
		for i := 0; i < step.Repeat; i++ {
			d.Name = fmt.Sprintf("%s-%03d", name, i)
			r.set(fmt.Sprintf("%s-%03d", step.Label, i), d)
		}

	case OpGetAll:
		r.proxy.GetAllCookiesAsync(func(l cookie.List) {
			r.result.addTrace(step.Label, step.Op, map[string]any{"cookies": canonicalCookies(l)})
		})

	case OpGetList:
		u, err := parseURL(step.URL)
		if err != nil {
			return err
		}
		r.proxy.GetCookieListWithOptionsAsync(u, cookie.Options{IncludeHTTPOnly: step.HTTPOnly}, func(l cookie.List) {
			r.result.addTrace(step.Label, step.Op, map[string]any{"cookies": canonicalCookies(l)})
		})

	case OpGetLine:
		u, err := parseURL(step.URL)
		if err != nil {
			return err
		}
		r.proxy.GetCookiesWithOptionsAsync(u, cookie.Options{IncludeHTTPOnly: step.HTTPOnly}, func(line string) {
			r.result.addTrace(step.Label, step.Op, map[string]any{"line": line})
		})

	case OpDeleteBetween:
		begin, end, err := step.bounds()
		if err != nil {
			return err
		}
		r.proxy.DeleteAllCreatedBetweenAsync(begin, end, func(n int) {
			r.result.addTrace(step.Label, step.Op, map[string]any{"deleted": n})
		})

	case OpFlush:
		r.proxy.FlushStore(func() {
			r.result.addTrace(step.Label, step.Op, map[string]any{})
		})

	case OpCloseProxy:
		r.proxy.Close()

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func (r *runner) set(label string, d cookie.Details) {
	r.proxy.SetCookieWithDetailsAsync(d, func(ok bool) {
		r.result.addTrace(label, OpSet, map[string]any{"ok": ok})
	})
}

// block parks the store thread until unblock.
func (r *runner) block() {
	gate := make(chan []func())
	running := make(chan struct{})
	r.gate = gate
	r.store.PostTask(func() {
		close(running)
		for _, fn := range <-gate {
			fn()
		}
	})
	<-running
}

func (r *runner) unblock() {
	r.gate <- r.afterUnblock
	r.afterUnblock = nil
	r.gate = nil
}

// drain lets every request in flight finish its hops. A store that never
// calls back leaves its requests pending.
func (r *runner) drain(ctx context.Context) error {
	for i := 0; i < drainRounds; i++ {
		if err := r.store.PostTaskAndWait(ctx, func() {}); err != nil {
			return err
		}
		if err := r.client.PostTaskAndWait(ctx, func() {}); err != nil {
			return err
		}
	}
	return nil
}

func parseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	return u, nil
}

// canonicalCookies converts l for the trace.
func canonicalCookies(l cookie.List) []any {
	out := make([]any, len(l))
	for i, c := range l {
		m := map[string]any{
			"name":     c.Name,
			"value":    c.Value,
			"domain":   c.Domain,
			"path":     c.Path,
			"creation": c.CreationDate.UTC().Format(time.RFC3339),
			"secure":   c.Secure,
			"httponly": c.HTTPOnly,
			"samesite": c.SameSite.String(),
			"priority": c.Priority.String(),
		}
		if c.IsPersistent() {
			m["expires"] = c.ExpiryDate.UTC().Format(time.RFC3339)
		}
		out[i] = m
	}
	return out
}

// countingStore counts the forwarded operations that reach the store.
type countingStore struct {
	cookiestore.Store
	calls atomic.Int64
}

func (c *countingStore) SetCookieWithDetailsAsync(d cookie.Details, cb cookiestore.SetCookiesCallback) {
	c.calls.Add(1)
	c.Store.SetCookieWithDetailsAsync(d, cb)
}

func (c *countingStore) GetCookiesWithOptionsAsync(u *url.URL, opts cookie.Options, cb cookiestore.GetCookiesCallback) {
	c.calls.Add(1)
	c.Store.GetCookiesWithOptionsAsync(u, opts, cb)
}

func (c *countingStore) GetCookieListWithOptionsAsync(u *url.URL, opts cookie.Options, cb cookiestore.GetCookieListCallback) {
	c.calls.Add(1)
	c.Store.GetCookieListWithOptionsAsync(u, opts, cb)
}

func (c *countingStore) GetAllCookiesAsync(cb cookiestore.GetCookieListCallback) {
	c.calls.Add(1)
	c.Store.GetAllCookiesAsync(cb)
}

func (c *countingStore) DeleteAllCreatedBetweenAsync(begin, end time.Time, cb cookiestore.DeleteCallback) {
	c.calls.Add(1)
	c.Store.DeleteAllCreatedBetweenAsync(begin, end, cb)
}

func (c *countingStore) FlushStore(cb func()) {
	c.calls.Add(1)
	c.Store.FlushStore(cb)
}

func (c *countingStore) Close() error {
	if closer, ok := c.Store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
