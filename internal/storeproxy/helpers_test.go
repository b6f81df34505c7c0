package storeproxy

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/testutil"
	"github.com/roach88/cookieproxy/internal/thread"
)

const waitTimeout = 5 * time.Second

// env is a client thread and a store thread with an Owner on the latter.
type env struct {
	client *thread.Thread
	store  *thread.Thread
	owner  *Owner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		client: thread.New("client"),
		store:  thread.New("store"),
	}
	e.client.Start(context.Background())
	e.store.Start(context.Background())
	t.Cleanup(func() {
		e.client.Stop()
		e.store.Stop()
	})
	e.owner = NewOwner(e.store)
	return e
}

func (e *env) onClient(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, e.client.PostTaskAndWait(context.Background(), fn))
}

func (e *env) onStore(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, e.store.PostTaskAndWait(context.Background(), fn))
}

// drain lets every request already in flight finish its hops.
func (e *env) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 3; i++ {
		e.onStore(t, func() {})
		e.onClient(t, func() {})
	}
}

// blockStore parks the store thread until the returned release function is
// called. then, if non-nil, runs on the store thread right after release.
func (e *env) blockStore(t *testing.T, then func()) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	running := make(chan struct{})
	require.True(t, e.store.PostTask(func() {
		close(running)
		<-gate
		if then != nil {
			then()
		}
	}))
	<-running
	return func() { close(gate) }
}

// installMonster puts an ephemeral Monster in the owner and returns it
// wrapped in a countingStore.
func (e *env) installMonster(t *testing.T) *countingStore {
	t.Helper()
	cs := &countingStore{}
	e.onStore(t, func() {
		cs.Store = cookiestore.NewMonster(e.store, cookiestore.WithClock(testutil.NewDeterministicClock()))
		e.owner.SetStore(cs)
	})
	return cs
}

func (e *env) newProxy(t *testing.T) *Proxy {
	t.Helper()
	var p *Proxy
	e.onClient(t, func() {
		p = New(e.owner.WeakHandle(), e.client, e.store, WithRequestIDGenerator(testutil.NewSequentialIDs("req")))
	})
	return p
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func testDetails(t *testing.T, name, value string) cookie.Details {
	t.Helper()
	return cookie.Details{
		URL:      mustURL(t, "https://example.com/"),
		Name:     name,
		Value:    value,
		Priority: cookie.PriorityDefault,
	}
}

// countingStore wraps a real store, counts the calls that reach it and
// can misbehave on request.
type countingStore struct {
	cookiestore.Store

	calls      atomic.Int64
	replyTwice bool
	closed     atomic.Bool
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
	if c.replyTwice {
		c.Store.GetAllCookiesAsync(func(l cookie.List) {
			cb(l)
			cb(l)
		})
		return
	}
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
	c.closed.Store(true)
	if closer, ok := c.Store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
