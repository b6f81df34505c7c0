package storeproxy

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiestore"
)

func TestProxy_AbsentStoreDeliversDefaults(t *testing.T) {
	e := newEnv(t)
	p := e.newProxy(t)

	type result struct {
		value    any
		onClient bool
	}
	results := make(chan result, 6)
	report := func(v any) { results <- result{value: v, onClient: e.client.RunsTasksOnCurrentThread()} }

	e.onClient(t, func() {
		p.GetAllCookiesAsync(func(l cookie.List) { report(l) })
		p.SetCookieWithDetailsAsync(testDetails(t, "foo", "bar"), func(ok bool) { report(ok) })
		p.GetCookiesWithOptionsAsync(mustURL(t, "https://example.com/"), cookie.Options{}, func(s string) { report(s) })
		p.GetCookieListWithOptionsAsync(mustURL(t, "https://example.com/"), cookie.Options{}, func(l cookie.List) { report(l) })
		p.DeleteAllCreatedBetweenAsync(time.Time{}, time.Time{}, func(n int) { report(n) })
		p.FlushStore(func() { report("flushed") })
	})

	want := []any{cookie.List{}, false, "", cookie.List{}, 0, "flushed"}
	for i, w := range want {
		select {
		case r := <-results:
			assert.True(t, r.onClient, "result %d delivered off the client thread", i)
			assert.Equal(t, w, r.value, "result %d", i)
		case <-time.After(waitTimeout):
			t.Fatalf("result %d never delivered", i)
		}
	}
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, waitTimeout, time.Millisecond)
}

func TestProxy_RoundTrip(t *testing.T) {
	e := newEnv(t)
	e.installMonster(t)
	p := e.newProxy(t)

	creation := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	d := cookie.Details{
		URL:          mustURL(t, "https://www.google.com/"),
		Name:         "foo",
		Value:        "bar",
		Path:         "/",
		CreationTime: creation,
		Secure:       true,
		HTTPOnly:     true,
		SameSite:     cookie.SameSiteStrict,
		Priority:     cookie.PriorityHigh,
	}

	setDone := make(chan bool, 1)
	e.onClient(t, func() {
		p.SetCookieWithDetailsAsync(d, func(ok bool) { setDone <- ok })
	})
	select {
	case ok := <-setDone:
		require.True(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("set never completed")
	}

	got := make(chan cookie.List, 1)
	e.onClient(t, func() {
		p.GetAllCookiesAsync(func(l cookie.List) { got <- l })
	})

	var list cookie.List
	select {
	case list = <-got:
	case <-time.After(waitTimeout):
		t.Fatal("get all never completed")
	}

	require.Len(t, list, 1)
	c := list[0]
	assert.Equal(t, "foo", c.Name)
	assert.Equal(t, "bar", c.Value)
	assert.Equal(t, "www.google.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, creation, c.CreationDate)
	assert.Equal(t, creation, c.LastAccessDate)
	assert.True(t, c.ExpiryDate.IsZero())
	assert.True(t, c.Secure)
	assert.True(t, c.HTTPOnly)
	assert.Equal(t, cookie.SameSiteStrict, c.SameSite)
	assert.Equal(t, cookie.PriorityHigh, c.Priority)
}

func TestProxy_CloseBeforeStoreRuns(t *testing.T) {
	e := newEnv(t)
	cs := e.installMonster(t)
	p := e.newProxy(t)

	var calls int
	release := e.blockStore(t, nil)
	e.onClient(t, func() {
		p.FlushStore(func() { calls++ })
		p.Close()
		p.Close()
	})
	release()
	e.drain(t)

	e.onClient(t, func() {
		assert.Equal(t, 0, calls, "callback ran after Close")
	})
	assert.Equal(t, int64(1), cs.calls.Load(), "the request itself still reaches the store")
	assert.Equal(t, 0, p.Pending())
}

func TestProxy_HundredConcurrentSets(t *testing.T) {
	e := newEnv(t)
	e.installMonster(t)
	p := e.newProxy(t)

	const n = 100
	var (
		mu     sync.Mutex
		counts = make(map[string]int)
		wg     sync.WaitGroup
	)
	wg.Add(n)
	e.onClient(t, func() {
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("cookie-%03d", i)
			p.SetCookieWithDetailsAsync(testDetails(t, name, "v"), func(ok bool) {
				assert.True(t, ok)
				mu.Lock()
				counts[name]++
				mu.Unlock()
				wg.Done()
			})
		}
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("not every set completed")
	}
	e.drain(t)

	mu.Lock()
	require.Len(t, counts, n)
	for name, c := range counts {
		assert.Equal(t, 1, c, "callback for %s", name)
	}
	mu.Unlock()

	got := make(chan cookie.List, 1)
	e.onClient(t, func() {
		p.GetAllCookiesAsync(func(l cookie.List) { got <- l })
	})
	select {
	case list := <-got:
		assert.Len(t, list, n)
	case <-time.After(waitTimeout):
		t.Fatal("get all never completed")
	}
}

func TestProxy_OwnerDestroyedWhileQueued(t *testing.T) {
	e := newEnv(t)
	cs := e.installMonster(t)
	p := e.newProxy(t)

	results := make(chan bool, 1)
	release := e.blockStore(t, e.owner.Destroy)
	e.onClient(t, func() {
		p.SetCookieWithDetailsAsync(testDetails(t, "foo", "bar"), func(ok bool) { results <- ok })
	})
	release()

	select {
	case ok := <-results:
		assert.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("result never delivered")
	}
	assert.Equal(t, int64(0), cs.calls.Load(), "destroyed store must not be touched")
	assert.True(t, cs.closed.Load(), "Destroy closes the store")
}

func TestProxy_StoreInstalledLater(t *testing.T) {
	e := newEnv(t)
	p := e.newProxy(t)

	first := make(chan bool, 1)
	e.onClient(t, func() {
		p.SetCookieWithDetailsAsync(testDetails(t, "early", "1"), func(ok bool) { first <- ok })
	})
	assert.False(t, <-first)

	e.installMonster(t)

	second := make(chan bool, 1)
	e.onClient(t, func() {
		p.SetCookieWithDetailsAsync(testDetails(t, "late", "1"), func(ok bool) { second <- ok })
	})
	select {
	case ok := <-second:
		assert.True(t, ok, "the handle is resolved per request, not cached")
	case <-time.After(waitTimeout):
		t.Fatal("result never delivered")
	}
}

func TestProxy_NilCallbacks(t *testing.T) {
	e := newEnv(t)
	cs := e.installMonster(t)
	p := e.newProxy(t)
	u := mustURL(t, "https://example.com/")

	e.onClient(t, func() {
		p.GetAllCookiesAsync(nil)
		p.GetCookiesWithOptionsAsync(u, cookie.Options{}, nil)
		p.GetCookieListWithOptionsAsync(u, cookie.Options{}, nil)
		assert.Equal(t, 0, p.Pending(), "reads without a callback are not forwarded")

		p.SetCookieWithDetailsAsync(testDetails(t, "foo", "bar"), nil)
		p.FlushStore(nil)
	})
	e.drain(t)

	assert.Equal(t, int64(2), cs.calls.Load())
	assert.Equal(t, 0, p.Pending())

	got := make(chan cookie.List, 1)
	e.onClient(t, func() {
		p.GetAllCookiesAsync(func(l cookie.List) { got <- l })
	})
	select {
	case list := <-got:
		require.Len(t, list, 1, "a set without a callback still happens")
		assert.Equal(t, "foo", list[0].Name)
	case <-time.After(waitTimeout):
		t.Fatal("get all never completed")
	}
}

func TestProxy_UnsupportedOperationsAnswerSynchronously(t *testing.T) {
	e := newEnv(t)
	cs := e.installMonster(t)
	p := e.newProxy(t)
	u := mustURL(t, "https://example.com/")

	e.onClient(t, func() {
		var got []any
		p.SetCookieWithOptionsAsync(u, "a=b", cookie.Options{}, func(ok bool) { got = append(got, ok) })
		p.DeleteCookieAsync(u, "a", func() { got = append(got, "deleted") })
		p.DeleteCanonicalCookieAsync(cookie.Canonical{Name: "a"}, func(n int) { got = append(got, n) })
		p.DeleteAllCreatedBetweenWithPredicateAsync(time.Time{}, time.Time{},
			func(*cookie.Canonical) bool { return true }, func(n int) { got = append(got, n) })
		p.DeleteSessionCookiesAsync(func(n int) { got = append(got, n) })
		assert.Equal(t, []any{false, "deleted", 0, 0, 0}, got)

		p.SetForceKeepSessionState()
		assert.Nil(t, p.AddCallbackForCookie(u, "a", func(cookiestore.Change) {}))
		assert.False(t, p.IsEphemeral())

		// nil callbacks are fine too
		p.SetCookieWithOptionsAsync(u, "a=b", cookie.Options{}, nil)
		p.DeleteCookieAsync(u, "a", nil)
		p.DeleteCanonicalCookieAsync(cookie.Canonical{}, nil)
		p.DeleteAllCreatedBetweenWithPredicateAsync(time.Time{}, time.Time{}, nil, nil)
		p.DeleteSessionCookiesAsync(nil)

		assert.Equal(t, 0, p.Pending())
	})
	e.drain(t)
	assert.Equal(t, int64(0), cs.calls.Load())
}

func TestProxy_StoreReplyingTwiceDeliversOnce(t *testing.T) {
	e := newEnv(t)
	cs := e.installMonster(t)
	cs.replyTwice = true
	p := e.newProxy(t)

	var calls int
	e.onClient(t, func() {
		p.GetAllCookiesAsync(func(cookie.List) { calls++ })
	})
	e.drain(t)

	e.onClient(t, func() {
		assert.Equal(t, 1, calls)
	})
	assert.Equal(t, 0, p.Pending())
}

func TestProxy_ThreadAffinity(t *testing.T) {
	e := newEnv(t)
	p := e.newProxy(t)

	assert.PanicsWithValue(t, `Proxy.GetAllCookiesAsync called off thread "client"`, func() {
		p.GetAllCookiesAsync(func(cookie.List) {})
	})
	assert.PanicsWithValue(t, `Proxy.SetCookieWithDetailsAsync called off thread "client"`, func() {
		p.SetCookieWithDetailsAsync(testDetails(t, "a", "b"), nil)
	})
	assert.PanicsWithValue(t, `Proxy.IsEphemeral called off thread "client"`, func() {
		p.IsEphemeral()
	})
	assert.PanicsWithValue(t, `Proxy.Close called off thread "client"`, func() {
		p.Close()
	})

	// The store thread is not the client thread either.
	var recovered any
	e.onStore(t, func() {
		defer func() { recovered = recover() }()
		p.FlushStore(nil)
	})
	assert.Equal(t, `Proxy.FlushStore called off thread "client"`, recovered)
	assert.Equal(t, 0, p.Pending())
}

func TestProxy_UseAfterClosePanics(t *testing.T) {
	e := newEnv(t)
	p := e.newProxy(t)

	var recovered any
	e.onClient(t, func() {
		p.Close()
		defer func() { recovered = recover() }()
		p.GetAllCookiesAsync(func(cookie.List) {})
	})
	assert.Equal(t, "storeproxy: Proxy.GetAllCookiesAsync called after Close", recovered)
}

func TestProxy_StoreThreadStopped(t *testing.T) {
	e := newEnv(t)
	p := e.newProxy(t)
	e.store.Stop()

	var calls int
	e.onClient(t, func() {
		p.FlushStore(func() { calls++ })
		assert.Equal(t, 0, p.Pending(), "a request that cannot be posted is discarded at once")
	})
	e.onClient(t, func() {
		assert.Equal(t, 0, calls)
	})
}

func TestProxy_ClientThreadStoppedBeforeReply(t *testing.T) {
	e := newEnv(t)
	e.installMonster(t)
	p := e.newProxy(t)

	release := e.blockStore(t, nil)
	e.onClient(t, func() {
		p.GetAllCookiesAsync(func(cookie.List) {
			t.Error("callback ran on a stopped client thread")
		})
	})
	e.client.Stop()
	release()

	assert.Eventually(t, func() bool { return p.Pending() == 0 }, waitTimeout, time.Millisecond)
}
