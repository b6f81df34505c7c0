package cookiestore

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/testutil"
	"github.com/roach88/cookieproxy/internal/thread"
)

// startStoreThread starts a thread that is stopped when the test ends.
func startStoreThread(t *testing.T) *thread.Thread {
	t.Helper()
	th := thread.New("store")
	th.Start(context.Background())
	t.Cleanup(th.Stop)
	return th
}

// onThread runs fn on th and then waits for every task fn queued, so the
// callbacks fn triggered have run when onThread returns.
func onThread(t *testing.T, th *thread.Thread, fn func()) {
	t.Helper()
	require.NoError(t, th.PostTaskAndWait(context.Background(), fn))
	require.NoError(t, th.PostTaskAndWait(context.Background(), func() {}))
}

func newTestMonster(t *testing.T, opts ...Option) (*thread.Thread, *Monster, *testutil.DeterministicClock) {
	t.Helper()
	th := startStoreThread(t)
	clock := testutil.NewDeterministicClock()
	m := NewMonster(th, append([]Option{WithClock(clock)}, opts...)...)
	return th, m, clock
}

func parseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func details(t *testing.T, rawURL, name, value string) cookie.Details {
	t.Helper()
	return cookie.Details{
		URL:      parseURL(t, rawURL),
		Name:     name,
		Value:    value,
		Priority: cookie.PriorityDefault,
	}
}

type persistOp struct {
	kind string
	name string
}

// recordingPersistentStore is an in-memory PersistentStore that records
// what the Monster asked of it.
type recordingPersistentStore struct {
	mu        sync.Mutex
	ops       []persistOp
	flushes   int
	forceKeep bool
	closed    bool
	flushGate chan struct{} // when set, Flush blocks until it is closed
}

func (r *recordingPersistentStore) Load(context.Context) (cookie.List, error) {
	return cookie.List{}, nil
}

func (r *recordingPersistentStore) record(kind string, c cookie.Canonical) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, persistOp{kind: kind, name: c.Name})
}

func (r *recordingPersistentStore) AddCookie(c cookie.Canonical)              { r.record("add", c) }
func (r *recordingPersistentStore) UpdateCookieAccessTime(c cookie.Canonical) { r.record("touch", c) }
func (r *recordingPersistentStore) DeleteCookie(c cookie.Canonical)           { r.record("delete", c) }

func (r *recordingPersistentStore) SetForceKeepSessionState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceKeep = true
}

func (r *recordingPersistentStore) Flush(ctx context.Context) error {
	if r.flushGate != nil {
		select {
		case <-r.flushGate:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recordingPersistentStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingPersistentStore) snapshot() []persistOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]persistOp(nil), r.ops...)
}
