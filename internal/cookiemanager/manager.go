// Package cookiemanager is the application-facing cookie API of a browser
// context. Each call returns a request ID at once; the result is reported
// later to a Listener, on the client thread, tagged with that ID.
package cookiemanager

import (
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/thread"
	"github.com/roach88/cookieproxy/internal/weakptr"
)

// InvalidRequestID is returned when a request could not be issued.
const InvalidRequestID = -1

// Listener receives the results of a Manager's requests.
type Listener interface {
	// CookiesSet reports a SetCookies request. failed lists the cookies the
	// store rejected, in no particular order.
	CookiesSet(id int, failed []cookie.Details)
	// GotCookies reports a GetCookies or GetAllCookies request.
	GotCookies(id int, list cookie.List)
	// CookiesDeleted reports a DeleteAllCookies request.
	CookiesDeleted(id int, n int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager issues cookie requests against a store on behalf of the
// application. All methods must be called on the client thread.
type Manager struct {
	client   thread.TaskRunner
	store    cookiestore.Store
	listener Listener
	logger   *slog.Logger
	weak     *weakptr.Factory[Manager]

	nextID int
	// issuing is set while a request is being issued, so a store that calls
	// back synchronously cannot report a result before its ID is returned.
	issuing bool
	closed  bool
}

// New creates a Manager. store is normally a storeproxy.Proxy bound to
// client; with a nil store every request returns InvalidRequestID.
func New(client thread.TaskRunner, store cookiestore.Store, l Listener, opts ...Option) *Manager {
	m := &Manager{
		client:   client,
		store:    store,
		listener: l,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.weak = weakptr.NewFactory(m)
	return m
}

func (m *Manager) enter(method string) bool {
	thread.AssertCurrent(m.client, "Manager."+method)
	return !m.closed && m.store != nil
}

func (m *Manager) newID() int {
	id := m.nextID
	if m.nextID == math.MaxInt32 {
		m.nextID = 0
	} else {
		m.nextID++
	}
	return id
}

// report runs fn now, or on the next client-thread turn if a request is
// still being issued. wp must be taken when the request is issued: Close
// invalidates it, and fn is then dropped.
func (m *Manager) report(wp weakptr.Ptr[Manager], fn func(m *Manager)) {
	run := func() {
		mm := wp.Get()
		if mm == nil || mm.closed {
			return
		}
		fn(mm)
	}
	if !m.issuing {
		run()
		return
	}
	if !m.client.PostTask(run) {
		m.logger.Debug("client thread stopped, dropping cookie result")
	}
}

type setBatch struct {
	id        int
	remaining int
	failed    []cookie.Details
}

// SetCookies stores cookies for u, each with the store's set-with-details
// operation. A cookie without a URL gets u. Cookies without a name fail
// without reaching the store. Returns InvalidRequestID for an empty list.
func (m *Manager) SetCookies(u *url.URL, cookies []cookie.Details) int {
	if !m.enter("SetCookies") || len(cookies) == 0 {
		return InvalidRequestID
	}

	id := m.newID()
	wp := m.weak.GetWeakPtr()
	m.issuing = true
	defer func() { m.issuing = false }()

	b := &setBatch{id: id}
	for _, d := range cookies {
		if d.Name == "" {
			b.failed = append(b.failed, d)
			continue
		}
		if d.URL == nil {
			d.URL = u
		}
		b.remaining++

		m.store.SetCookieWithDetailsAsync(d, func(ok bool) {
			if !ok {
				b.failed = append(b.failed, d)
			}
			b.remaining--
			if b.remaining == 0 {
				m.report(wp, func(m *Manager) { m.deliverSet(b) })
			}
		})
	}

	if b.remaining == 0 {
		// Nothing reached the store; still answer asynchronously.
		m.client.PostTask(func() {
			if mm := wp.Get(); mm != nil && !mm.closed {
				mm.deliverSet(b)
			}
		})
	}
	return id
}

func (m *Manager) deliverSet(b *setBatch) {
	m.logger.Debug("cookies set", "request", b.id, "failed", len(b.failed))
	m.listener.CookiesSet(b.id, b.failed)
}

// GetCookies fetches the cookies that would be sent to u, HttpOnly ones
// included.
func (m *Manager) GetCookies(u *url.URL) int {
	if !m.enter("GetCookies") {
		return InvalidRequestID
	}
	id := m.newID()
	m.issuing = true
	defer func() { m.issuing = false }()

	m.store.GetCookieListWithOptionsAsync(u, cookie.Options{IncludeHTTPOnly: true}, m.gotCookies(id, m.weak.GetWeakPtr()))
	return id
}

// GetAllCookies fetches every cookie in the store.
func (m *Manager) GetAllCookies() int {
	if !m.enter("GetAllCookies") {
		return InvalidRequestID
	}
	id := m.newID()
	m.issuing = true
	defer func() { m.issuing = false }()

	m.store.GetAllCookiesAsync(m.gotCookies(id, m.weak.GetWeakPtr()))
	return id
}

func (m *Manager) gotCookies(id int, wp weakptr.Ptr[Manager]) cookiestore.GetCookieListCallback {
	return func(list cookie.List) {
		m.report(wp, func(m *Manager) {
			m.logger.Debug("cookies retrieved", "request", id, "count", len(list))
			m.listener.GotCookies(id, list)
		})
	}
}

// DeleteAllCookies deletes every cookie in the store.
func (m *Manager) DeleteAllCookies() int {
	if !m.enter("DeleteAllCookies") {
		return InvalidRequestID
	}
	id := m.newID()
	wp := m.weak.GetWeakPtr()
	m.issuing = true
	defer func() { m.issuing = false }()

	m.store.DeleteAllCreatedBetweenAsync(time.Time{}, time.Time{}, func(n int) {
		m.report(wp, func(m *Manager) {
			m.logger.Debug("cookies deleted", "request", id, "count", n)
			m.listener.CookiesDeleted(id, n)
		})
	})
	return id
}

// Close stops result delivery. Requests still in flight complete in the
// store but are not reported. Safe to call more than once.
func (m *Manager) Close() {
	thread.AssertCurrent(m.client, "Manager.Close")
	if m.closed {
		return
	}
	m.closed = true
	m.weak.InvalidateWeakPtrs()
}
