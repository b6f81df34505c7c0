package cookiestore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/thread"
)

// accessUpdateThreshold bounds how often a read rewrites a cookie's last
// access time.
const accessUpdateThreshold = time.Minute

// Clock supplies the current time to a Monster.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Monster.
type Option func(*Monster)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monster) { m.logger = logger }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(m *Monster) { m.clock = c }
}

// WithPersistentStore makes the Monster write through to ps.
// Without it the Monster is ephemeral.
func WithPersistentStore(ps PersistentStore) Option {
	return func(m *Monster) { m.backing = ps }
}

// WithPersistSessionCookies also writes session cookies to the backing
// store. By default only cookies with an expiry date are persisted.
func WithPersistSessionCookies(persist bool) Option {
	return func(m *Monster) { m.persistSession = persist }
}

// WithChangeDelegate registers cb to hear about every change, synchronously,
// on the store thread.
func WithChangeDelegate(cb ChangedCallback) Option {
	return func(m *Monster) { m.delegate = cb }
}

// WithLoadedCookies seeds the Monster, typically with the result of
// PersistentStore.Load. Seeded cookies are not written back and raise no
// change notifications.
func WithLoadedCookies(list cookie.List) Option {
	return func(m *Monster) { m.loaded = list }
}

type entry struct {
	c   cookie.Canonical
	seq uint64 // insertion order, breaks ties deterministically
}

type subscription struct {
	m      *Monster
	u      *url.URL
	name   string
	cb     ChangedCallback
	active bool
}

func (s *subscription) Unsubscribe() {
	s.m.assertOnThread("Subscription.Unsubscribe")
	if !s.active {
		return
	}
	s.active = false
	s.m.subs = slices.DeleteFunc(s.m.subs, func(o *subscription) bool { return o == s })
}

func (s *subscription) matches(c *cookie.Canonical) bool {
	return c.Name == s.name && c.IncludeForURL(s.u, cookie.Options{IncludeHTTPOnly: true})
}

// Monster is an in-memory cookie store that lives on one thread.
//
// All fields are owned by the store thread; nothing here is locked.
type Monster struct {
	runner         thread.TaskRunner
	backing        PersistentStore
	clock          Clock
	logger         *slog.Logger
	persistSession bool
	delegate       ChangedCallback
	loaded         cookie.List

	entries map[cookie.Key]*entry
	nextSeq uint64
	subs    []*subscription
	closed  bool
}

var _ Store = (*Monster)(nil)

// NewMonster creates a Monster bound to runner. It may be constructed on any
// goroutine, but every method must then be called on runner.
func NewMonster(runner thread.TaskRunner, opts ...Option) *Monster {
	m := &Monster{
		runner:  runner,
		clock:   systemClock{},
		logger:  slog.Default(),
		entries: make(map[cookie.Key]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, c := range m.loaded {
		m.nextSeq++
		m.entries[c.Key()] = &entry{c: c, seq: m.nextSeq}
	}
	m.loaded = nil
	return m
}

func (m *Monster) assertOnThread(what string) {
	thread.AssertCurrent(m.runner, what)
}

// post runs fn later on the store thread unless the Monster has been closed
// by then.
func (m *Monster) post(fn func()) {
	ok := m.runner.PostTask(func() {
		if m.closed {
			m.logger.Debug("cookie store closed, dropping callback")
			return
		}
		fn()
	})
	if !ok {
		m.logger.Debug("cookie store thread stopped, dropping callback")
	}
}

func (m *Monster) SetCookieWithOptionsAsync(u *url.URL, line string, opts cookie.Options, cb SetCookiesCallback) {
	m.assertOnThread("Monster.SetCookieWithOptionsAsync")

	now := m.clock.Now()
	ok := false
	if d, err := detailsFromSetCookie(u, line, now); err != nil {
		m.logger.Debug("rejecting set-cookie line", "error", err)
	} else if c, err := cookie.FromDetails(d, now); err != nil {
		m.logger.Debug("rejecting cookie", "name", d.Name, "error", err)
	} else {
		ok = m.setCanonical(*c, opts, now)
	}

	if cb != nil {
		m.post(func() { cb(ok) })
	}
}

func (m *Monster) SetCookieWithDetailsAsync(d cookie.Details, cb SetCookiesCallback) {
	m.assertOnThread("Monster.SetCookieWithDetailsAsync")

	now := m.clock.Now()
	ok := false
	if c, err := cookie.FromDetails(d, now); err != nil {
		m.logger.Debug("rejecting cookie", "name", d.Name, "error", err)
	} else {
		ok = m.setCanonical(*c, cookie.Options{IncludeHTTPOnly: true}, now)
	}

	if cb != nil {
		m.post(func() { cb(ok) })
	}
}

func (m *Monster) GetCookiesWithOptionsAsync(u *url.URL, opts cookie.Options, cb GetCookiesCallback) {
	m.assertOnThread("Monster.GetCookiesWithOptionsAsync")

	line := cookie.Line(m.matching(u, opts))
	if cb != nil {
		m.post(func() { cb(line) })
	}
}

func (m *Monster) GetCookieListWithOptionsAsync(u *url.URL, opts cookie.Options, cb GetCookieListCallback) {
	m.assertOnThread("Monster.GetCookieListWithOptionsAsync")

	list := m.matching(u, opts)
	if cb != nil {
		m.post(func() { cb(list) })
	}
}

func (m *Monster) GetAllCookiesAsync(cb GetCookieListCallback) {
	m.assertOnThread("Monster.GetAllCookiesAsync")

	m.garbageCollect(m.clock.Now())
	list := cookie.List{}
	for _, e := range m.sorted() {
		list = append(list, e.c)
	}
	cookie.Sort(list)

	if cb != nil {
		m.post(func() { cb(list) })
	}
}

func (m *Monster) DeleteCookieAsync(u *url.URL, name string, cb func()) {
	m.assertOnThread("Monster.DeleteCookieAsync")

	m.garbageCollect(m.clock.Now())
	all := cookie.Options{IncludeHTTPOnly: true}
	for _, e := range m.sorted() {
		if e.c.Name == name && e.c.IncludeForURL(u, all) {
			m.remove(e, cookie.ChangeExplicit)
		}
	}

	if cb != nil {
		m.post(cb)
	}
}

func (m *Monster) DeleteCanonicalCookieAsync(c cookie.Canonical, cb DeleteCallback) {
	m.assertOnThread("Monster.DeleteCanonicalCookieAsync")

	n := 0
	if e, ok := m.entries[c.Key()]; ok && e.c.Value == c.Value {
		m.remove(e, cookie.ChangeExplicit)
		n = 1
	}

	if cb != nil {
		m.post(func() { cb(n) })
	}
}

func (m *Monster) DeleteAllCreatedBetweenAsync(begin, end time.Time, cb DeleteCallback) {
	m.assertOnThread("Monster.DeleteAllCreatedBetweenAsync")
	m.deleteMatching(func(c *cookie.Canonical) bool { return createdBetween(c, begin, end) }, cb)
}

func (m *Monster) DeleteAllCreatedBetweenWithPredicateAsync(begin, end time.Time, pred Predicate, cb DeleteCallback) {
	m.assertOnThread("Monster.DeleteAllCreatedBetweenWithPredicateAsync")
	m.deleteMatching(func(c *cookie.Canonical) bool {
		return createdBetween(c, begin, end) && (pred == nil || pred(c))
	}, cb)
}

func (m *Monster) DeleteSessionCookiesAsync(cb DeleteCallback) {
	m.assertOnThread("Monster.DeleteSessionCookiesAsync")
	m.deleteMatching(func(c *cookie.Canonical) bool { return !c.IsPersistent() }, cb)
}

func (m *Monster) deleteMatching(match func(c *cookie.Canonical) bool, cb DeleteCallback) {
	n := 0
	for _, e := range m.sorted() {
		if match(&e.c) {
			m.remove(e, cookie.ChangeExplicit)
			n++
		}
	}
	if cb != nil {
		m.post(func() { cb(n) })
	}
}

// FlushStore flushes the backing store on a separate goroutine and calls
// cb back on the store thread once that is done.
func (m *Monster) FlushStore(cb func()) {
	m.assertOnThread("Monster.FlushStore")

	if m.backing == nil {
		if cb != nil {
			m.post(cb)
		}
		return
	}

	backing := m.backing
	logger := m.logger
	go func() {
		if err := backing.Flush(context.Background()); err != nil {
			logger.Error("flush cookie store", "error", err)
		}
		if cb != nil {
			m.post(cb)
		}
	}()
}

func (m *Monster) SetForceKeepSessionState() {
	m.assertOnThread("Monster.SetForceKeepSessionState")
	if m.backing != nil {
		m.backing.SetForceKeepSessionState()
	}
}

// AddCallbackForCookie calls cb, asynchronously on the store thread, for
// every change to a cookie called name that would be sent to u.
func (m *Monster) AddCallbackForCookie(u *url.URL, name string, cb ChangedCallback) Subscription {
	m.assertOnThread("Monster.AddCallbackForCookie")

	s := &subscription{m: m, u: u, name: name, cb: cb, active: true}
	m.subs = append(m.subs, s)
	return s
}

func (m *Monster) IsEphemeral() bool {
	m.assertOnThread("Monster.IsEphemeral")
	return m.backing == nil
}

// Close drops every pending callback and subscription and closes the
// backing store. Safe to call more than once.
func (m *Monster) Close() error {
	m.assertOnThread("Monster.Close")
	if m.closed {
		return nil
	}
	m.closed = true
	for _, s := range m.subs {
		s.active = false
	}
	m.subs = nil

	if m.backing == nil {
		return nil
	}
	if err := m.backing.Close(); err != nil {
		return fmt.Errorf("close persistent cookie store: %w", err)
	}
	return nil
}

func (m *Monster) setCanonical(c cookie.Canonical, opts cookie.Options, now time.Time) bool {
	if c.HTTPOnly && !opts.IncludeHTTPOnly {
		return false
	}

	if old, ok := m.entries[c.Key()]; ok {
		if old.c.HTTPOnly && !opts.IncludeHTTPOnly {
			return false
		}
		m.remove(old, cookie.ChangeOverwrite)
	}

	// An already expired cookie only deletes its predecessor.
	if c.IsExpired(now) {
		return true
	}

	m.nextSeq++
	m.entries[c.Key()] = &entry{c: c, seq: m.nextSeq}
	if m.shouldPersist(&c) {
		m.backing.AddCookie(c)
	}
	m.notify(Change{Cookie: c, Cause: cookie.ChangeExplicit})
	return true
}

func (m *Monster) remove(e *entry, cause cookie.ChangeCause) {
	delete(m.entries, e.c.Key())
	if m.shouldPersist(&e.c) {
		m.backing.DeleteCookie(e.c)
	}
	m.notify(Change{Cookie: e.c, Cause: cause, Removed: true})
}

func (m *Monster) shouldPersist(c *cookie.Canonical) bool {
	return m.backing != nil && (c.IsPersistent() || m.persistSession)
}

func (m *Monster) notify(change Change) {
	if m.delegate != nil {
		m.delegate(change)
	}
	for _, s := range m.subs {
		if !s.matches(&change.Cookie) {
			continue
		}
		m.post(func() {
			if s.active {
				s.cb(change)
			}
		})
	}
}

// matching returns the cookies that would be sent to u, never nil.
func (m *Monster) matching(u *url.URL, opts cookie.Options) cookie.List {
	now := m.clock.Now()
	m.garbageCollect(now)

	list := cookie.List{}
	for _, e := range m.sorted() {
		if !e.c.IncludeForURL(u, opts) {
			continue
		}
		if !opts.SkipAccessTimeUpdate {
			m.touch(e, now)
		}
		list = append(list, e.c)
	}
	cookie.Sort(list)
	return list
}

func (m *Monster) touch(e *entry, now time.Time) {
	if now.Sub(e.c.LastAccessDate) < accessUpdateThreshold {
		return
	}
	e.c.LastAccessDate = now
	if m.shouldPersist(&e.c) {
		m.backing.UpdateCookieAccessTime(e.c)
	}
}

func (m *Monster) garbageCollect(now time.Time) {
	for _, e := range m.sorted() {
		if e.c.IsExpired(now) {
			m.remove(e, cookie.ChangeExpired)
		}
	}
}

// sorted returns the entries in insertion order.
func (m *Monster) sorted() []*entry {
	out := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

func createdBetween(c *cookie.Canonical, begin, end time.Time) bool {
	if c.CreationDate.Before(begin) {
		return false
	}
	return end.IsZero() || c.CreationDate.Before(end)
}

// detailsFromSetCookie parses a Set-Cookie header value received from u.
func detailsFromSetCookie(u *url.URL, line string, now time.Time) (cookie.Details, error) {
	hc, err := http.ParseSetCookie(line)
	if err != nil {
		return cookie.Details{}, fmt.Errorf("parse set-cookie: %w", err)
	}

	d := cookie.Details{
		URL:                 u,
		Name:                hc.Name,
		Value:               hc.Value,
		Domain:              hc.Domain,
		Path:                hc.Path,
		CreationTime:        now,
		Secure:              hc.Secure,
		HTTPOnly:            hc.HttpOnly,
		EnforceStrictSecure: true,
		Priority:            cookie.PriorityDefault,
	}

	switch hc.SameSite {
	case http.SameSiteLaxMode:
		d.SameSite = cookie.SameSiteLax
	case http.SameSiteStrictMode:
		d.SameSite = cookie.SameSiteStrict
	default:
		d.SameSite = cookie.SameSiteNoRestriction
	}

	switch {
	case hc.MaxAge > 0:
		d.ExpirationTime = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case hc.MaxAge < 0:
		d.ExpirationTime = now
	case !hc.Expires.IsZero():
		d.ExpirationTime = hc.Expires
	}

	for _, attr := range hc.Unparsed {
		k, v, _ := strings.Cut(attr, "=")
		if !strings.EqualFold(strings.TrimSpace(k), "priority") {
			continue
		}
		if p, err := cookie.ParsePriority(strings.TrimSpace(v)); err == nil {
			d.Priority = p
		}
	}

	return d, nil
}
