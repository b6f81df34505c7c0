package storeproxy

import (
	"net/url"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
	"github.com/roach88/cookieproxy/internal/cookiestore"
	"github.com/roach88/cookieproxy/internal/thread"
	"github.com/roach88/cookieproxy/internal/weakptr"
)

// surface is the cookiestore.Store implementation shared by Proxy and
// UIProxy. All of its state is owned by the client thread.
type surface struct {
	kind string // type name used in panic messages
	core *core

	// self, when set, hands out the weak references that gate delivery.
	self *weakptr.Factory[surface]

	closed bool
}

func (s *surface) enter(method string) {
	thread.AssertCurrent(s.core.client, s.kind+"."+method)
	if s.closed {
		panic("storeproxy: " + s.kind + "." + method + " called after Close")
	}
}

// gate returns the delivery check for a new request, or nil to always
// deliver.
func (s *surface) gate() func() bool {
	if s.self == nil {
		return nil
	}
	wp := s.self.GetWeakPtr()
	return wp.IsValid
}

func (s *surface) unsupported(op string) {
	s.core.logger.Debug("unsupported cookie operation, answering locally", "op", op)
}

// Pending returns the number of forwarded requests whose callback has not
// yet run or been discarded.
func (s *surface) Pending() int {
	return s.core.pending()
}

func (s *surface) SetCookieWithOptionsAsync(u *url.URL, line string, opts cookie.Options, cb cookiestore.SetCookiesCallback) {
	s.enter("SetCookieWithOptionsAsync")
	s.unsupported("set_cookie_with_options")
	if cb != nil {
		cb(false)
	}
}

func (s *surface) SetCookieWithDetailsAsync(d cookie.Details, cb cookiestore.SetCookiesCallback) {
	s.enter("SetCookieWithDetailsAsync")
	dispatch(s.core, OpSetCookieWithDetails,
		func(store cookiestore.Store, reply func(bool)) {
			store.SetCookieWithDetailsAsync(d, reply)
		},
		false, s.gate(), cb)
}

func (s *surface) GetCookiesWithOptionsAsync(u *url.URL, opts cookie.Options, cb cookiestore.GetCookiesCallback) {
	s.enter("GetCookiesWithOptionsAsync")
	if cb == nil {
		return
	}
	dispatch(s.core, OpGetCookiesWithOptions,
		func(store cookiestore.Store, reply func(string)) {
			store.GetCookiesWithOptionsAsync(u, opts, reply)
		},
		"", s.gate(), cb)
}

func (s *surface) GetCookieListWithOptionsAsync(u *url.URL, opts cookie.Options, cb cookiestore.GetCookieListCallback) {
	s.enter("GetCookieListWithOptionsAsync")
	if cb == nil {
		return
	}
	dispatch(s.core, OpGetCookieListWithOptions,
		func(store cookiestore.Store, reply func(cookie.List)) {
			store.GetCookieListWithOptionsAsync(u, opts, reply)
		},
		cookie.List{}, s.gate(), cb)
}

func (s *surface) GetAllCookiesAsync(cb cookiestore.GetCookieListCallback) {
	s.enter("GetAllCookiesAsync")
	if cb == nil {
		return
	}
	dispatch(s.core, OpGetAllCookies,
		func(store cookiestore.Store, reply func(cookie.List)) {
			store.GetAllCookiesAsync(reply)
		},
		cookie.List{}, s.gate(), cb)
}

func (s *surface) DeleteCookieAsync(u *url.URL, name string, cb func()) {
	s.enter("DeleteCookieAsync")
	s.unsupported("delete_cookie")
	if cb != nil {
		cb()
	}
}

func (s *surface) DeleteCanonicalCookieAsync(c cookie.Canonical, cb cookiestore.DeleteCallback) {
	s.enter("DeleteCanonicalCookieAsync")
	s.unsupported("delete_canonical_cookie")
	if cb != nil {
		cb(0)
	}
}

func (s *surface) DeleteAllCreatedBetweenAsync(begin, end time.Time, cb cookiestore.DeleteCallback) {
	s.enter("DeleteAllCreatedBetweenAsync")
	dispatch(s.core, OpDeleteAllCreatedBetween,
		func(store cookiestore.Store, reply func(int)) {
			store.DeleteAllCreatedBetweenAsync(begin, end, reply)
		},
		0, s.gate(), cb)
}

func (s *surface) DeleteAllCreatedBetweenWithPredicateAsync(begin, end time.Time, pred cookiestore.Predicate, cb cookiestore.DeleteCallback) {
	s.enter("DeleteAllCreatedBetweenWithPredicateAsync")
	s.unsupported("delete_all_created_between_with_predicate")
	if cb != nil {
		cb(0)
	}
}

func (s *surface) DeleteSessionCookiesAsync(cb cookiestore.DeleteCallback) {
	s.enter("DeleteSessionCookiesAsync")
	s.unsupported("delete_session_cookies")
	if cb != nil {
		cb(0)
	}
}

func (s *surface) FlushStore(cb func()) {
	s.enter("FlushStore")
	var done func(struct{})
	if cb != nil {
		done = func(struct{}) { cb() }
	}
	dispatch(s.core, OpFlushStore,
		func(store cookiestore.Store, reply func(struct{})) {
			store.FlushStore(func() { reply(struct{}{}) })
		},
		struct{}{}, s.gate(), done)
}

func (s *surface) SetForceKeepSessionState() {
	s.enter("SetForceKeepSessionState")
	s.unsupported("set_force_keep_session_state")
}

func (s *surface) AddCallbackForCookie(u *url.URL, name string, cb cookiestore.ChangedCallback) cookiestore.Subscription {
	s.enter("AddCallbackForCookie")
	s.unsupported("add_callback_for_cookie")
	return nil
}

func (s *surface) IsEphemeral() bool {
	s.enter("IsEphemeral")
	s.unsupported("is_ephemeral")
	return false
}
