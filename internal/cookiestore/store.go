package cookiestore

import (
	"context"
	"net/url"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
)

// Callback shapes. A nil callback is always allowed.
type (
	// SetCookiesCallback receives whether the cookie was stored.
	SetCookiesCallback func(success bool)
	// GetCookiesCallback receives a Cookie header line ("a=b; c=d").
	GetCookiesCallback func(line string)
	// GetCookieListCallback receives matching cookies, possibly empty.
	GetCookieListCallback func(list cookie.List)
	// DeleteCallback receives the number of cookies deleted.
	DeleteCallback func(numDeleted int)
	// ChangedCallback is told about a cookie added to or removed from a store.
	ChangedCallback func(change Change)
	// Predicate selects cookies for deletion.
	Predicate func(c *cookie.Canonical) bool
)

// Change describes one modification of a store's contents.
type Change struct {
	Cookie  cookie.Canonical
	Cause   cookie.ChangeCause
	Removed bool
}

// Subscription is returned by AddCallbackForCookie. Unsubscribe must be
// called on the store's thread; no callback runs after it returns.
type Subscription interface {
	Unsubscribe()
}

// Store is the asynchronous cookie store surface.
type Store interface {
	// SetCookieWithOptionsAsync parses a Set-Cookie line for u and stores it.
	SetCookieWithOptionsAsync(u *url.URL, line string, opts cookie.Options, cb SetCookiesCallback)
	SetCookieWithDetailsAsync(d cookie.Details, cb SetCookiesCallback)
	GetCookiesWithOptionsAsync(u *url.URL, opts cookie.Options, cb GetCookiesCallback)
	GetCookieListWithOptionsAsync(u *url.URL, opts cookie.Options, cb GetCookieListCallback)
	GetAllCookiesAsync(cb GetCookieListCallback)
	// DeleteCookieAsync deletes every cookie called name that would be sent to u.
	DeleteCookieAsync(u *url.URL, name string, cb func())
	DeleteCanonicalCookieAsync(c cookie.Canonical, cb DeleteCallback)
	// DeleteAllCreatedBetweenAsync deletes cookies with begin <= creation < end.
	// A zero end means no upper bound.
	DeleteAllCreatedBetweenAsync(begin, end time.Time, cb DeleteCallback)
	DeleteAllCreatedBetweenWithPredicateAsync(begin, end time.Time, pred Predicate, cb DeleteCallback)
	DeleteSessionCookiesAsync(cb DeleteCallback)
	// FlushStore writes pending changes to the backing store, if any.
	FlushStore(cb func())
	SetForceKeepSessionState()
	AddCallbackForCookie(u *url.URL, name string, cb ChangedCallback) Subscription
	// IsEphemeral reports whether the store has no backing storage.
	IsEphemeral() bool
}

// PersistentStore is the durable backing of a Monster.
//
// AddCookie, UpdateCookieAccessTime and DeleteCookie only queue work; it
// reaches disk on Flush or Close. Implementations must be safe for use from
// several goroutines, because Monster flushes off its own thread.
type PersistentStore interface {
	Load(ctx context.Context) (cookie.List, error)
	AddCookie(c cookie.Canonical)
	UpdateCookieAccessTime(c cookie.Canonical)
	DeleteCookie(c cookie.Canonical)
	SetForceKeepSessionState()
	Flush(ctx context.Context) error
	Close() error
}
