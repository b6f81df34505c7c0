package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
)

// timeToDB converts a time to microseconds since the Unix epoch.
// The zero time is stored as 0.
func timeToDB(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// timeFromDB is the inverse of timeToDB. Times come back in UTC.
func timeFromDB(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func boolToDB(b bool) int {
	if b {
		return 1
	}
	return 0
}

// cookieRow is the column image of one cookie, in schema order.
type cookieRow struct {
	creation   int64
	hostKey    string
	name       string
	value      string
	path       string
	source     string
	expires    int64
	lastAccess int64
	secure     int
	httpOnly   int
	sameSite   int
	priority   int
	persistent int
}

func marshalCookie(c cookie.Canonical) cookieRow {
	return cookieRow{
		creation:   timeToDB(c.CreationDate),
		hostKey:    c.Domain,
		name:       c.Name,
		value:      c.Value,
		path:       c.Path,
		source:     c.Source,
		expires:    timeToDB(c.ExpiryDate),
		lastAccess: timeToDB(c.LastAccessDate),
		secure:     boolToDB(c.Secure),
		httpOnly:   boolToDB(c.HTTPOnly),
		sameSite:   int(c.SameSite),
		priority:   int(c.Priority),
		persistent: boolToDB(c.IsPersistent()),
	}
}

func (r cookieRow) args() []any {
	return []any{
		r.creation, r.hostKey, r.name, r.value, r.path, r.source,
		r.expires, r.lastAccess, r.secure, r.httpOnly, r.sameSite, r.priority, r.persistent,
	}
}

// unmarshalCookie validates the enum columns, which a hand-edited or
// newer database could hold out of range.
func unmarshalCookie(r cookieRow) (cookie.Canonical, error) {
	sameSite := cookie.SameSite(r.sameSite)
	if sameSite < cookie.SameSiteNoRestriction || sameSite > cookie.SameSiteStrict {
		return cookie.Canonical{}, fmt.Errorf("cookie %q: %w: %d", r.name, cookie.ErrUnknownSameSite, r.sameSite)
	}
	priority := cookie.Priority(r.priority)
	if priority < cookie.PriorityLow || priority > cookie.PriorityHigh {
		return cookie.Canonical{}, fmt.Errorf("cookie %q: %w: %d", r.name, cookie.ErrUnknownPriority, r.priority)
	}

	return cookie.Canonical{
		Source:         r.source,
		Name:           r.name,
		Value:          r.value,
		Domain:         r.hostKey,
		Path:           r.path,
		CreationDate:   timeFromDB(r.creation),
		ExpiryDate:     timeFromDB(r.expires),
		LastAccessDate: timeFromDB(r.lastAccess),
		Secure:         r.secure != 0,
		HTTPOnly:       r.httpOnly != 0,
		SameSite:       sameSite,
		Priority:       priority,
	}, nil
}

// scanCookie reads one row selected with cookieColumns.
func scanCookie(rows *sql.Rows) (cookie.Canonical, error) {
	var r cookieRow
	err := rows.Scan(
		&r.creation, &r.hostKey, &r.name, &r.value, &r.path, &r.source,
		&r.expires, &r.lastAccess, &r.secure, &r.httpOnly, &r.sameSite, &r.priority, &r.persistent,
	)
	if err != nil {
		return cookie.Canonical{}, fmt.Errorf("scan cookie: %w", err)
	}
	return unmarshalCookie(r)
}
