package store

import (
	"context"
	"fmt"

	"github.com/roach88/cookieproxy/internal/cookie"
)

const cookieColumns = `creation_utc, host_key, name, value, path, source,
	expires_utc, last_access_utc, is_secure, is_httponly, samesite, priority, is_persistent`

// Load returns every stored cookie, ordered by creation time.
//
// Session cookies left over from a previous run are deleted first unless
// the store was opened with WithRestoreOldSessionCookies.
// Returns an empty list (not nil) if nothing is stored.
func (s *Store) Load(ctx context.Context) (cookie.List, error) {
	if err := s.checkOpen(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	if !s.restoreSession {
		res, err := s.db.ExecContext(ctx, "DELETE FROM cookies WHERE is_persistent = 0")
		if err != nil {
			return nil, fmt.Errorf("load: delete old session cookies: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.logger.Debug("dropped session cookies from previous run", "count", n)
		}
	}

	list, err := s.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	s.logger.Info("loaded cookies", "count", len(list))
	return list, nil
}

// ReadAll returns every committed row, ordered deterministically by
// creation time, then host, name and path. Pending operations are not
// visible until flushed.
func (s *Store) ReadAll(ctx context.Context) (cookie.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cookieColumns+`
		FROM cookies
		ORDER BY creation_utc ASC, host_key COLLATE BINARY ASC, name COLLATE BINARY ASC, path COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query cookies: %w", err)
	}
	defer rows.Close()

	list := cookie.List{}
	for rows.Next() {
		c, err := scanCookie(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cookies: %w", err)
	}

	return list, nil
}

// Count returns the number of committed rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cookies").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cookies: %w", err)
	}
	return n, nil
}
