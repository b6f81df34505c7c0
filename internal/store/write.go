package store

import (
	"context"
	"fmt"

	"github.com/roach88/cookieproxy/internal/cookie"
)

type opKind int

const (
	opAdd opKind = iota
	opUpdateAccessTime
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opAdd:
		return "add"
	case opUpdateAccessTime:
		return "update_access_time"
	case opDelete:
		return "delete"
	default:
		return fmt.Sprintf("opKind(%d)", int(k))
	}
}

type pendingOp struct {
	kind   opKind
	cookie cookie.Canonical
}

// AddCookie queues an insert of c, replacing any row with the same
// host, name and path.
func (s *Store) AddCookie(c cookie.Canonical) {
	s.enqueue(opAdd, c)
}

// UpdateCookieAccessTime queues an update of c's last access time.
func (s *Store) UpdateCookieAccessTime(c cookie.Canonical) {
	s.enqueue(opUpdateAccessTime, c)
}

// DeleteCookie queues the removal of c.
func (s *Store) DeleteCookie(c cookie.Canonical) {
	s.enqueue(opDelete, c)
}

// SetForceKeepSessionState keeps session cookies on disk at Close.
func (s *Store) SetForceKeepSessionState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceKeep = true
}

// Pending returns the number of queued operations.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) enqueue(kind opKind, c cookie.Canonical) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("cookie operation after close dropped", "op", kind.String(), "name", c.Name)
		return
	}
	s.pending = append(s.pending, pendingOp{kind: kind, cookie: c})
}

// Flush commits every queued operation in a single transaction.
// Flushing a closed store is a no-op.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	ops := s.takePendingLocked()
	s.mu.Unlock()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.commitContext(ctx, ops)
}

func (s *Store) takePendingLocked() []pendingOp {
	ops := s.pending
	s.pending = nil
	return ops
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) commit(ops []pendingOp) error {
	return s.commitContext(context.Background(), ops)
}

// commitContext applies ops in order. The caller holds commitMu.
func (s *Store) commitContext(ctx context.Context, ops []pendingOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, op := range ops {
		row := marshalCookie(op.cookie)
		switch op.kind {
		case opAdd:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO cookies (`+cookieColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(host_key, name, path) DO UPDATE SET
					creation_utc = excluded.creation_utc,
					value = excluded.value,
					source = excluded.source,
					expires_utc = excluded.expires_utc,
					last_access_utc = excluded.last_access_utc,
					is_secure = excluded.is_secure,
					is_httponly = excluded.is_httponly,
					samesite = excluded.samesite,
					priority = excluded.priority,
					is_persistent = excluded.is_persistent
			`, row.args()...)
		case opUpdateAccessTime:
			_, err = tx.ExecContext(ctx, `
				UPDATE cookies SET last_access_utc = ?
				WHERE host_key = ? AND name = ? AND path = ?
			`, row.lastAccess, row.hostKey, row.name, row.path)
		case opDelete:
			_, err = tx.ExecContext(ctx, `
				DELETE FROM cookies
				WHERE host_key = ? AND name = ? AND path = ?
			`, row.hostKey, row.name, row.path)
		}
		if err != nil {
			return fmt.Errorf("commit: %s %q: %w", op.kind, op.cookie.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("committed cookie operations", "count", len(ops))
	return nil
}
