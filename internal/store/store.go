package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/cookieproxy/internal/cookiestore"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on cookies.creation_utc for range deletes
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverCgo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

var (
	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("cookie database closed")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown sqlite driver")
)

// Option configures Open.
type Option func(*Store)

// WithDriver selects the database/sql driver, DriverCgo by default.
func WithDriver(name string) Option {
	return func(s *Store) { s.driver = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRestoreOldSessionCookies keeps session cookies left by a previous run
// when loading.
func WithRestoreOldSessionCookies(restore bool) Option {
	return func(s *Store) { s.restoreSession = restore }
}

// Store is the persistent cookie database.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	db             *sql.DB
	driver         string
	logger         *slog.Logger
	restoreSession bool

	mu        sync.Mutex // guards pending, forceKeep, closed
	pending   []pendingOp
	forceKeep bool
	closed    bool

	commitMu sync.Mutex // serializes commits so batches land in order
}

var _ cookiestore.PersistentStore = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		driver: DriverCgo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.driver != DriverCgo && s.driver != DriverPureGo {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.driver)
	}

	// Open database (creates file if doesn't exist)
	db, err := sql.Open(s.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	s.logger = s.logger.With("component", "cookie-db", "driver", s.driver)
	return s, nil
}

// Close commits pending operations, drops session cookies unless
// SetForceKeepSessionState was called, and closes the database.
// Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.db == nil {
		s.mu.Unlock()
		return nil
	}
	ops := s.takePendingLocked()
	forceKeep := s.forceKeep
	s.mu.Unlock()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var errs []error
	if err := s.commit(ops); err != nil {
		errs = append(errs, err)
	}
	if !forceKeep {
		if _, err := s.db.Exec("DELETE FROM cookies WHERE is_persistent = 0"); err != nil {
			errs = append(errs, fmt.Errorf("delete session cookies: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes creation time, which range deletes filter on.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cookies_creation
		ON cookies(creation_utc)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
