// Package store provides SQLite-backed durable storage for cookies.
//
// Store implements cookiestore.PersistentStore. Writes are queued in memory
// as pending operations and committed in one transaction on Flush or Close,
// so a Monster can record changes on its thread without touching the disk.
//
// # Session cookies
//
// Rows without an expiry date are session cookies. They are deleted at Load
// unless the store was opened with WithRestoreOldSessionCookies, and at
// Close unless SetForceKeepSessionState was called.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Two drivers are supported: "sqlite3" (github.com/mattn/go-sqlite3, cgo)
// and "sqlite" (modernc.org/sqlite, pure Go).
package store
