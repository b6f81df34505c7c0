// Package cookiestore defines the asynchronous cookie store interface and
// Monster, an in-memory implementation bound to a single thread.
//
// Every Store method must be called on the store's thread, and every
// callback runs on that same thread. Callbacks may be nil. Monster never
// invokes a callback synchronously from inside the call that received it;
// results are always posted back to its thread, and results still pending
// when the Monster is closed are dropped.
//
// Monster optionally writes through to a PersistentStore (see
// internal/store for the SQLite implementation).
package cookiestore
