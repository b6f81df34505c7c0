// Package storeproxy exposes a cookie store that lives on one thread to
// code running on another.
//
// Three pieces cooperate:
//
//   - Owner holds the real cookiestore.Store on the store thread and hands
//     out WeakHandles that stop resolving once the owner is destroyed.
//   - core is the shared dispatcher. It posts each request to the store
//     thread, runs it against the store if one is present (or synthesizes
//     the "no store" default), and posts the result back to the client
//     thread.
//   - Proxy and UIProxy are the client-facing cookiestore.Store
//     implementations. Both assert that they are called on their client
//     thread.
//
// # Variants
//
// Proxy resolves the store through a WeakHandle. Closing it invalidates its
// own weak self references, so results that arrive afterwards are
// discarded.
//
// UIProxy holds the store directly behind a mutex. Closing it detaches the
// store: every request that reaches the store thread afterwards, including
// requests queued before Close, sees no store and receives the default
// result. Its deliveries are never discarded.
//
// # Request lifecycle
//
// Each forwarded request moves through
//
//	Created -> QueuedOnStoreThread -> Executed | SkippedAbsentStore
//	        -> QueuedOnClientThread -> Delivered | Discarded
//
// and may jump to Discarded when a post fails because the target thread
// has stopped. Illegal transitions panic. The callback runs at most once.
//
// There is no timeout and no cancellation: a request to a store that never
// calls back stays in flight until the process exits.
package storeproxy
