// Package browsercontext ties a cookie store to the threads that use it.
//
// A Context owns a store thread and a storeproxy.Owner. The store is built
// asynchronously: the cookie database is opened and loaded off-thread, and
// the resulting Monster is installed on the store thread. Proxies handed
// out before that point answer with "no store" defaults.
//
// A Registry keeps the contexts of a process by name and tracks which one
// is the default.
package browsercontext
