// Package cookie defines the cookie records exchanged with a cookie store.
//
// A Canonical cookie is the normalized form a store keeps: its domain is
// either a bare host (host-only cookie) or a dot-prefixed registrable
// domain, its path is absolute, and its timestamps are filled in. Details
// carries the raw arguments of a set operation; FromDetails turns them into
// a Canonical cookie or reports why they are unacceptable.
//
// Domains are canonicalized with IDNA (golang.org/x/net/idna) and checked
// against the public suffix list (golang.org/x/net/publicsuffix), so a
// cookie can never be scoped to a whole TLD such as ".co.uk".
package cookie
