package cookie

import "errors"

// Errors returned by FromDetails and the Parse functions. Wrapped errors
// carry the offending value; match them with errors.Is.
var (
	ErrInvalidURL      = errors.New("cookie: url must be absolute http(s) with a host")
	ErrInvalidName     = errors.New("cookie: invalid name or value")
	ErrInvalidDomain   = errors.New("cookie: invalid domain")
	ErrDomainMismatch  = errors.New("cookie: domain does not match url host")
	ErrPublicSuffix    = errors.New("cookie: domain is a public suffix")
	ErrInsecureSecure  = errors.New("cookie: secure cookie set from insecure url")
	ErrUnknownSameSite = errors.New("cookie: unknown same-site value")
	ErrUnknownPriority = errors.New("cookie: unknown priority")
)
