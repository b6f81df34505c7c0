package cookie

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Details are the arguments of a set-cookie-with-details operation.
//
// Empty Domain makes a host-only cookie. Empty Path takes the directory of
// the URL path. A zero CreationTime means "now"; a zero LastAccessTime means
// "same as creation"; a zero ExpirationTime makes a session cookie.
type Details struct {
	URL                 *url.URL
	Name                string
	Value               string
	Domain              string
	Path                string
	CreationTime        time.Time
	ExpirationTime      time.Time
	LastAccessTime      time.Time
	Secure              bool
	HTTPOnly            bool
	SameSite            SameSite
	EnforceStrictSecure bool
	Priority            Priority
}

// Canonical is a normalized cookie as held by a store.
type Canonical struct {
	Source         string // scheme://host[:port]/ of the URL that set it
	Name           string
	Value          string
	Domain         string // host for host-only cookies, ".domain" otherwise
	Path           string
	CreationDate   time.Time
	ExpiryDate     time.Time // zero for session cookies
	LastAccessDate time.Time
	Secure         bool
	HTTPOnly       bool
	SameSite       SameSite
	Priority       Priority
}

// Key identifies equivalent cookies: a store holds at most one cookie per Key.
type Key struct {
	Domain string
	Path   string
	Name   string
}

// Key returns the equivalence key of c.
func (c *Canonical) Key() Key {
	return Key{Domain: c.Domain, Path: c.Path, Name: c.Name}
}

// IsPersistent reports whether c has an expiry date.
func (c *Canonical) IsPersistent() bool {
	return !c.ExpiryDate.IsZero()
}

// IsExpired reports whether c is past its expiry date at now.
func (c *Canonical) IsExpired(now time.Time) bool {
	return c.IsPersistent() && !now.Before(c.ExpiryDate)
}

// IsHostCookie reports whether c is host-only.
func (c *Canonical) IsHostCookie() bool {
	return !strings.HasPrefix(c.Domain, ".")
}

// IsDomainMatch reports whether c may be sent to host.
func (c *Canonical) IsDomainMatch(host string) bool {
	if c.IsHostCookie() {
		return host == c.Domain
	}
	return host == c.Domain[1:] || strings.HasSuffix(host, c.Domain)
}

// IsOnPath reports whether c may be sent with a request for urlPath.
func (c *Canonical) IsOnPath(urlPath string) bool {
	if c.Path == "/" {
		return true
	}
	if !strings.HasPrefix(urlPath, c.Path) {
		return false
	}
	if len(urlPath) == len(c.Path) || strings.HasSuffix(c.Path, "/") {
		return true
	}
	return urlPath[len(c.Path)] == '/'
}

// IncludeForURL reports whether c would be returned for a read of u with
// opts. Expiry is not considered; stores purge expired cookies themselves.
func (c *Canonical) IncludeForURL(u *url.URL, opts Options) bool {
	if u == nil {
		return false
	}
	host, err := canonicalHost(u.Hostname())
	if err != nil || !c.IsDomainMatch(host) {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !c.IsOnPath(path) {
		return false
	}
	if c.Secure && !strings.EqualFold(u.Scheme, "https") {
		return false
	}
	if c.HTTPOnly && !opts.IncludeHTTPOnly {
		return false
	}
	return true
}

// FromDetails validates d and builds the canonical cookie it describes.
// now is used when d.CreationTime is zero.
func FromDetails(d Details, now time.Time) (*Canonical, error) {
	u := d.URL
	if u == nil || !u.IsAbs() || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	if err := validateNameValue(d.Name, d.Value); err != nil {
		return nil, err
	}

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	domain, err := canonicalDomain(host, d.Domain)
	if err != nil {
		return nil, err
	}

	if d.Secure && d.EnforceStrictSecure && scheme != "https" {
		return nil, ErrInsecureSecure
	}

	creation := d.CreationTime
	if creation.IsZero() {
		creation = now
	}
	lastAccess := d.LastAccessTime
	if lastAccess.IsZero() {
		lastAccess = creation
	}

	source := scheme + "://" + host
	if port := u.Port(); port != "" {
		source += ":" + port
	}
	source += "/"

	return &Canonical{
		Source:         source,
		Name:           d.Name,
		Value:          d.Value,
		Domain:         domain,
		Path:           canonicalPath(u, d.Path),
		CreationDate:   creation,
		ExpiryDate:     d.ExpirationTime,
		LastAccessDate: lastAccess,
		Secure:         d.Secure,
		HTTPOnly:       d.HTTPOnly,
		SameSite:       d.SameSite,
		Priority:       d.Priority,
	}, nil
}

func validateNameValue(name, value string) error {
	if name == "" && value == "" {
		return fmt.Errorf("%w: name and value both empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "=;") || containsCTL(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidName, name)
	}
	if strings.ContainsRune(value, ';') || containsCTL(value) {
		return fmt.Errorf("%w: value %q", ErrInvalidName, value)
	}
	return nil
}

func containsCTL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

func canonicalHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host, nil
	}
	return idna.Lookup.ToASCII(host)
}

func canonicalDomain(host, domain string) (string, error) {
	if domain == "" {
		return host, nil
	}

	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	if d == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	if net.ParseIP(host) != nil {
		if d != host {
			return "", fmt.Errorf("%w: %q for ip host %q", ErrDomainMismatch, domain, host)
		}
		return host, nil
	}

	d, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidDomain, domain, err)
	}

	if d != host && !strings.HasSuffix(host, "."+d) {
		return "", fmt.Errorf("%w: %q for host %q", ErrDomainMismatch, domain, host)
	}

	if suffix, _ := publicsuffix.PublicSuffix(d); suffix == d {
		// A host that is itself a public suffix may still set a host-only
		// cookie for itself.
		if d == host {
			return host, nil
		}
		return "", fmt.Errorf("%w: %q", ErrPublicSuffix, domain)
	}

	return "." + d, nil
}

func canonicalPath(u *url.URL, path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	p := u.EscapedPath()
	if p == "" || p[0] != '/' {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx == 0 {
		return "/"
	}
	return p[:idx]
}
