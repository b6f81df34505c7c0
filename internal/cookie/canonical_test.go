package cookie

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFromDetails_HostCookie(t *testing.T) {
	creation := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := creation.Add(24 * time.Hour)

	c, err := FromDetails(Details{
		URL:            mustURL(t, "https://www.google.com/"),
		Name:           "foo",
		Value:          "bar",
		CreationTime:   creation,
		ExpirationTime: expiry,
		SameSite:       SameSiteNoRestriction,
		Priority:       PriorityDefault,
	}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "https://www.google.com/", c.Source)
	assert.Equal(t, "foo", c.Name)
	assert.Equal(t, "bar", c.Value)
	assert.Equal(t, "www.google.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, creation, c.CreationDate)
	assert.Equal(t, creation, c.LastAccessDate, "zero last access defaults to creation")
	assert.Equal(t, expiry, c.ExpiryDate)
	assert.False(t, c.Secure)
	assert.False(t, c.HTTPOnly)
	assert.Equal(t, SameSiteNoRestriction, c.SameSite)
	assert.Equal(t, PriorityMedium, c.Priority)
	assert.True(t, c.IsHostCookie())
	assert.True(t, c.IsPersistent())
}

func TestFromDetails_ZeroCreationUsesNow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c, err := FromDetails(Details{
		URL:   mustURL(t, "http://example.com/a/b/page.html"),
		Name:  "n",
		Value: "v",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, now, c.CreationDate)
	assert.Equal(t, now, c.LastAccessDate)
	assert.False(t, c.IsPersistent())
	assert.Equal(t, "/a/b", c.Path, "default path is the url directory")
	assert.Equal(t, "http://example.com/", c.Source)
}

func TestFromDetails_Domains(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		domain  string
		want    string
		wantErr error
	}{
		{name: "domain cookie", url: "https://www.example.com/", domain: "example.com", want: ".example.com"},
		{name: "leading dot", url: "https://www.example.com/", domain: ".Example.COM", want: ".example.com"},
		{name: "same as host", url: "https://www.example.com/", domain: "www.example.com", want: ".www.example.com"},
		{name: "mismatch", url: "https://www.example.com/", domain: "other.com", wantErr: ErrDomainMismatch},
		{name: "suffix without dot boundary", url: "https://notexample.com/", domain: "example.com", wantErr: ErrDomainMismatch},
		{name: "public suffix", url: "https://www.example.co.uk/", domain: "co.uk", wantErr: ErrPublicSuffix},
		{name: "tld", url: "https://www.example.com/", domain: "com", wantErr: ErrPublicSuffix},
		{name: "ip host", url: "http://192.168.0.1/", domain: "192.168.0.1", want: "192.168.0.1"},
		{name: "ip mismatch", url: "http://192.168.0.1/", domain: "168.0.1", wantErr: ErrDomainMismatch},
		{name: "dot only", url: "https://www.example.com/", domain: ".", wantErr: ErrInvalidDomain},
		{name: "idna", url: "https://www.bücher.de/", domain: "bücher.de", want: ".xn--bcher-kva.de"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromDetails(Details{
				URL:    mustURL(t, tt.url),
				Name:   "n",
				Value:  "v",
				Domain: tt.domain,
			}, time.Now())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Domain)
		})
	}
}

func TestFromDetails_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		details Details
		wantErr error
	}{
		{name: "nil url", details: Details{Name: "n", Value: "v"}, wantErr: ErrInvalidURL},
		{name: "relative url", details: Details{URL: &url.URL{Path: "/x"}, Name: "n", Value: "v"}, wantErr: ErrInvalidURL},
		{name: "ftp", details: Details{URL: &url.URL{Scheme: "ftp", Host: "example.com"}, Name: "n", Value: "v"}, wantErr: ErrInvalidURL},
		{name: "empty name and value", details: Details{URL: &url.URL{Scheme: "https", Host: "example.com"}}, wantErr: ErrInvalidName},
		{name: "semicolon in value", details: Details{URL: &url.URL{Scheme: "https", Host: "example.com"}, Name: "n", Value: "a;b"}, wantErr: ErrInvalidName},
		{name: "equals in name", details: Details{URL: &url.URL{Scheme: "https", Host: "example.com"}, Name: "a=b", Value: "v"}, wantErr: ErrInvalidName},
		{name: "control char", details: Details{URL: &url.URL{Scheme: "https", Host: "example.com"}, Name: "n", Value: "a\nb"}, wantErr: ErrInvalidName},
		{
			name:    "strict secure over http",
			details: Details{URL: &url.URL{Scheme: "http", Host: "example.com"}, Name: "n", Value: "v", Secure: true, EnforceStrictSecure: true},
			wantErr: ErrInsecureSecure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDetails(tt.details, time.Now())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFromDetails_SecureOverHTTPWithoutStrictMode(t *testing.T) {
	c, err := FromDetails(Details{
		URL:    mustURL(t, "http://example.com/"),
		Name:   "n",
		Value:  "v",
		Secure: true,
	}, time.Now())
	require.NoError(t, err)
	assert.True(t, c.Secure)
}

func TestCanonical_IsOnPath(t *testing.T) {
	c := &Canonical{Path: "/docs"}

	assert.True(t, c.IsOnPath("/docs"))
	assert.True(t, c.IsOnPath("/docs/"))
	assert.True(t, c.IsOnPath("/docs/web"))
	assert.False(t, c.IsOnPath("/docsweb"))
	assert.False(t, c.IsOnPath("/"))

	root := &Canonical{Path: "/"}
	assert.True(t, root.IsOnPath("/anything"))
}

func TestCanonical_IncludeForURL(t *testing.T) {
	base := Canonical{Name: "n", Value: "v", Domain: ".example.com", Path: "/"}

	tests := []struct {
		name   string
		mutate func(c *Canonical)
		url    string
		opts   Options
		want   bool
	}{
		{name: "subdomain", url: "https://www.example.com/", want: true},
		{name: "apex", url: "https://example.com/", want: true},
		{name: "other host", url: "https://example.org/", want: false},
		{name: "host cookie other subdomain", mutate: func(c *Canonical) { c.Domain = "www.example.com" }, url: "https://api.example.com/", want: false},
		{name: "secure over http", mutate: func(c *Canonical) { c.Secure = true }, url: "http://www.example.com/", want: false},
		{name: "secure over https", mutate: func(c *Canonical) { c.Secure = true }, url: "https://www.example.com/", want: true},
		{name: "httponly excluded", mutate: func(c *Canonical) { c.HTTPOnly = true }, url: "https://example.com/", want: false},
		{name: "httponly included", mutate: func(c *Canonical) { c.HTTPOnly = true }, url: "https://example.com/", opts: Options{IncludeHTTPOnly: true}, want: true},
		{name: "path mismatch", mutate: func(c *Canonical) { c.Path = "/app" }, url: "https://example.com/other", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			assert.Equal(t, tt.want, c.IncludeForURL(mustURL(t, tt.url), tt.opts))
		})
	}
}

func TestCanonical_IsExpired(t *testing.T) {
	now := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)

	session := &Canonical{}
	assert.False(t, session.IsExpired(now))

	past := &Canonical{ExpiryDate: now.Add(-time.Second)}
	assert.True(t, past.IsExpired(now))

	future := &Canonical{ExpiryDate: now.Add(time.Hour)}
	assert.False(t, future.IsExpired(now))
}
