package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cookieproxy/internal/cookie"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

var testEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

// createTestCookie creates a persistent cookie created offset after
// testEpoch and expiring a day later.
func createTestCookie(name, value string, offset time.Duration) cookie.Canonical {
	created := testEpoch.Add(offset)
	return cookie.Canonical{
		Source:         "https://example.com/",
		Name:           name,
		Value:          value,
		Domain:         ".example.com",
		Path:           "/",
		CreationDate:   created,
		ExpiryDate:     created.Add(24 * time.Hour),
		LastAccessDate: created,
		Secure:         true,
		SameSite:       cookie.SameSiteLax,
		Priority:       cookie.PriorityMedium,
	}
}

// createSessionCookie is createTestCookie without an expiry date.
func createSessionCookie(name, value string, offset time.Duration) cookie.Canonical {
	c := createTestCookie(name, value, offset)
	c.ExpiryDate = time.Time{}
	return c
}
