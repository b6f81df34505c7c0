package cookie

import (
	"fmt"
	"strings"
)

// SameSite is the cookie's same-site restriction.
type SameSite int

const (
	SameSiteNoRestriction SameSite = iota
	SameSiteLax
	SameSiteStrict
)

var sameSiteNames = [...]string{"no_restriction", "lax", "strict"}

func (s SameSite) String() string {
	if s < 0 || int(s) >= len(sameSiteNames) {
		return fmt.Sprintf("SameSite(%d)", int(s))
	}
	return sameSiteNames[s]
}

// ParseSameSite accepts the names produced by String, case-insensitively.
// The empty string means SameSiteNoRestriction.
func ParseSameSite(s string) (SameSite, error) {
	if s == "" {
		return SameSiteNoRestriction, nil
	}
	for i, name := range sameSiteNames {
		if strings.EqualFold(s, name) {
			return SameSite(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSameSite, s)
}

// Priority is the eviction priority of a cookie.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh

	PriorityDefault = PriorityMedium
)

var priorityNames = [...]string{"low", "medium", "high"}

func (p Priority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority accepts the names produced by String, case-insensitively.
// The empty string means PriorityDefault.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityDefault, nil
	}
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
}

// ChangeCause says why a store added or removed a cookie.
type ChangeCause int

const (
	// ChangeExplicit is an insertion or deletion requested by a caller.
	ChangeExplicit ChangeCause = iota
	// ChangeOverwrite is the removal of a cookie replaced by an equivalent one.
	ChangeOverwrite
	// ChangeExpired is the removal of a cookie found past its expiry date.
	ChangeExpired
)

func (c ChangeCause) String() string {
	switch c {
	case ChangeExplicit:
		return "explicit"
	case ChangeOverwrite:
		return "overwrite"
	case ChangeExpired:
		return "expired"
	default:
		return fmt.Sprintf("ChangeCause(%d)", int(c))
	}
}

// Options control which cookies a read returns.
//
// The zero value matches what a script-visible read sees: http-only cookies
// are excluded and the last access time of returned cookies is updated.
type Options struct {
	IncludeHTTPOnly      bool
	SkipAccessTimeUpdate bool
}
