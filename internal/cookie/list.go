package cookie

import (
	"slices"
	"strings"
)

// List is an ordered set of cookies, as returned by store reads.
type List []Canonical

// Clone returns a copy of l that shares no backing array with it.
// A nil list stays nil.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	return slices.Clone(l)
}

// Sort orders l the way cookies are sent on a request: longer paths first,
// then older cookies first. The sort is stable.
func Sort(l List) {
	slices.SortStableFunc(l, func(a, b Canonical) int {
		if len(a.Path) != len(b.Path) {
			return len(b.Path) - len(a.Path)
		}
		return a.CreationDate.Compare(b.CreationDate)
	})
}

// Line renders l as a request Cookie header value ("a=b; c=d").
func Line(l List) string {
	var b strings.Builder
	for i := range l {
		if i > 0 {
			b.WriteString("; ")
		}
		if l[i].Name != "" {
			b.WriteString(l[i].Name)
			b.WriteByte('=')
		}
		b.WriteString(l[i].Value)
	}
	return b.String()
}
