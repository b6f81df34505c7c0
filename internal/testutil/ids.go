package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates request IDs "<prefix>-1", "<prefix>-2", ... .
//
// Unlike storeproxy.FixedGenerator it never runs out, which suits scenario
// runs whose request count is not known up front. The same scenario always
// sees the same IDs, so golden traces stay byte-identical.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix becomes "req".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
