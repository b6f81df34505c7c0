package storeproxy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("req-1", "req-2")
	assert.Equal(t, "req-1", gen.Generate())
	assert.Equal(t, "req-2", gen.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all IDs exhausted", func() { gen.Generate() })
}

func TestFixedGenerator_Empty(t *testing.T) {
	assert.Panics(t, func() { NewFixedGenerator().Generate() })
}
