package browsercontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FirstRegisteredIsDefault(t *testing.T) {
	r := NewRegistry()
	defer r.CloseAll()

	c, name := r.Default()
	assert.Nil(t, c)
	assert.Empty(t, name)

	a := New(context.Background(), Params{StoreThreadName: "store-a"})
	b := New(context.Background(), Params{StoreThreadName: "store-b"})
	require.NoError(t, r.Register("a", a))
	require.NoError(t, r.Register("b", b))

	c, name = r.Default()
	assert.Same(t, a, c)
	assert.Equal(t, "a", name)

	require.NoError(t, r.SetDefault("b"))
	c, name = r.Default()
	assert.Same(t, b, c)
	assert.Equal(t, "b", name)

	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	defer r.CloseAll()

	a := New(context.Background(), Params{})
	require.NoError(t, r.Register("a", a))
	assert.ErrorIs(t, r.Register("a", a), ErrDuplicateName)

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.SetDefault("missing"), ErrNotFound)
	assert.ErrorIs(t, r.Remove("missing"), ErrNotFound)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestRegistry_RemovePromotesNextDefault(t *testing.T) {
	r := NewRegistry()
	defer r.CloseAll()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(name, New(context.Background(), Params{StoreThreadName: "store-" + name})))
	}

	require.NoError(t, r.Remove("a"))
	_, name := r.Default()
	assert.Equal(t, "b", name)

	require.NoError(t, r.Remove("c"))
	_, name = r.Default()
	assert.Equal(t, "b", name)

	require.NoError(t, r.Remove("b"))
	c, name := r.Default()
	assert.Nil(t, c)
	assert.Empty(t, name)
	assert.Empty(t, r.Names())
}

func TestRegistry_CloseAllEmpties(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", New(context.Background(), Params{})))
	r.CloseAll()
	r.CloseAll()

	assert.Empty(t, r.Names())
	_, err := r.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}
