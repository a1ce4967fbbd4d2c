package coderef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func double(x int) int { return 2 * x }

func TestRegistry(t *testing.T) {
	reg := NewRegistry[func(int) int]()

	var zero Ref
	assert.False(t, zero.IsSet())
	_, ok := reg.Lookup(zero)
	assert.False(t, ok)

	ref, err := reg.Register("double", double)
	require.NoError(t, err)
	assert.True(t, ref.IsSet())

	again, err := reg.Register("double", double)
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	_, err = reg.Register("double", func(x int) int { return x })
	assert.ErrorIs(t, err, ErrConflict)

	fn, ok := reg.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, 8, fn(4))
	assert.Equal(t, "double", reg.Name(ref))
	assert.NotZero(t, reg.Address(ref))

	byName, ok := reg.Ref("double")
	assert.True(t, ok)
	assert.Equal(t, ref, byName)

	_, ok = reg.Lookup(Ref(99))
	assert.False(t, ok)
	assert.Empty(t, reg.Name(Ref(99)))
	assert.Equal(t, 1, reg.Len())
}

func nop() {}

func TestSeal(t *testing.T) {
	reg := NewRegistry[func()]()
	ref := reg.MustRegister("nop", nop)

	reg.Seal()
	assert.True(t, reg.Sealed())

	_, err := reg.Register("late", func() {})
	assert.ErrorIs(t, err, ErrSealed)

	existing, err := reg.Register("nop", nop)
	require.NoError(t, err)
	assert.Equal(t, ref, existing)

	_, err = reg.Add("nop", nop)
	assert.ErrorIs(t, err, ErrSealed)

	assert.Panics(t, func() { reg.MustRegister("later", func() {}) })
}

func TestAddKeepsEveryClosure(t *testing.T) {
	reg := NewRegistry[func() int]()
	counter := func(n int) func() int { return func() int { return n } }

	first, err := reg.Add("check", counter(1))
	require.NoError(t, err)
	second, err := reg.Add("check", counter(2))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	fn, ok := reg.Lookup(first)
	require.True(t, ok)
	assert.Equal(t, 1, fn())
	fn, ok = reg.Lookup(second)
	require.True(t, ok)
	assert.Equal(t, 2, fn())

	latest, ok := reg.Ref("check")
	require.True(t, ok)
	assert.Equal(t, second, latest)
	assert.Equal(t, "check", reg.Name(first))
	assert.Equal(t, 2, reg.Len())
}
