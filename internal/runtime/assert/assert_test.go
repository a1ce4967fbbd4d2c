package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThat(t *testing.T) {
	assert.NotPanics(t, func() { That(true, "never") })

	if !Enabled {
		assert.NotPanics(t, func() { That(false, "compiled out") })
		return
	}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		f, ok := r.(*Failure)
		require.True(t, ok)
		assert.Equal(t, "double init 2", f.Message)
		assert.False(t, f.Release)
		assert.Equal(t, "assertion failed: double init 2", f.Error())
	}()
	That(false, "double init %d", 2)
}

func TestCrash(t *testing.T) {
	assert.NotPanics(t, func() { Crash(true, "never") })

	defer func() {
		r := recover()
		f, ok := r.(*Failure)
		require.True(t, ok)
		assert.True(t, f.Release)
		assert.Contains(t, f.Error(), "release assertion failed")
	}()
	Crash(false, "frozen")
}
