// Package testutil provides helpers for tests that expect the process to
// die: hardware faults on frozen pages and failed assertions.
package testutil

import (
	"errors"
	"os"
	"os/exec"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

const crasherEnv = "JSRUNTIME_CRASHER"

// IsCrasher reports whether the running test binary is the child spawned by
// RunCrasher for the test called name.
func IsCrasher(name string) bool {
	return os.Getenv(crasherEnv) == name
}

// RunCrasher re-executes the test binary running only the test called name,
// with the crasher marker set. It returns the child's combined output and
// its exit error.
func RunCrasher(t *testing.T, name string, env ...string) (string, error) {
	t.Helper()

	cmd := exec.Command(os.Args[0], "-test.run=^"+name+"$", "-test.count=1", "-test.v")
	cmd.Env = append(append(os.Environ(), crasherEnv+"="+name), env...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RequireCrashed fails the test unless the child exited abnormally.
func RequireCrashed(t *testing.T, out string, err error) {
	t.Helper()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "child exited cleanly:\n%s", out)
	require.False(t, exitErr.Success(), "child exited cleanly:\n%s", out)
}

// Faults runs fn with panic-on-fault enabled for the calling goroutine and
// reports whether it hit a memory fault. Other panics propagate.
func Faults(fn func()) (faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(interface{ Addr() uintptr }); ok {
			faulted = true
			return
		}
		panic(r)
	}()

	fn()
	return false
}
