// Package assert provides the runtime's invariant checks.
//
// Two flavours exist:
//   - That: debug assertions, compiled out with -tags release
//   - Crash: release assertions, always checked
//
// A failed check panics with a *Failure. Nothing in the runtime recovers
// from it; the process is expected to die.
package assert

import "fmt"

// Failure is the panic value of a failed assertion.
type Failure struct {
	Message string
	Release bool
}

func (f *Failure) Error() string {
	if f.Release {
		return "release assertion failed: " + f.Message
	}
	return "assertion failed: " + f.Message
}

// That panics with a *Failure when cond is false and debug assertions are
// compiled in. In release builds it does nothing.
func That(cond bool, format string, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(&Failure{Message: fmt.Sprintf(format, args...)})
}

// Crash panics with a *Failure when cond is false, in every build.
func Crash(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(&Failure{Message: fmt.Sprintf(format, args...), Release: true})
}
