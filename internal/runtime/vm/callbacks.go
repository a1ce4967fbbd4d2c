package vm

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

var timeoutChecks = coderef.NewRegistry[TimeoutCheck]()

// Registration records check as the shell timeout check callback. Every
// call gets its own entry, so blocks sharing a name keep their own check.
// A nil check leaves the callback unset, so the watchdog always terminates.
func Registration(name string, check TimeoutCheck) rtconfig.Registration {
	return rtconfig.Registration{Name: "vm", Register: func(b *rtconfig.Builder) error {
		if check == nil {
			return nil
		}
		ref, err := timeoutChecks.Add(name, check)
		if err != nil {
			return fmt.Errorf("register timeout check %q: %w", name, err)
		}
		b.SetShellTimeoutCheckCallback(ref)
		return nil
	}}
}

// TimeoutCheckName returns the name of the callback registered in cfg.
func TimeoutCheckName(cfg *rtconfig.Config) string {
	return timeoutChecks.Name(cfg.ShellTimeoutCheckCallback())
}
