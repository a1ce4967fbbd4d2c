// Package vm hosts JavaScript VMs (goja) under the runtime configuration.
//
// Creation is refused when the configuration disallows VM creation and
// entry when the late-bound entry latch is set. Stack depth and the
// watchdog period come from the frozen options.
package vm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

// VM wraps a goja runtime with the configuration's controls.
type VM struct {
	id     uuid.UUID
	policy Policy
	cfg    *rtconfig.Config
	config Config
	log    *zap.Logger

	mu      sync.Mutex
	rt      *goja.Runtime
	timeout time.Duration

	consoleMu sync.Mutex
	console   []LogEntry
}

// New creates a VM.
func New(policy Policy, config Config) (*VM, error) {
	cfg := policy.Config()
	if !cfg.CanCreateVM() {
		return nil, ErrVMCreationDisallowed
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	v := &VM{
		id:      uuid.New(),
		policy:  policy,
		cfg:     cfg,
		config:  config,
		timeout: cfg.Options().Duration(options.WatchdogTimeout),
	}
	v.log = log.Named("vm").With(zap.String("id", v.id.String()))

	if err := v.setup(); err != nil {
		return nil, err
	}
	if config.Observer != nil {
		config.Observer.VMCreated()
	}
	v.log.Debug("vm created", zap.Duration("watchdog", v.timeout))
	return v, nil
}

// ID returns the VM's identifier.
func (v *VM) ID() uuid.UUID {
	return v.id
}

func (v *VM) setup() error {
	rt := goja.New()
	rt.SetMaxCallStackSize(int(v.cfg.Options().Unsigned(options.MaxCallStackDepth)))

	// Host escape hatches stay undefined.
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := rt.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if v.config.EnableConsole {
		console := rt.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(level, v.consoleFunc(level)); err != nil {
				return err
			}
		}
		if err := rt.Set("console", console); err != nil {
			return err
		}
	}

	if v.cfg.RestrictedOptionsEnabled() && v.cfg.Options().Bool(options.UseDollarVM) {
		if err := rt.Set("$vm", v.dollarVM(rt)); err != nil {
			return err
		}
	}

	v.rt = rt
	return nil
}

func (v *VM) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		v.consoleMu.Lock()
		v.console = append(v.console, LogEntry{Level: level, Message: strings.Join(parts, " "), Time: time.Now()})
		v.consoleMu.Unlock()
		return goja.Undefined()
	}
}

// dollarVM is the testing object: read-only views of the configuration.
func (v *VM) dollarVM(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	_ = obj.Set("state", func() string { return v.cfg.State().String() })
	_ = obj.Set("canUseJIT", func() bool { return v.cfg.CanUseJIT() })
	_ = obj.Set("option", func(name string) goja.Value {
		for _, e := range v.cfg.Options().Dump() {
			if e.Name == name {
				return rt.ToValue(e.Value)
			}
		}
		return goja.Undefined()
	})
	return obj
}

// Execute runs script. The context and the watchdog interrupt it.
func (v *VM) Execute(ctx context.Context, script string) (*Result, error) {
	if v.policy.VMEntryDisallowed() {
		return nil, ErrVMEntryDisallowed
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rt == nil {
		return nil, ErrClosed
	}

	v.consoleMu.Lock()
	v.console = nil
	v.consoleMu.Unlock()

	start := time.Now()
	done, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		v.watch(ctx, v.rt, done, start)
	}()

	val, err := v.rt.RunString(script)
	close(done)
	<-stopped
	v.rt.ClearInterrupt()

	result := &Result{VM: v.id, Duration: time.Since(start)}
	v.consoleMu.Lock()
	result.Console = append([]LogEntry(nil), v.console...)
	v.consoleMu.Unlock()

	err = interruptCause(err)
	if v.config.Observer != nil {
		v.config.Observer.ScriptExecuted(result.Duration, err)
	}
	if err != nil {
		v.log.Debug("script failed", zap.Error(err), zap.Duration("duration", result.Duration))
		return result, err
	}
	result.Value = exportValue(val)
	return result, nil
}

// watch interrupts the script on cancellation, and each time the watchdog
// period passes unless the timeout check grants more time.
func (v *VM) watch(ctx context.Context, rt *goja.Runtime, done <-chan struct{}, start time.Time) {
	var tick <-chan time.Time
	if v.timeout > 0 {
		ticker := time.NewTicker(v.timeout)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
			return
		case <-tick:
			elapsed := time.Since(start)
			if v.terminate(elapsed) {
				v.log.Warn("script terminated by watchdog", zap.Duration("elapsed", elapsed))
				rt.Interrupt(ErrTimeout)
				return
			}
		}
	}
}

func (v *VM) terminate(elapsed time.Duration) bool {
	check, ok := timeoutChecks.Lookup(v.cfg.ShellTimeoutCheckCallback())
	if !ok {
		return true
	}
	return check(v.id, elapsed)
}

func interruptCause(err error) error {
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		return err
	}
	if cause, ok := interrupted.Value().(error); ok {
		return fmt.Errorf("interrupted: %w", cause)
	}
	return err
}

func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Reset discards all script state.
func (v *VM) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rt == nil {
		return ErrClosed
	}
	v.consoleMu.Lock()
	v.console = nil
	v.consoleMu.Unlock()
	return v.setup()
}

// Close releases the runtime.
func (v *VM) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rt == nil {
		return nil
	}
	v.rt = nil
	if v.config.Observer != nil {
		v.config.Observer.VMClosed()
	}
	return nil
}
