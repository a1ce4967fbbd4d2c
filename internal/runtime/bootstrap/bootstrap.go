// Package bootstrap runs the startup sequence of the runtime configuration:
// options, memory reservations, dispatch tables and callbacks are written
// into a Block, which is then finalized.
package bootstrap

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/execmem"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/hashpins"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/interpreter"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/structureheap"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/vm"
)

// PinCapacity is the number of pins reserved when pointer authentication
// is in use.
const PinCapacity = 1024

// Settings selects how the block is populated.
type Settings struct {
	// Testing disables freezing and enables restricted options.
	Testing bool
	// RestrictedOptions enables restricted options while still freezing,
	// so MutateForTesting can cycle the protection.
	RestrictedOptions bool

	// OptionsFile is a path or a doublestar glob of YAML/TOML files.
	OptionsFile string
	Options     string
	// EnvLookup reads JSC_ options; nil uses the process environment.
	EnvLookup func(string) (string, bool)

	TimeoutCheckName string
	TimeoutCheck     vm.TimeoutCheck
}

// Option configures Start.
type Option func(*starter)

// WithLogger sets the logger handed to every subsystem.
func WithLogger(log *zap.Logger) Option {
	return func(s *starter) { s.log = log }
}

// WithMetrics observes the block, interpreters and VMs.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *starter) { s.metrics = m }
}

type starter struct {
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// Runtime is a finalized block and the subsystems that own the memory it
// points at.
type Runtime struct {
	Block      *rtconfig.Block
	Config     *rtconfig.Config
	Exec       *execmem.Subsystem
	Structures *structureheap.Heap
	Pins       *hashpins.Table
	// Allocator is nil when the JIT cannot be used.
	Allocator *execmem.Allocator

	root    *zap.Logger
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// Start initializes and finalizes block. Start must run once per block.
func Start(block *rtconfig.Block, settings Settings, opts ...Option) (*Runtime, error) {
	st := starter{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&st)
	}

	block.SetLogger(st.log)
	if st.metrics != nil {
		block.SetObserver(st.metrics)
	}

	switch {
	case settings.Testing:
		block.ConfigureForTesting()
	case settings.RestrictedOptions:
		block.EnableRestrictedOptions()
	}

	rt := &Runtime{
		Block:      block,
		Exec:       execmem.NewSubsystem(st.log),
		Structures: structureheap.New(st.log),
		root:       st.log,
		log:        st.log.Named("bootstrap"),
		metrics:    st.metrics,
	}

	regs := []rtconfig.Registration{
		optionsRegistration(settings),
		rt.Exec.Registration(),
		rt.Structures.Registration(),
		rt.pinsRegistration(),
		interpreter.Registration(),
		vm.Registration(settings.TimeoutCheckName, settings.TimeoutCheck),
	}

	timer := rt.timer("initialize")
	if err := block.InitializeOnce(regs...); err != nil {
		timer.stop("error")
		return nil, errors.Join(err, rt.Close())
	}
	timer.stop("ok")

	timer = rt.timer("finalize")
	cfg, err := block.Finalize()
	if err != nil {
		timer.stop("error")
		return nil, errors.Join(fmt.Errorf("finalize: %w", err), rt.Close())
	}
	timer.stop("ok")
	rt.Config = cfg

	if cfg.Options().Bool(options.ValidateDispatchTables) {
		if err := interpreter.Validate(cfg); err != nil {
			return nil, errors.Join(fmt.Errorf("validate dispatch tables: %w", err), rt.Close())
		}
		rt.log.Info("dispatch tables validated")
	}

	if cfg.CanUseJIT() {
		alloc, err := rt.Exec.Allocator(block)
		if err != nil {
			return nil, errors.Join(err, rt.Close())
		}
		rt.Allocator = alloc
	}

	if cfg.Options().Bool(options.DumpOptions) {
		rt.dumpOptions()
	}
	rt.log.Info("runtime started",
		zap.String("state", cfg.State().String()),
		zap.Bool("frozen", block.IsPermanentlyFrozen()),
		zap.String("capabilities", cfg.Capabilities().Name()))
	return rt, nil
}

func optionsRegistration(s Settings) rtconfig.Registration {
	return rtconfig.Registration{Name: "options", Register: func(b *rtconfig.Builder) error {
		restricted := b.Config().RestrictedOptionsEnabled()
		opts := b.Options()

		if s.OptionsFile != "" {
			if err := opts.LoadGlob(s.OptionsFile, restricted); err != nil {
				return err
			}
		}
		lookup := s.EnvLookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		if err := opts.LoadEnv(options.EnvPrefix, lookup, restricted); err != nil {
			return err
		}
		if s.Options != "" {
			if err := opts.SetOptions(s.Options, restricted); err != nil {
				return err
			}
		}
		return nil
	}}
}

func (rt *Runtime) pinsRegistration() rtconfig.Registration {
	return rtconfig.Registration{Name: "hashpins", Register: func(b *rtconfig.Builder) error {
		if !rtconfig.HasPointerAuth() || !b.Config().Options().Bool(options.UsePointerAuthentication) {
			return nil
		}
		table, err := hashpins.New(PinCapacity)
		if err != nil {
			return fmt.Errorf("reserve pin table: %w", err)
		}
		rt.Pins = table
		b.SetPointerAuth(false, table.Header())
		return nil
	}}
}

func (rt *Runtime) dumpOptions() {
	for _, e := range rt.Config.Options().Dump() {
		rt.log.Info("option",
			zap.String("name", e.Name),
			zap.String("value", e.Value),
			zap.Bool("default", e.IsDefault))
	}
}

// NewInterpreter returns an interpreter over the finalized configuration.
func (rt *Runtime) NewInterpreter(opts ...interpreter.Option) (*interpreter.Interpreter, error) {
	opts = append([]interpreter.Option{interpreter.WithLogger(rt.root)}, opts...)
	if rt.metrics != nil {
		opts = append(opts, interpreter.WithObserver(rt.metrics))
	}
	return interpreter.New(rt.Config, opts...)
}

// VMConfig returns a VM configuration wired to the runtime's logger and
// metrics.
func (rt *Runtime) VMConfig() vm.Config {
	cfg := vm.DefaultConfig()
	cfg.Logger = rt.root
	if rt.metrics != nil {
		cfg.Observer = rt.metrics
	}
	return cfg
}

// NewVM creates a VM governed by the runtime's block.
func (rt *Runtime) NewVM() (*vm.VM, error) {
	return vm.New(rt.Block, rt.VMConfig())
}

// Close releases the reservations. Code and structures in them must not
// be used afterwards.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Exec != nil {
		errs = append(errs, rt.Exec.Close())
	}
	if rt.Structures != nil {
		errs = append(errs, rt.Structures.Close())
	}
	if rt.Pins != nil {
		errs = append(errs, rt.Pins.Close())
	}
	return errors.Join(errs...)
}

type phaseTimer struct {
	t *monitoring.Timer
}

func (rt *Runtime) timer(phase string) phaseTimer {
	if rt.metrics == nil {
		return phaseTimer{}
	}
	return phaseTimer{t: monitoring.NewTimer(rt.metrics, phase)}
}

func (p phaseTimer) stop(status string) {
	if p.t != nil {
		p.t.Stop(status)
	}
}
