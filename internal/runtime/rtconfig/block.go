package rtconfig

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/assert"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
)

var (
	ErrNotInitialized    = errors.New("runtime configuration is not initialized")
	ErrNotFinalized      = errors.New("runtime configuration is not finalized")
	ErrTestingGateClosed = errors.New("restricted options are not enabled")
)

// freezeRegion is swapped in tests to fail the protection syscall.
var freezeRegion = (*region.Region).Finalize

// Observer is told about lifecycle transitions and protection syscalls.
type Observer interface {
	StateChanged(from, to State)
	Protection(op string, err error)
}

// Registration is one subsystem's startup callback. It runs once, inside
// InitializeOnce, and fills its fields through the Builder.
type Registration struct {
	Name     string
	Register func(*Builder) error
}

// Block binds a Config to the region that holds it.
type Block struct {
	region   *region.Region
	config   *Config
	mutable  *mutableSection
	log      *zap.Logger
	observer Observer
}

var singleton Block

func init() {
	singleton.attach(region.Process())
}

// Singleton returns the process-wide block. The Config it guards lives in
// the process region, so the address never changes.
func Singleton() *Block {
	return &singleton
}

// New places a block in r. The region must be freshly reserved.
func New(r *region.Region) *Block {
	b := &Block{}
	b.attach(r)
	return b
}

func (b *Block) attach(r *region.Region) {
	b.region = r
	b.config = (*Config)(r.Extension())
	b.mutable = (*mutableSection)(r.PermittedMutation())
	b.log = zap.NewNop()
}

// SetLogger replaces the block's logger. Call it before InitializeOnce.
func (b *Block) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	b.log = log.Named("rtconfig")
}

// SetObserver installs an observer. Call it before InitializeOnce.
func (b *Block) SetObserver(o Observer) {
	b.observer = o
}

// Config returns the protected configuration.
func (b *Block) Config() *Config {
	return b.config
}

// Region returns the region backing the block.
func (b *Block) Region() *region.Region {
	return b.region
}

// Builder returns a writer over the block. Its setters fault once the
// block is frozen.
func (b *Block) Builder() *Builder {
	return &Builder{block: b}
}

// InitializeOnce writes the defaults and runs every registration in order.
// Calling it twice is a bug; debug builds assert.
func (b *Block) InitializeOnce(regs ...Registration) error {
	c := b.config
	assert.That(!c.initializeHasBeenCalled, "InitializeOnce called twice (state %s)", c.state)

	b.region.CheckWritable()
	c.initializeHasBeenCalled = true
	b.transition(Initializing)

	b.validateLayout()
	b.writeDefaults()

	builder := b.Builder()
	for _, reg := range regs {
		if err := reg.Register(builder); err != nil {
			b.log.Error("registration failed", zap.String("subsystem", reg.Name), zap.Error(err))
			return fmt.Errorf("register %s: %w", reg.Name, err)
		}
		b.log.Debug("registration complete", zap.String("subsystem", reg.Name))
	}

	b.transition(Populated)
	b.log.Info("runtime configuration populated",
		zap.Int("registrations", len(regs)),
		zap.Bool("canUseJIT", c.CanUseJIT()),
		zap.String("capabilities", c.Capabilities().Name()))
	return nil
}

func (b *Block) writeDefaults() {
	c := b.config
	for i := range c.llint.exceptionInstructions {
		c.llint.exceptionInstructions[i] = byte(bytecode.OpHandleException)
		c.llint.wasmExceptionInstructions[i] = byte(bytecode.OpHandleException)
	}
}

// Finalize freezes the block and returns the now read-only Config. With
// freezing disabled for testing the block moves to Finalized and stays
// writable. Finalize is idempotent.
func (b *Block) Finalize() (*Config, error) {
	c := b.config
	switch c.state {
	case Frozen, Finalized:
		return c, nil
	case Populated:
	default:
		return nil, fmt.Errorf("finalize in state %s: %w", c.state, ErrNotInitialized)
	}

	if b.region.FreezingDisabled() {
		b.transition(Finalized)
		b.log.Warn("runtime configuration finalized without freezing")
		return c, nil
	}

	// The state word sits in the protected pages, so it is written before
	// they go read-only and rolled back if the protection change fails.
	b.transition(Frozen)
	err := freezeRegion(b.region)
	b.notifyProtection("freeze", err)
	if err != nil {
		c.state = Populated
		if b.observer != nil {
			b.observer.StateChanged(Frozen, Populated)
		}
		return nil, err
	}
	b.log.Info("runtime configuration frozen",
		zap.String("base", fmt.Sprintf("%#x", b.region.Base())),
		zap.Uintptr("protectedSize", b.region.ProtectedSize()))
	return c, nil
}

// IsPermanentlyFrozen reports whether the protected pages are read-only.
func (b *Block) IsPermanentlyFrozen() bool {
	return b.region.IsPermanentlyFrozen()
}

// DisableFreezingForTesting makes Finalize skip the page protection.
func (b *Block) DisableFreezingForTesting() {
	b.assertNotFrozen("DisableFreezingForTesting")
	b.region.DisableFreezingForTesting()
}

// EnableRestrictedOptions opens the testing gate: restricted options become
// settable and a frozen block may later be cycled by MutateForTesting.
func (b *Block) EnableRestrictedOptions() {
	b.assertNotFrozen("EnableRestrictedOptions")
	b.region.CheckWritable()
	b.config.restrictedOptionsEnabled = true
	b.region.AllowUnprotectForTesting()
}

// ConfigureForTesting disables freezing and enables restricted options.
// The region is reserved read-write, so the pages need no further
// permission change here.
func (b *Block) ConfigureForTesting() {
	b.assertNotFrozen("ConfigureForTesting")
	b.DisableFreezingForTesting()
	b.EnableRestrictedOptions()
	b.log.Warn("runtime configuration configured for testing")
}

// MutateForTesting runs fn against a writable view of a finalized block.
// A frozen block goes through Unprotected and back to Frozen.
func (b *Block) MutateForTesting(fn func(*Builder)) error {
	if err := b.checkTestingGate("MutateForTesting"); err != nil {
		return err
	}
	c := b.config
	switch c.state {
	case Finalized:
		fn(b.Builder())
		b.mutable.testingMutations.Add(1)
		return nil
	case Frozen:
	default:
		return fmt.Errorf("mutate in state %s: %w", c.state, ErrNotFinalized)
	}

	err := b.region.Unprotect()
	b.notifyProtection("unprotect", err)
	if err != nil {
		return err
	}
	b.transition(Unprotected)
	if err := b.mutateUnprotected(fn); err != nil {
		return err
	}
	b.mutable.testingMutations.Add(1)
	b.log.Debug("testing mutation applied", zap.Uint64("mutations", b.mutable.testingMutations.Load()))
	return nil
}

// mutateUnprotected runs fn and refreezes the block even when fn panics.
func (b *Block) mutateUnprotected(fn func(*Builder)) (err error) {
	defer func() {
		b.transition(Populated)
		b.transition(Frozen)
		perr := b.region.Reprotect()
		b.notifyProtection("reprotect", perr)
		if err == nil {
			err = perr
		}
	}()
	fn(b.Builder())
	return nil
}

// SetSimulateJITUnavailableForTesting makes JIT allocation fail as if
// executable memory were exhausted. The flag lives outside the frozen
// pages and may be toggled at any time once the testing gate is open.
func (b *Block) SetSimulateJITUnavailableForTesting(v bool) error {
	if err := b.checkTestingGate("SetSimulateJITUnavailableForTesting"); err != nil {
		return err
	}
	b.mutable.simulateJITUnavailable.Store(v)
	b.mutable.testingMutations.Add(1)
	return nil
}

// SimulateJITUnavailable reports the testing toggle.
func (b *Block) SimulateJITUnavailable() bool {
	return b.mutable.simulateJITUnavailable.Load()
}

// DisallowVMEntry stops every VM from running more code. It cannot be
// undone.
func (b *Block) DisallowVMEntry() {
	if !b.mutable.vmEntryDisallowed.Swap(true) {
		b.log.Warn("vm entry disallowed")
	}
}

// VMEntryDisallowed reports whether DisallowVMEntry was called.
func (b *Block) VMEntryDisallowed() bool {
	return b.mutable.vmEntryDisallowed.Load()
}

// TestingMutations returns how many testing mutations were applied.
func (b *Block) TestingMutations() uint64 {
	return b.mutable.testingMutations.Load()
}

func (b *Block) checkTestingGate(op string) error {
	if b.config.restrictedOptionsEnabled {
		return nil
	}
	assert.That(false, "%s without restricted options", op)
	b.log.Error("testing override refused", zap.String("op", op))
	return fmt.Errorf("%s: %w", op, ErrTestingGateClosed)
}

func (b *Block) assertNotFrozen(op string) {
	assert.That(!b.region.IsPermanentlyFrozen(), "%s after the configuration was frozen", op)
}

func (b *Block) transition(to State) {
	c := b.config
	from := c.state
	assert.That(validTransition(from, to), "invalid state transition %s -> %s", from, to)
	c.state = to
	if b.observer != nil {
		b.observer.StateChanged(from, to)
	}
}

func (b *Block) notifyProtection(op string, err error) {
	if err != nil {
		b.log.Error("protection change failed", zap.String("op", op), zap.Error(err))
	}
	if b.observer != nil {
		b.observer.Protection(op, err)
	}
}

func panicLayout(format string, args ...any) {
	assert.Crash(false, "config layout: "+format, args...)
}
