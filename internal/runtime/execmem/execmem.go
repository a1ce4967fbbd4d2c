// Package execmem reserves the executable memory region and installs code
// into it.
//
// The region's bounds are registered into the runtime configuration during
// startup and frozen with it. On linux the region is mapped twice from a
// memfd: an executable view that is never writable and a writable view at a
// fixed distance (separated W^X heaps). Elsewhere on unix the pages are
// toggled with mprotect around each write. Other platforms have no JIT.
package execmem

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/assert"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

var (
	ErrUnsupported  = errors.New("executable memory is not supported on this platform")
	ErrJITDisabled  = errors.New("jit is disabled")
	ErrExhausted    = errors.New("executable memory exhausted")
	ErrNotReserved  = errors.New("executable memory was not reserved")
	ErrInvalidCode  = errors.New("invalid code buffer")
	ErrNotInstalled = errors.New("address is not installed jit code")
)

// Alignment of every allocation.
const Alignment = 16

type writeFunc func(dst []byte, off int, code []byte)

var (
	writers = coderef.NewRegistry[writeFunc]()

	separateHeapsWriter = writers.MustRegister("jit_write_separate_heaps", func(dst []byte, off int, code []byte) {
		copy(dst[off:], code)
	})
)

func init() {
	writers.Seal()
}

// Handle is an installed piece of code.
type Handle struct {
	Addr uintptr
	Size int
}

type mapping struct {
	exec  []byte
	write []byte // nil unless separated
}

func (m *mapping) start() uintptr { return addrOf(m.exec) }
func (m *mapping) end() uintptr   { return addrOf(m.exec) + uintptr(len(m.exec)) }

// Subsystem owns the reservation from registration until shutdown.
type Subsystem struct {
	log *zap.Logger
	mem *mapping
}

// NewSubsystem returns an unreserved subsystem.
func NewSubsystem(log *zap.Logger) *Subsystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subsystem{log: log.Named("execmem")}
}

// Registration reserves executable memory as the options ask and records
// it. Without a reservation the JIT is disabled, unless
// crashIfCantAllocateJITMemory turns the failure into a startup error.
func (s *Subsystem) Registration() rtconfig.Registration {
	return rtconfig.Registration{Name: "execmem", Register: s.register}
}

func (s *Subsystem) register(b *rtconfig.Builder) error {
	opts := b.Config().Options()
	if !opts.Bool(options.UseJIT) {
		b.SetCanUseJIT(false)
		b.SetJITDisabled(true)
		s.log.Info("jit disabled by option")
		return nil
	}

	size := int(opts.Size(options.JITMemoryReservationSize))
	separated := opts.Bool(options.UseSeparatedWXHeap) && rtconfig.HasSeparatedWXHeap()

	mem, err := reserve(size, separated)
	if err != nil && separated {
		s.log.Warn("separated heaps unavailable, falling back", zap.Error(err))
		mem, err = reserve(size, false)
	}
	if err != nil {
		if opts.Bool(options.CrashIfCantAllocateJITMemory) {
			return fmt.Errorf("reserve %d bytes of executable memory: %w", size, err)
		}
		b.SetCanUseJIT(false)
		b.SetJITDisabled(true)
		s.log.Warn("jit disabled, no executable memory", zap.Error(err))
		return nil
	}

	s.mem = mem
	b.SetCanUseJIT(true)
	b.SetExecutableMemory(mem.start(), mem.end())
	if mem.write != nil {
		base := addrOf(mem.write)
		b.SetStartOfFixedWritableMemoryPool(base)
		b.SetUseFastJITPermissions(opts.Bool(options.UseFastJITPermissions))
		b.SetSeparatedWX(separateHeapsWriter, base)
	}
	s.log.Info("executable memory reserved",
		zap.Uintptr("start", mem.start()),
		zap.Int("size", size),
		zap.Bool("separated", mem.write != nil))
	return nil
}

// Close unmaps the reservation. Code installed in it must not run again.
func (s *Subsystem) Close() error {
	if s.mem == nil {
		return nil
	}
	err := release(s.mem)
	s.mem = nil
	return err
}

// Allocator installs code into the reservation of a finalized block.
type Allocator struct {
	block *rtconfig.Block
	cfg   *rtconfig.Config
	mem   *mapping
	write writeFunc

	mu   sync.Mutex
	used int
}

// Allocator returns the allocator for block, whose configuration must
// have been populated by this subsystem's registration.
func (s *Subsystem) Allocator(block *rtconfig.Block) (*Allocator, error) {
	cfg := block.Config()
	if !cfg.CanUseJIT() {
		return nil, ErrJITDisabled
	}
	if s.mem == nil {
		return nil, ErrNotReserved
	}
	start, end := cfg.ExecutableMemory()
	assert.Crash(start == s.mem.start() && end == s.mem.end(),
		"executable memory [%#x, %#x) does not match the reservation", start, end)

	a := &Allocator{block: block, cfg: cfg, mem: s.mem}
	if cfg.UseFastJITPermissions() {
		if wx, ok := cfg.Capabilities().(rtconfig.SeparatedWX); ok && wx.Writer.IsSet() {
			a.write, _ = writers.Lookup(wx.Writer)
		}
	}
	return a, nil
}

// Allocate copies code into executable memory.
func (a *Allocator) Allocate(code []byte) (Handle, error) {
	if len(code) == 0 {
		return Handle{}, ErrInvalidCode
	}
	if !a.cfg.CanUseJIT() {
		return Handle{}, ErrJITDisabled
	}
	if a.block.SimulateJITUnavailable() {
		return Handle{}, fmt.Errorf("%w (simulated)", ErrExhausted)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	off := a.used
	size := (len(code) + Alignment - 1) &^ (Alignment - 1)
	if off+size > len(a.mem.exec) {
		return Handle{}, ErrExhausted
	}

	if a.write != nil {
		a.write(a.mem.write, off, code)
	} else if err := writeToggled(a.mem.exec, off, code); err != nil {
		return Handle{}, err
	}
	a.used = off + size

	h := Handle{Addr: a.mem.start() + uintptr(off), Size: len(code)}
	assert.Crash(a.cfg.IsExecutableAddress(h.Addr), "allocation at %#x outside executable memory", h.Addr)
	return h, nil
}

// IsJITCode reports whether p lies inside installed code.
func (a *Allocator) IsJITCode(p uintptr) bool {
	if !a.cfg.IsExecutableAddress(p) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return p < a.mem.start()+uintptr(a.used)
}

// Code returns a copy of the installed bytes of h, read through the
// executable view.
func (a *Allocator) Code(h Handle) ([]byte, error) {
	if !a.IsJITCode(h.Addr) {
		return nil, fmt.Errorf("%w: %#x", ErrNotInstalled, h.Addr)
	}
	off := int(h.Addr - a.mem.start())
	out := make([]byte, h.Size)
	copy(out, a.mem.exec[off:off+h.Size])
	return out, nil
}

// Used returns the number of bytes handed out.
func (a *Allocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Capacity returns the size of the reservation.
func (a *Allocator) Capacity() int {
	return len(a.mem.exec)
}

// FastPermissions reports whether code is written through the separate
// writable view.
func (a *Allocator) FastPermissions() bool {
	return a.write != nil
}
