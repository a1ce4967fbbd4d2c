// Package interpreter runs bytecode by dispatching every instruction through
// the tables of the frozen runtime configuration.
//
// Nothing in this package holds handler pointers of its own. Each opcode
// byte is looked up in the configuration's interpreter table, extended
// opcodes in their family's table, calls and throws in the gate map and
// thunks. A table entry that was never registered stops the program.
package interpreter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

var (
	ErrNotRegistered      = errors.New("interpreter tables are not registered")
	ErrInvalidOpcode      = errors.New("no handler for opcode")
	ErrStackUnderflow     = errors.New("operand stack underflow")
	ErrStackOverflow      = errors.New("operand stack overflow")
	ErrCallStackExceeded  = errors.New("maximum call stack depth exceeded")
	ErrTruncated          = errors.New("truncated instruction")
	ErrBadJump            = errors.New("jump target out of range")
	ErrBadLocal           = errors.New("local slot out of range")
	ErrNoPendingException = errors.New("handle_exception without a pending exception")
)

// MaxStack bounds the operand stack of one run.
const MaxStack = 1 << 16

// checkInterval is how many instructions run between context checks.
const checkInterval = 1024

// ThrownError is an exception no try handler caught.
type ThrownError struct {
	Value int64
	Trap  bool
}

func (e *ThrownError) Error() string {
	if e.Trap {
		return fmt.Sprintf("uncaught trap %d", e.Value)
	}
	return fmt.Sprintf("uncaught exception %d", e.Value)
}

// Observer receives per-run dispatch counts.
type Observer interface {
	Dispatched(kind rtconfig.DispatchKind, n uint64)
}

// Interpreter executes programs against one configuration.
type Interpreter struct {
	cfg      *rtconfig.Config
	heap     *Heap
	observer Observer
	log      *zap.Logger
	maxDepth int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithHeap shares a heap between interpreters.
func WithHeap(h *Heap) Option {
	return func(in *Interpreter) { in.heap = h }
}

// WithObserver reports dispatch counts after every run.
func WithObserver(o Observer) Option {
	return func(in *Interpreter) { in.observer = o }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(in *Interpreter) { in.log = log.Named("interpreter") }
}

// New creates an interpreter. The configuration must carry the tables
// installed by Registration.
func New(cfg *rtconfig.Config, opts ...Option) (*Interpreter, error) {
	if cfg.State() < rtconfig.Populated || cfg.DispatchPopulated(rtconfig.DispatchInterpreter) == 0 {
		return nil, ErrNotRegistered
	}
	in := &Interpreter{
		cfg:      cfg,
		log:      zap.NewNop(),
		maxDepth: int(cfg.Options().Unsigned(options.MaxCallStackDepth)),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.heap == nil {
		in.heap = NewHeap()
	}
	return in, nil
}

// Heap returns the interpreter's heap.
func (in *Interpreter) Heap() *Heap {
	return in.heap
}

// Run executes code from offset 0 until OpEnd and returns the top of the
// operand stack, or 0 when it is empty.
func (in *Interpreter) Run(ctx context.Context, code []byte) (int64, error) {
	m := &machine{in: in, program: code, code: code}

	entry, err := m.gate(bytecode.GateProgramEntry)
	if err != nil {
		return 0, err
	}
	if err := entry(m); err != nil {
		return 0, err
	}

	result, err := m.loop(ctx)
	in.report(m)
	if err != nil {
		in.log.Debug("run failed", zap.Int("pc", m.pc), zap.Error(err))
	}
	return result, err
}

func (in *Interpreter) report(m *machine) {
	if in.observer == nil {
		return
	}
	for k, n := range m.counts {
		if n != 0 {
			in.observer.Dispatched(rtconfig.DispatchKind(k), n)
		}
	}
}
