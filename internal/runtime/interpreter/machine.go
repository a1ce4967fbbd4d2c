package interpreter

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

type frame struct {
	returnPC int
	base     int
	argc     int
}

type tryRecord struct {
	handler int
	depth   int
	frames  int
}

type pendingCall struct {
	target int
	argc   int
}

type machine struct {
	in *Interpreter

	program []byte
	code    []byte // program, or an exception stream while unwinding
	pc      int

	stack  []int64
	frames []frame
	tries  []tryRecord
	call   pendingCall

	exception int64
	trap      bool
	throwing  bool
	halted    bool
	result    int64
	counts    [rtconfig.NumDispatchKinds]uint64
}

func (m *machine) loop(ctx context.Context) (int64, error) {
	cfg := m.in.cfg
	for steps := 0; !m.halted; steps++ {
		if steps%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if m.pc >= len(m.code) {
			return 0, fmt.Errorf("pc %d: %w", m.pc, ErrTruncated)
		}
		op := m.code[m.pc]
		h, ok := handlers.Lookup(cfg.Dispatch(rtconfig.DispatchInterpreter, op))
		if !ok {
			return 0, fmt.Errorf("%w %s at %d", ErrInvalidOpcode, bytecode.Opcode(op), m.pc)
		}
		m.counts[rtconfig.DispatchInterpreter]++
		m.pc++
		if err := h(m); err != nil {
			return 0, err
		}
	}
	return m.result, nil
}

// dispatchExtended runs sub-opcode sub of an extended family.
func (m *machine) dispatchExtended(kind rtconfig.DispatchKind) error {
	sub, err := m.u8()
	if err != nil {
		return err
	}
	h, ok := handlers.Lookup(m.in.cfg.Dispatch(kind, sub))
	if !ok {
		return fmt.Errorf("%w %s/%d at %d", ErrInvalidOpcode, kind, sub, m.pc-2)
	}
	m.counts[kind]++
	return h(m)
}

func (m *machine) gate(g bytecode.Gate) (handler, error) {
	h, ok := handlers.Lookup(m.in.cfg.Gate(g))
	if !ok {
		return nil, fmt.Errorf("gate %s: %w", g, ErrNotRegistered)
	}
	return h, nil
}

func (m *machine) thunk(ref coderef.Ref) (thunk, error) {
	t, ok := thunks.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("thunk %d: %w", ref, ErrNotRegistered)
	}
	return t, nil
}

// throw starts unwinding with v through the configured exception stream.
func (m *machine) throw(v int64, trap bool) {
	m.exception = v
	m.trap = trap
	m.throwing = true
	if trap {
		m.code = m.in.cfg.WasmExceptionInstructions()
	} else {
		m.code = m.in.cfg.ExceptionInstructions()
	}
	m.pc = 0
}

func (m *machine) push(v int64) error {
	if len(m.stack) >= MaxStack {
		return ErrStackOverflow
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *machine) pop() (int64, error) {
	n := len(m.stack)
	if n == 0 {
		return 0, ErrStackUnderflow
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, nil
}

func (m *machine) pop2() (a, b int64, err error) {
	if b, err = m.pop(); err != nil {
		return
	}
	a, err = m.pop()
	return
}

func (m *machine) top() *frame {
	return &m.frames[len(m.frames)-1]
}

func (m *machine) operand(n int) ([]byte, error) {
	if m.pc+n > len(m.code) {
		return nil, fmt.Errorf("pc %d: %w", m.pc, ErrTruncated)
	}
	b := m.code[m.pc : m.pc+n]
	m.pc += n
	return b, nil
}

func (m *machine) u8() (uint8, error) {
	b, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *machine) u32() (int, error) {
	b, err := m.operand(4)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(b)), nil
}

func (m *machine) i64() (int64, error) {
	b, err := m.operand(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (m *machine) jumpTo(target int) error {
	if target >= len(m.program) {
		return fmt.Errorf("%w: %d", ErrBadJump, target)
	}
	m.pc = target
	return nil
}
