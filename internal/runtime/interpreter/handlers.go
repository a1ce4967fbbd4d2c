package interpreter

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

type handler func(m *machine) error

// thunk is a trampoline taking two integer arguments: target and argc for
// calls, arity and argc for arity fixup.
type thunk func(m *machine, a, b int) error

var (
	handlers = coderef.NewRegistry[handler]()
	thunks   = coderef.NewRegistry[thunk]()

	tableRefs [rtconfig.NumDispatchKinds][]coderef.Ref
	gateRefs  [bytecode.NumGates]coderef.Ref

	callThunkRef  coderef.Ref
	arityFixupRef coderef.Ref
)

func init() {
	register := func(kind rtconfig.DispatchKind, names []string, fns []handler) {
		refs := make([]coderef.Ref, len(fns))
		for i, fn := range fns {
			refs[i] = handlers.MustRegister(kind.String()+"."+names[i], fn)
		}
		tableRefs[kind] = refs
	}

	ops := [bytecode.NumOpcodes]handler{
		bytecode.OpNop:             opNop,
		bytecode.OpPush:            opPush,
		bytecode.OpPop:             opPop,
		bytecode.OpDup:             opDup,
		bytecode.OpAdd:             arith(func(a, b int64) int64 { return a + b }),
		bytecode.OpSub:             arith(func(a, b int64) int64 { return a - b }),
		bytecode.OpMul:             arith(func(a, b int64) int64 { return a * b }),
		bytecode.OpLess:            arith(func(a, b int64) int64 { return boolValue(a < b) }),
		bytecode.OpJump:            opJump,
		bytecode.OpJumpIfFalse:     opJumpIfFalse,
		bytecode.OpLoadLocal:       opLoadLocal,
		bytecode.OpStoreLocal:      opStoreLocal,
		bytecode.OpCall:            opCall,
		bytecode.OpEnter:           opEnter,
		bytecode.OpRet:             opRet,
		bytecode.OpTry:             opTry,
		bytecode.OpThrow:           opThrow,
		bytecode.OpHandleException: opHandleException,
		bytecode.OpEnd:             opEnd,
		bytecode.OpExtGC:           extended(rtconfig.DispatchGC),
		bytecode.OpExtConversion:   extended(rtconfig.DispatchConversion),
		bytecode.OpExtSIMD:         extended(rtconfig.DispatchSIMD),
		bytecode.OpExtAtomic:       extended(rtconfig.DispatchAtomic),
	}
	register(rtconfig.DispatchInterpreter, names(bytecode.NumOpcodes, func(i int) string { return bytecode.Opcode(i).String() }), ops[:])

	register(rtconfig.DispatchGC,
		names(bytecode.NumGCOps, func(i int) string { return bytecode.GCOp(i).String() }),
		[]handler{gcLoadCell, gcStoreCell})
	register(rtconfig.DispatchConversion,
		names(bytecode.NumConversionOps, func(i int) string { return bytecode.ConversionOp(i).String() }),
		[]handler{
			convert(func(v int64) int64 { return int64(int32(v)) }),
			convert(func(v int64) int64 { return int64(int8(v)) }),
			convert(func(v int64) int64 { return int64(uint16(v)) }),
		})
	register(rtconfig.DispatchSIMD,
		names(bytecode.NumSIMDOps, func(i int) string { return bytecode.SIMDOp(i).String() }),
		[]handler{simdAddI16x4, simdSplatI16x4})
	register(rtconfig.DispatchAtomic,
		names(bytecode.NumAtomicOps, func(i int) string { return bytecode.AtomicOp(i).String() }),
		[]handler{atomicLoad, atomicAdd})

	gates := [bytecode.NumGates]handler{
		bytecode.GateProgramEntry:    gateProgramEntry,
		bytecode.GateFunctionCall:    gateFunctionCall,
		bytecode.GateHandleException: gateHandleException,
	}
	for g, fn := range gates {
		gateRefs[g] = handlers.MustRegister("gate."+bytecode.Gate(g).String(), fn)
	}

	callThunkRef = thunks.MustRegister("thunk.default_call", defaultCallThunk)
	arityFixupRef = thunks.MustRegister("thunk.arity_fixup", arityFixupThunk)

	handlers.Seal()
	thunks.Seal()
}

func names[N ~uint8](n N, name func(int) string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name(i)
	}
	return out
}

// Registration installs the interpreter's tables, gates and thunks.
func Registration() rtconfig.Registration {
	return rtconfig.Registration{Name: "interpreter", Register: func(b *rtconfig.Builder) error {
		for kind, refs := range tableRefs {
			for i, ref := range refs {
				b.SetDispatch(rtconfig.DispatchKind(kind), uint8(i), ref)
			}
		}
		for g, ref := range gateRefs {
			b.SetGate(bytecode.Gate(g), ref)
		}
		b.SetDefaultCallThunk(callThunkRef)
		b.SetArityFixupThunk(arityFixupRef)
		return nil
	}}
}

// Validate checks every table entry, gate and thunk of cfg against the
// handler registry: defined opcodes must map to their own handler and
// nothing else may be set.
func Validate(cfg *rtconfig.Config) error {
	var errs []error
	for k := rtconfig.DispatchKind(0); k < rtconfig.NumDispatchKinds; k++ {
		want := tableRefs[k]
		for i := 0; i < bytecode.DispatchTableSize; i++ {
			got := cfg.Dispatch(k, uint8(i))
			var expect coderef.Ref
			if i < len(want) {
				expect = want[i]
			}
			if got != expect {
				errs = append(errs, fmt.Errorf("%s[%d] is %q, want %q", k, i, handlers.Name(got), handlers.Name(expect)))
			}
		}
	}
	for g := bytecode.Gate(0); g < bytecode.NumGates; g++ {
		if got := cfg.Gate(g); got != gateRefs[g] {
			errs = append(errs, fmt.Errorf("gate %s is %q", g, handlers.Name(got)))
		}
	}
	if got := cfg.DefaultCallThunk(); got != callThunkRef {
		errs = append(errs, fmt.Errorf("default call thunk is %q", thunks.Name(got)))
	}
	if got := cfg.ArityFixupThunk(); got != arityFixupRef {
		errs = append(errs, fmt.Errorf("arity fixup thunk is %q", thunks.Name(got)))
	}
	return errors.Join(errs...)
}

// HandlerName returns the registered name behind a dispatch entry.
func HandlerName(ref coderef.Ref) string {
	return handlers.Name(ref)
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func opNop(*machine) error { return nil }

func opPush(m *machine) error {
	v, err := m.i64()
	if err != nil {
		return err
	}
	return m.push(v)
}

func opPop(m *machine) error {
	_, err := m.pop()
	return err
}

func opDup(m *machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	m.stack = append(m.stack, v)
	return m.push(v)
}

func arith(fn func(a, b int64) int64) handler {
	return func(m *machine) error {
		a, b, err := m.pop2()
		if err != nil {
			return err
		}
		return m.push(fn(a, b))
	}
}

func opJump(m *machine) error {
	t, err := m.u32()
	if err != nil {
		return err
	}
	return m.jumpTo(t)
}

func opJumpIfFalse(m *machine) error {
	t, err := m.u32()
	if err != nil {
		return err
	}
	v, err := m.pop()
	if err != nil {
		return err
	}
	if v == 0 {
		return m.jumpTo(t)
	}
	return nil
}

func (m *machine) local() (int, error) {
	slot, err := m.u8()
	if err != nil {
		return 0, err
	}
	idx := m.top().base + int(slot)
	if idx >= len(m.stack) {
		return 0, fmt.Errorf("%w: %d", ErrBadLocal, slot)
	}
	return idx, nil
}

func opLoadLocal(m *machine) error {
	idx, err := m.local()
	if err != nil {
		return err
	}
	return m.push(m.stack[idx])
}

func opStoreLocal(m *machine) error {
	idx, err := m.local()
	if err != nil {
		return err
	}
	v, err := m.pop()
	if err != nil {
		return err
	}
	if idx >= len(m.stack) {
		return fmt.Errorf("%w: %d", ErrBadLocal, idx-m.top().base)
	}
	m.stack[idx] = v
	return nil
}

func opCall(m *machine) error {
	argc, err := m.u8()
	if err != nil {
		return err
	}
	target, err := m.u32()
	if err != nil {
		return err
	}
	m.call = pendingCall{target: target, argc: int(argc)}
	g, err := m.gate(bytecode.GateFunctionCall)
	if err != nil {
		return err
	}
	return g(m)
}

func opEnter(m *machine) error {
	arity, err := m.u8()
	if err != nil {
		return err
	}
	locals, err := m.u8()
	if err != nil {
		return err
	}
	if f := m.top(); f.argc != int(arity) {
		fix, err := m.thunk(m.in.cfg.ArityFixupThunk())
		if err != nil {
			return err
		}
		if err := fix(m, int(arity), f.argc); err != nil {
			return err
		}
	}
	for i := 0; i < int(locals); i++ {
		if err := m.push(0); err != nil {
			return err
		}
	}
	return nil
}

func opRet(m *machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if len(m.frames) == 1 {
		m.halted = true
		m.result = v
		return nil
	}
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	m.stack = m.stack[:f.base]
	for len(m.tries) > 0 && m.tries[len(m.tries)-1].frames > len(m.frames) {
		m.tries = m.tries[:len(m.tries)-1]
	}
	m.pc = f.returnPC
	return m.push(v)
}

func opTry(m *machine) error {
	h, err := m.u32()
	if err != nil {
		return err
	}
	if h >= len(m.program) {
		return fmt.Errorf("%w: %d", ErrBadJump, h)
	}
	m.tries = append(m.tries, tryRecord{handler: h, depth: len(m.stack), frames: len(m.frames)})
	return nil
}

func opThrow(m *machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	m.throw(v, false)
	return nil
}

func opHandleException(m *machine) error {
	if !m.throwing {
		return ErrNoPendingException
	}
	g, err := m.gate(bytecode.GateHandleException)
	if err != nil {
		return err
	}
	return g(m)
}

func opEnd(m *machine) error {
	m.halted = true
	if n := len(m.stack); n > 0 {
		m.result = m.stack[n-1]
	}
	return nil
}

func extended(kind rtconfig.DispatchKind) handler {
	return func(m *machine) error {
		return m.dispatchExtended(kind)
	}
}

func gateProgramEntry(m *machine) error {
	m.frames = append(m.frames[:0], frame{returnPC: -1})
	m.pc = 0
	return nil
}

func gateFunctionCall(m *machine) error {
	call, err := m.thunk(m.in.cfg.DefaultCallThunk())
	if err != nil {
		return err
	}
	return call(m, m.call.target, m.call.argc)
}

func gateHandleException(m *machine) error {
	if len(m.tries) == 0 {
		return &ThrownError{Value: m.exception, Trap: m.trap}
	}
	t := m.tries[len(m.tries)-1]
	m.tries = m.tries[:len(m.tries)-1]
	m.frames = m.frames[:t.frames]
	if t.depth < len(m.stack) {
		m.stack = m.stack[:t.depth]
	}
	m.code = m.program
	m.throwing = false
	if err := m.push(m.exception); err != nil {
		return err
	}
	return m.jumpTo(t.handler)
}

func defaultCallThunk(m *machine, target, argc int) error {
	if len(m.frames) > m.in.maxDepth {
		return ErrCallStackExceeded
	}
	if argc > len(m.stack) {
		return ErrStackUnderflow
	}
	m.frames = append(m.frames, frame{returnPC: m.pc, base: len(m.stack) - argc, argc: argc})
	return m.jumpTo(target)
}

func arityFixupThunk(m *machine, arity, argc int) error {
	f := m.top()
	for ; argc < arity; argc++ {
		if err := m.push(0); err != nil {
			return err
		}
	}
	m.stack = m.stack[:f.base+arity]
	f.argc = arity
	return nil
}
