package interpreter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

func newBlock(t *testing.T, restricted bool, regs ...rtconfig.Registration) *rtconfig.Block {
	t.Helper()
	r, err := region.Reserve()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Release() })

	b := rtconfig.New(r)
	if restricted {
		b.EnableRestrictedOptions()
	}
	require.NoError(t, b.InitializeOnce(append([]rtconfig.Registration{Registration()}, regs...)...))
	_, err = b.Finalize()
	require.NoError(t, err)
	return b
}

func newInterpreter(t *testing.T, opts ...Option) *Interpreter {
	t.Helper()
	in, err := New(newBlock(t, false).Config(), opts...)
	require.NoError(t, err)
	return in
}

func assemble(t *testing.T, build func(a *bytecode.Assembler)) []byte {
	t.Helper()
	var a bytecode.Assembler
	build(&a)
	code, err := a.Bytes()
	require.NoError(t, err)
	return code
}

func run(t *testing.T, in *Interpreter, code []byte) (int64, error) {
	t.Helper()
	return in.Run(context.Background(), code)
}

func TestRegistrationFillsTables(t *testing.T) {
	c := newBlock(t, false).Config()

	assert.Equal(t, int(bytecode.NumOpcodes), c.DispatchPopulated(rtconfig.DispatchInterpreter))
	assert.Equal(t, int(bytecode.NumGCOps), c.DispatchPopulated(rtconfig.DispatchGC))
	assert.Equal(t, int(bytecode.NumConversionOps), c.DispatchPopulated(rtconfig.DispatchConversion))
	assert.Equal(t, int(bytecode.NumSIMDOps), c.DispatchPopulated(rtconfig.DispatchSIMD))
	assert.Equal(t, int(bytecode.NumAtomicOps), c.DispatchPopulated(rtconfig.DispatchAtomic))
	for g := bytecode.Gate(0); g < bytecode.NumGates; g++ {
		assert.True(t, c.Gate(g).IsSet(), g.String())
	}
	assert.Equal(t, "interpreter.add", HandlerName(c.Dispatch(rtconfig.DispatchInterpreter, uint8(bytecode.OpAdd))))
	assert.Equal(t, "atomic.atomic_add", HandlerName(c.Dispatch(rtconfig.DispatchAtomic, uint8(bytecode.AtomicAdd))))
	assert.NoError(t, Validate(c))
}

func TestNewRequiresRegistration(t *testing.T) {
	r, err := region.Reserve()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Release() })
	b := rtconfig.New(r)

	_, err = New(b.Config())
	assert.ErrorIs(t, err, ErrNotRegistered)

	require.NoError(t, b.InitializeOnce())
	_, err = New(b.Config())
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestArithmetic(t *testing.T) {
	in := newInterpreter(t)
	code := assemble(t, func(a *bytecode.Assembler) {
		a.Push(2).Push(3).Op(bytecode.OpAdd).Push(4).Op(bytecode.OpMul)
		a.Push(1).Op(bytecode.OpSub).Op(bytecode.OpEnd)
	})
	v, err := run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(19), v)
}

func TestLoop(t *testing.T) {
	in := newInterpreter(t)
	code := assemble(t, func(a *bytecode.Assembler) {
		loop, done := a.NewLabel(), a.NewLabel()
		a.Enter(0, 2)
		a.Push(1).Local(bytecode.OpStoreLocal, 0)
		a.Mark(loop)
		a.Local(bytecode.OpLoadLocal, 0).Push(11).Op(bytecode.OpLess).Jump(bytecode.OpJumpIfFalse, done)
		a.Local(bytecode.OpLoadLocal, 1).Local(bytecode.OpLoadLocal, 0).Op(bytecode.OpAdd).Local(bytecode.OpStoreLocal, 1)
		a.Local(bytecode.OpLoadLocal, 0).Push(1).Op(bytecode.OpAdd).Local(bytecode.OpStoreLocal, 0)
		a.Jump(bytecode.OpJump, loop)
		a.Mark(done)
		a.Local(bytecode.OpLoadLocal, 1).Op(bytecode.OpEnd)
	})
	v, err := run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(55), v)
}

// addTwo assembles main followed by a two-argument function returning the
// sum of its arguments.
func addTwo(t *testing.T, main func(a *bytecode.Assembler, fn bytecode.Label)) []byte {
	return assemble(t, func(a *bytecode.Assembler) {
		fn := a.NewLabel()
		main(a, fn)
		a.Mark(fn)
		a.Enter(2, 0).Local(bytecode.OpLoadLocal, 0).Local(bytecode.OpLoadLocal, 1).Op(bytecode.OpAdd).Op(bytecode.OpRet)
	})
}

func TestCalls(t *testing.T) {
	tests := []struct {
		name string
		main func(a *bytecode.Assembler, fn bytecode.Label)
		want int64
	}{
		{"exact arity", func(a *bytecode.Assembler, fn bytecode.Label) {
			a.Push(5).Push(7).Call(2, fn).Op(bytecode.OpEnd)
		}, 12},
		{"missing argument is padded", func(a *bytecode.Assembler, fn bytecode.Label) {
			a.Push(5).Call(1, fn).Op(bytecode.OpEnd)
		}, 5},
		{"extra argument is dropped", func(a *bytecode.Assembler, fn bytecode.Label) {
			a.Push(100).Push(1).Push(2).Push(3).Call(3, fn).Op(bytecode.OpAdd).Op(bytecode.OpEnd)
		}, 103},
		{"nested calls", func(a *bytecode.Assembler, fn bytecode.Label) {
			a.Push(1).Push(2).Call(2, fn).Push(3).Call(2, fn).Op(bytecode.OpEnd)
		}, 6},
	}
	in := newInterpreter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := run(t, in, addTwo(t, tt.main))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestRetAtTopLevelEnds(t *testing.T) {
	in := newInterpreter(t)
	v, err := run(t, in, assemble(t, func(a *bytecode.Assembler) {
		a.Push(8).Op(bytecode.OpRet)
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)
}

func TestTryCatch(t *testing.T) {
	in := newInterpreter(t)
	code := assemble(t, func(a *bytecode.Assembler) {
		handler := a.NewLabel()
		a.Push(1000).Try(handler).Push(1).Push(42).Op(bytecode.OpThrow)
		a.Push(0).Op(bytecode.OpEnd)
		a.Mark(handler)
		a.Op(bytecode.OpAdd).Op(bytecode.OpEnd)
	})
	v, err := run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(1042), v, "handler sees the stack as it was at try plus the exception")
}

func TestThrowFromCallee(t *testing.T) {
	in := newInterpreter(t)
	code := assemble(t, func(a *bytecode.Assembler) {
		handler, fn := a.NewLabel(), a.NewLabel()
		a.Try(handler).Call(0, fn).Op(bytecode.OpEnd)
		a.Mark(fn)
		a.Enter(0, 1).Push(9).Op(bytecode.OpThrow)
		a.Mark(handler)
		a.Op(bytecode.OpEnd)
	})
	v, err := run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
}

func TestUncaughtThrow(t *testing.T) {
	in := newInterpreter(t)
	_, err := run(t, in, assemble(t, func(a *bytecode.Assembler) {
		a.Push(7).Op(bytecode.OpThrow)
	}))
	var thrown *ThrownError
	require.True(t, errors.As(err, &thrown), "got %v", err)
	assert.Equal(t, int64(7), thrown.Value)
	assert.False(t, thrown.Trap)
	assert.Equal(t, "uncaught exception 7", err.Error())
}

func TestTryDroppedOnReturn(t *testing.T) {
	in := newInterpreter(t)
	code := assemble(t, func(a *bytecode.Assembler) {
		handler, fn := a.NewLabel(), a.NewLabel()
		a.Call(0, fn).Op(bytecode.OpThrow)
		a.Mark(fn)
		a.Enter(0, 0).Try(handler).Push(3).Op(bytecode.OpRet)
		a.Mark(handler)
		a.Op(bytecode.OpEnd)
	})
	_, err := run(t, in, code)
	var thrown *ThrownError
	require.True(t, errors.As(err, &thrown), "callee's handler must not catch after return: %v", err)
	assert.Equal(t, int64(3), thrown.Value)
}

func TestExtendedFamilies(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *bytecode.Assembler)
		want  int64
	}{
		{"gc store and load", func(a *bytecode.Assembler) {
			a.Push(11).GC(bytecode.GCStoreCell, 3).GC(bytecode.GCLoadCell, 3)
		}, 11},
		{"truncate i32", func(a *bytecode.Assembler) {
			a.Push(0x1_0000_0005).Conversion(bytecode.ConvTruncateI32)
		}, 5},
		{"extend i8", func(a *bytecode.Assembler) {
			a.Push(0xff).Conversion(bytecode.ConvExtendI8)
		}, -1},
		{"extend u16", func(a *bytecode.Assembler) {
			a.Push(-1).Conversion(bytecode.ConvExtendU16)
		}, 0xffff},
		{"simd splat add", func(a *bytecode.Assembler) {
			a.Push(1).SIMD(bytecode.SIMDSplatI16x4).Push(2).SIMD(bytecode.SIMDSplatI16x4).SIMD(bytecode.SIMDAddI16x4)
		}, 0x0003_0003_0003_0003},
		{"simd lanes wrap", func(a *bytecode.Assembler) {
			a.Push(0x7fff).Push(1).SIMD(bytecode.SIMDAddI16x4)
		}, 0x8000},
		{"atomic add returns previous", func(a *bytecode.Assembler) {
			a.Push(5).Atomic(bytecode.AtomicAdd, 0).Op(bytecode.OpPop)
			a.Push(2).Atomic(bytecode.AtomicAdd, 0)
		}, 5},
		{"atomic load", func(a *bytecode.Assembler) {
			a.Push(4).Atomic(bytecode.AtomicAdd, 1).Op(bytecode.OpPop).Atomic(bytecode.AtomicLoad, 1)
		}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInterpreter(t)
			v, err := run(t, in, assemble(t, func(a *bytecode.Assembler) {
				tt.build(a)
				a.Op(bytecode.OpEnd)
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestTraps(t *testing.T) {
	in := newInterpreter(t)

	_, err := run(t, in, assemble(t, func(a *bytecode.Assembler) {
		a.GC(bytecode.GCLoadCell, 200).Op(bytecode.OpEnd)
	}))
	var thrown *ThrownError
	require.True(t, errors.As(err, &thrown), "got %v", err)
	assert.True(t, thrown.Trap)
	assert.Equal(t, TrapOutOfBounds, thrown.Value)

	v, err := run(t, in, assemble(t, func(a *bytecode.Assembler) {
		handler := a.NewLabel()
		a.Try(handler).Push(1).Atomic(bytecode.AtomicAdd, 255).Op(bytecode.OpEnd)
		a.Mark(handler)
		a.Push(100).Op(bytecode.OpAdd).Op(bytecode.OpEnd)
	}))
	require.NoError(t, err)
	assert.Equal(t, 100+TrapOutOfBounds, v)
}

func TestSharedHeap(t *testing.T) {
	heap := NewHeapSize(4)
	c := newBlock(t, false).Config()
	code := assemble(t, func(a *bytecode.Assembler) {
		a.Push(1).Atomic(bytecode.AtomicAdd, 2).Op(bytecode.OpEnd)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := New(c, WithHeap(heap))
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < 100; j++ {
				_, err := in.Run(context.Background(), code)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	v, ok := heap.Load(2)
	assert.True(t, ok)
	assert.Equal(t, int64(800), v)
	_, ok = heap.Load(4)
	assert.False(t, ok)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"unregistered opcode", []byte{200}, ErrInvalidOpcode},
		{"unregistered sub-opcode", []byte{byte(bytecode.OpExtSIMD), 9}, ErrInvalidOpcode},
		{"underflow", []byte{byte(bytecode.OpAdd)}, ErrStackUnderflow},
		{"truncated push", []byte{byte(bytecode.OpPush), 1, 2}, ErrTruncated},
		{"falls off the end", []byte{byte(bytecode.OpNop)}, ErrTruncated},
		{"jump out of range", []byte{byte(bytecode.OpJump), 0xff, 0, 0, 0}, ErrBadJump},
		{"bad local", []byte{byte(bytecode.OpLoadLocal), 3}, ErrBadLocal},
		{"stray handle_exception", []byte{byte(bytecode.OpHandleException)}, ErrNoPendingException},
	}
	in := newInterpreter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, in, tt.code)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCallStackDepth(t *testing.T) {
	shallow := rtconfig.Registration{Name: "depth", Register: func(b *rtconfig.Builder) error {
		return b.Options().Set("maxCallStackDepth", "16", false)
	}}
	in, err := New(newBlock(t, false, shallow).Config())
	require.NoError(t, err)

	_, err = run(t, in, assemble(t, func(a *bytecode.Assembler) {
		fn := a.NewLabel()
		a.Call(0, fn).Op(bytecode.OpEnd)
		a.Mark(fn)
		a.Enter(0, 0).Call(0, fn).Op(bytecode.OpRet)
	}))
	assert.ErrorIs(t, err, ErrCallStackExceeded)
}

func TestContextCancel(t *testing.T) {
	in := newInterpreter(t)
	code := assemble(t, func(a *bytecode.Assembler) {
		loop := a.NewLabel()
		a.Mark(loop)
		a.Jump(bytecode.OpJump, loop)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := in.Run(ctx, code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExceptionStreamComesFromConfig(t *testing.T) {
	b := newBlock(t, true)
	in, err := New(b.Config())
	require.NoError(t, err)
	code := assemble(t, func(a *bytecode.Assembler) {
		a.Push(1).Push(2).Op(bytecode.OpThrow)
	})

	_, err = run(t, in, code)
	var thrown *ThrownError
	require.True(t, errors.As(err, &thrown))

	require.NoError(t, b.MutateForTesting(func(w *rtconfig.Builder) {
		w.SetExceptionInstructions([]byte{byte(bytecode.OpEnd)})
	}))
	v, err := run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "the configured stream ends the program instead of unwinding")
}

func TestDispatchComesFromConfig(t *testing.T) {
	b := newBlock(t, true)
	in, err := New(b.Config())
	require.NoError(t, err)
	code := assemble(t, func(a *bytecode.Assembler) {
		a.Push(3).Push(4).Op(bytecode.OpAdd).Op(bytecode.OpEnd)
	})

	v, err := run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	mul := b.Config().Dispatch(rtconfig.DispatchInterpreter, uint8(bytecode.OpMul))
	require.NoError(t, b.MutateForTesting(func(w *rtconfig.Builder) {
		w.SetDispatch(rtconfig.DispatchInterpreter, uint8(bytecode.OpAdd), mul)
	}))

	v, err = run(t, in, code)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	err = Validate(b.Config())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `interpreter[4] is "interpreter.mul", want "interpreter.add"`)
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[rtconfig.DispatchKind]uint64
}

func (o *countingObserver) Dispatched(kind rtconfig.DispatchKind, n uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[kind] += n
}

func TestObserverCounts(t *testing.T) {
	obs := &countingObserver{counts: map[rtconfig.DispatchKind]uint64{}}
	in := newInterpreter(t, WithObserver(obs))

	_, err := run(t, in, assemble(t, func(a *bytecode.Assembler) {
		a.Push(1).Conversion(bytecode.ConvExtendI8).Atomic(bytecode.AtomicAdd, 0).Op(bytecode.OpEnd)
	}))
	require.NoError(t, err)

	assert.Equal(t, uint64(4), obs.counts[rtconfig.DispatchInterpreter])
	assert.Equal(t, uint64(1), obs.counts[rtconfig.DispatchConversion])
	assert.Equal(t, uint64(1), obs.counts[rtconfig.DispatchAtomic])
	assert.Zero(t, obs.counts[rtconfig.DispatchGC])
}
