package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Label names a code position that may be referenced before it is placed.
type Label uint16

type fixup struct {
	pos   int
	label Label
}

// Assembler emits bytecode with forward references patched at Bytes time.
type Assembler struct {
	code   []byte
	labels []int
	fixups []fixup
}

// NewLabel reserves a label; Mark places it.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Mark places l at the current position.
func (a *Assembler) Mark(l Label) {
	a.labels[l] = len(a.code)
}

// Pos returns the current write offset.
func (a *Assembler) Pos() int {
	return len(a.code)
}

// Op emits an operand-less opcode.
func (a *Assembler) Op(op Opcode) *Assembler {
	a.code = append(a.code, byte(op))
	return a
}

// Push emits OpPush v.
func (a *Assembler) Push(v int64) *Assembler {
	a.code = append(a.code, byte(OpPush))
	a.code = binary.LittleEndian.AppendUint64(a.code, uint64(v))
	return a
}

// Jump emits OpJump or OpJumpIfFalse to l.
func (a *Assembler) Jump(op Opcode, l Label) *Assembler {
	a.code = append(a.code, byte(op))
	a.target(l)
	return a
}

// Try installs l as the exception handler.
func (a *Assembler) Try(l Label) *Assembler {
	return a.Jump(OpTry, l)
}

// Local emits OpLoadLocal or OpStoreLocal.
func (a *Assembler) Local(op Opcode, slot uint8) *Assembler {
	a.code = append(a.code, byte(op), slot)
	return a
}

// Call emits OpCall with argc arguments to the function at l.
func (a *Assembler) Call(argc uint8, l Label) *Assembler {
	a.code = append(a.code, byte(OpCall), argc)
	a.target(l)
	return a
}

// Enter emits a function prologue.
func (a *Assembler) Enter(arity, locals uint8) *Assembler {
	a.code = append(a.code, byte(OpEnter), arity, locals)
	return a
}

// GC emits an OpExtGC instruction on cell.
func (a *Assembler) GC(op GCOp, cell uint8) *Assembler {
	a.code = append(a.code, byte(OpExtGC), byte(op), cell)
	return a
}

// Conversion emits an OpExtConversion instruction.
func (a *Assembler) Conversion(op ConversionOp) *Assembler {
	a.code = append(a.code, byte(OpExtConversion), byte(op))
	return a
}

// SIMD emits an OpExtSIMD instruction.
func (a *Assembler) SIMD(op SIMDOp) *Assembler {
	a.code = append(a.code, byte(OpExtSIMD), byte(op))
	return a
}

// Atomic emits an OpExtAtomic instruction on cell.
func (a *Assembler) Atomic(op AtomicOp, cell uint8) *Assembler {
	a.code = append(a.code, byte(OpExtAtomic), byte(op), cell)
	return a
}

// Bytes resolves every label reference and returns the program.
func (a *Assembler) Bytes() ([]byte, error) {
	for _, f := range a.fixups {
		pos := a.labels[f.label]
		if pos < 0 {
			return nil, fmt.Errorf("label %d referenced at %d was never marked", f.label, f.pos)
		}
		binary.LittleEndian.PutUint32(a.code[f.pos:], uint32(pos))
	}
	return a.code, nil
}

func (a *Assembler) target(l Label) {
	a.fixups = append(a.fixups, fixup{pos: len(a.code), label: l})
	a.code = append(a.code, 0, 0, 0, 0)
}
