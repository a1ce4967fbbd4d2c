// Package bytecode defines the instruction set of the runtime's interpreter:
// opcodes, the extended opcode families dispatched through their own tables,
// and the entry gates.
//
// Encoding: one opcode byte followed by little-endian operands. Extended
// instructions are a prefix opcode, a sub-opcode byte, then operands.
package bytecode

import "fmt"

// Opcode is a primary interpreter opcode.
type Opcode uint8

const (
	OpNop  Opcode = iota
	OpPush        // i64 immediate
	OpPop
	OpDup
	OpAdd
	OpSub
	OpMul
	OpLess
	OpJump        // u32 absolute target
	OpJumpIfFalse // u32 absolute target
	OpLoadLocal   // u8 slot
	OpStoreLocal  // u8 slot
	OpCall        // u8 argc, u32 target
	OpEnter       // u8 arity, u8 locals
	OpRet
	OpTry // u32 handler
	OpThrow
	OpHandleException
	OpEnd
	OpExtGC         // u8 sub-opcode, operands
	OpExtConversion // u8 sub-opcode
	OpExtSIMD       // u8 sub-opcode
	OpExtAtomic     // u8 sub-opcode, operands

	NumOpcodes
)

// DispatchTableSize is the number of entries in every dispatch table.
const DispatchTableSize = 256

// MaxInstructionLength is the longest encoded instruction, in bytes.
const MaxInstructionLength = 9

var opcodeInfo = [NumOpcodes]struct {
	name   string
	length int
}{
	OpNop:             {"nop", 1},
	OpPush:            {"push", 9},
	OpPop:             {"pop", 1},
	OpDup:             {"dup", 1},
	OpAdd:             {"add", 1},
	OpSub:             {"sub", 1},
	OpMul:             {"mul", 1},
	OpLess:            {"less", 1},
	OpJump:            {"jump", 5},
	OpJumpIfFalse:     {"jump_if_false", 5},
	OpLoadLocal:       {"load_local", 2},
	OpStoreLocal:      {"store_local", 2},
	OpCall:            {"call", 6},
	OpEnter:           {"enter", 3},
	OpRet:             {"ret", 1},
	OpTry:             {"try", 5},
	OpThrow:           {"throw", 1},
	OpHandleException: {"handle_exception", 1},
	OpEnd:             {"end", 1},
	OpExtGC:           {"ext_gc", 3},
	OpExtConversion:   {"ext_conversion", 2},
	OpExtSIMD:         {"ext_simd", 2},
	OpExtAtomic:       {"ext_atomic", 3},
}

func (op Opcode) String() string {
	if op < NumOpcodes {
		return opcodeInfo[op].name
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// Length returns the encoded length of op, or 0 for unknown opcodes.
func (op Opcode) Length() int {
	if op < NumOpcodes {
		return opcodeInfo[op].length
	}
	return 0
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < NumOpcodes
}
