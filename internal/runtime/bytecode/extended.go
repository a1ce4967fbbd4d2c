package bytecode

// Extended opcode families. Each family has its own dispatch table.

// GCOp is a sub-opcode of OpExtGC. Operand: u8 heap cell.
type GCOp uint8

const (
	GCLoadCell  GCOp = iota
	GCStoreCell      // store with write barrier
	NumGCOps
)

// ConversionOp is a sub-opcode of OpExtConversion.
type ConversionOp uint8

const (
	ConvTruncateI32 ConversionOp = iota
	ConvExtendI8
	ConvExtendU16
	NumConversionOps
)

// SIMDOp is a sub-opcode of OpExtSIMD. Values are four 16-bit lanes.
type SIMDOp uint8

const (
	SIMDAddI16x4 SIMDOp = iota
	SIMDSplatI16x4
	NumSIMDOps
)

// AtomicOp is a sub-opcode of OpExtAtomic. Operand: u8 heap cell.
type AtomicOp uint8

const (
	AtomicLoad AtomicOp = iota
	AtomicAdd           // pushes the previous value
	NumAtomicOps
)

var (
	gcOpNames         = [NumGCOps]string{"gc_load_cell", "gc_store_cell"}
	conversionOpNames = [NumConversionOps]string{"truncate_i32", "extend_i8", "extend_u16"}
	simdOpNames       = [NumSIMDOps]string{"add_i16x4", "splat_i16x4"}
	atomicOpNames     = [NumAtomicOps]string{"atomic_load", "atomic_add"}
)

func (op GCOp) String() string         { return nameOr(gcOpNames[:], uint8(op)) }
func (op ConversionOp) String() string { return nameOr(conversionOpNames[:], uint8(op)) }
func (op SIMDOp) String() string       { return nameOr(simdOpNames[:], uint8(op)) }
func (op AtomicOp) String() string     { return nameOr(atomicOpNames[:], uint8(op)) }

func nameOr(names []string, i uint8) string {
	if int(i) < len(names) {
		return names[i]
	}
	return "invalid"
}
