package rtconfig

import (
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
)

// DispatchKind selects one of the dispatch tables.
type DispatchKind uint8

const (
	DispatchInterpreter DispatchKind = iota
	DispatchGC
	DispatchConversion
	DispatchSIMD
	DispatchAtomic

	NumDispatchKinds
)

var dispatchKindNames = [NumDispatchKinds]string{"interpreter", "gc", "conversion", "simd", "atomic"}

func (k DispatchKind) String() string {
	if k < NumDispatchKinds {
		return dispatchKindNames[k]
	}
	return "invalid"
}

// DispatchTable maps an opcode byte to its handler.
type DispatchTable [bytecode.DispatchTableSize]coderef.Ref

// Populated returns the number of set entries.
func (t *DispatchTable) Populated() int {
	n := 0
	for _, ref := range t {
		if ref.IsSet() {
			n++
		}
	}
	return n
}
