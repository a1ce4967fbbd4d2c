package rtconfig

import (
	"fmt"

	"github.com/docker/go-units"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
)

// Snapshot is a plain copy of a block for logging and inspection.
type Snapshot struct {
	State                    string `json:"state"`
	PermanentlyFrozen        bool   `json:"permanentlyFrozen"`
	HardwareEnforced         bool   `json:"hardwareEnforced"`
	Address                  string `json:"address"`
	InitializeHasBeenCalled  bool   `json:"initializeHasBeenCalled"`
	RestrictedOptionsEnabled bool   `json:"restrictedOptionsEnabled"`
	JITDisabled              bool   `json:"jitDisabled"`
	CanUseJIT                bool   `json:"canUseJIT"`
	VMCreationDisallowed     bool   `json:"vmCreationDisallowed"`
	UseFastJITPermissions    bool   `json:"useFastJITPermissions"`
	Capabilities             string `json:"capabilities"`

	ExecutableMemory  MemoryRange `json:"executableMemory"`
	StructureHeap     MemoryRange `json:"structureHeap"`
	FixedWritablePool string      `json:"fixedWritablePool,omitempty"`

	Dispatch map[string]int  `json:"dispatch"`
	Gates    map[string]bool `json:"gates"`

	DefaultCallThunk          uint32 `json:"defaultCallThunk"`
	ArityFixupThunk           uint32 `json:"arityFixupThunk"`
	ShellTimeoutCheckCallback uint32 `json:"shellTimeoutCheckCallback"`

	VMEntryDisallowed      bool   `json:"vmEntryDisallowed"`
	SimulateJITUnavailable bool   `json:"simulateJITUnavailable"`
	TestingMutations       uint64 `json:"testingMutations"`

	Options []options.Entry `json:"options"`
}

// MemoryRange is a formatted [start, start+size) range.
type MemoryRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Size  string `json:"size"`
}

func memoryRange(start, end uintptr) MemoryRange {
	return MemoryRange{
		Start: fmt.Sprintf("%#x", start),
		End:   fmt.Sprintf("%#x", end),
		Size:  units.BytesSize(float64(end - start)),
	}
}

// Snapshot copies every field of the block.
func (b *Block) Snapshot() Snapshot {
	c := b.config
	s := Snapshot{
		State:                    c.state.String(),
		PermanentlyFrozen:        b.region.IsPermanentlyFrozen(),
		HardwareEnforced:         region.HardwareEnforced(),
		Address:                  fmt.Sprintf("%#x", c.Address()),
		InitializeHasBeenCalled:  c.initializeHasBeenCalled,
		RestrictedOptionsEnabled: c.restrictedOptionsEnabled,
		JITDisabled:              c.jitDisabled,
		CanUseJIT:                c.CanUseJIT(),
		VMCreationDisallowed:     c.vmCreationDisallowed,
		UseFastJITPermissions:    c.useFastJITPermissions,
		Capabilities:             c.Capabilities().Name(),
		ExecutableMemory:         memoryRange(c.startExecutableMemory, c.endExecutableMemory),
		StructureHeap:            memoryRange(c.startOfStructureHeap, c.startOfStructureHeap+c.sizeOfStructureHeap),
		Dispatch:                 make(map[string]int, NumDispatchKinds),
		Gates:                    make(map[string]bool, bytecode.NumGates),

		DefaultCallThunk:          uint32(c.defaultCallThunk),
		ArityFixupThunk:           uint32(c.arityFixupThunk),
		ShellTimeoutCheckCallback: uint32(c.shellTimeoutCheckCallback),

		VMEntryDisallowed:      b.VMEntryDisallowed(),
		SimulateJITUnavailable: b.SimulateJITUnavailable(),
		TestingMutations:       b.TestingMutations(),
		Options:                c.options.Dump(),
	}
	if c.startOfFixedWritableMemoryPool != 0 {
		s.FixedWritablePool = fmt.Sprintf("%#x", c.startOfFixedWritableMemoryPool)
	}
	for k := DispatchKind(0); k < NumDispatchKinds; k++ {
		s.Dispatch[k.String()] = c.dispatch[k].Populated()
	}
	for g := bytecode.Gate(0); g < bytecode.NumGates; g++ {
		s.Gates[g.String()] = c.llint.gateMap[g].IsSet()
	}
	return s
}
