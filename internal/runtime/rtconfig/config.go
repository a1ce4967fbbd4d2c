package rtconfig

import (
	"unsafe"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
)

// ExceptionInstructionsLength is the size of the exception instruction
// streams: one maximal instruction plus a terminator.
const ExceptionInstructionsLength = bytecode.MaxInstructionLength + 1

// Config is the protected configuration. All fields are unexported; reads
// go through the methods below, writes through a Builder.
type Config struct {
	restrictedOptionsEnabled bool
	jitDisabled              bool
	vmCreationDisallowed     bool
	useFastJITPermissions    bool

	// Audits call-once initialisation.
	initializeHasBeenCalled bool

	state State

	vm struct {
		canUseJITIsSet bool
		canUseJIT      bool
	}

	startExecutableMemory          uintptr
	endExecutableMemory            uintptr
	startOfFixedWritableMemoryPool uintptr
	startOfStructureHeap           uintptr
	sizeOfStructureHeap            uintptr

	defaultCallThunk          coderef.Ref
	arityFixupThunk           coderef.Ref
	shellTimeoutCheckCallback coderef.Ref

	dispatch [NumDispatchKinds]DispatchTable

	llint struct {
		exceptionInstructions     [ExceptionInstructionsLength]uint8
		wasmExceptionInstructions [ExceptionInstructionsLength]uint8
		gateMap                   [bytecode.NumGates]coderef.Ref
	}

	platform platformConfig

	options options.Storage
}

// RestrictedOptionsEnabled reports whether test-only options and mutation
// paths were enabled before the freeze.
func (c *Config) RestrictedOptionsEnabled() bool { return c.restrictedOptionsEnabled }

// JITDisabled reports whether the JIT was turned off globally.
func (c *Config) JITDisabled() bool { return c.jitDisabled }

// VMCreationDisallowed reports whether new VMs are refused.
func (c *Config) VMCreationDisallowed() bool { return c.vmCreationDisallowed }

// UseFastJITPermissions reports whether JIT code is written through a
// separate writable view.
func (c *Config) UseFastJITPermissions() bool { return c.useFastJITPermissions }

// InitializeHasBeenCalled reports whether InitializeOnce ran.
func (c *Config) InitializeHasBeenCalled() bool { return c.initializeHasBeenCalled }

// State returns the lifecycle state.
func (c *Config) State() State { return c.state }

// CanUseJIT reports whether the platform can run JIT code and nothing
// disabled it. Unset means no.
func (c *Config) CanUseJIT() bool {
	return c.vm.canUseJITIsSet && c.vm.canUseJIT && !c.jitDisabled
}

// CanCreateVM reports whether a VM may be created now.
func (c *Config) CanCreateVM() bool {
	return c.initializeHasBeenCalled && c.state >= Populated && !c.vmCreationDisallowed
}

// ExecutableMemory returns the half-open range JIT code may occupy.
func (c *Config) ExecutableMemory() (start, end uintptr) {
	return c.startExecutableMemory, c.endExecutableMemory
}

// IsExecutableAddress reports whether p lies inside the executable region.
func (c *Config) IsExecutableAddress(p uintptr) bool {
	return c.startExecutableMemory <= p && p < c.endExecutableMemory
}

// StartOfFixedWritableMemoryPool returns the writable view's base used for
// fast-permission code patching, or 0.
func (c *Config) StartOfFixedWritableMemoryPool() uintptr {
	return c.startOfFixedWritableMemoryPool
}

// StartOfStructureHeap returns the structure heap base.
func (c *Config) StartOfStructureHeap() uintptr { return c.startOfStructureHeap }

// SizeOfStructureHeap returns the structure heap size in bytes.
func (c *Config) SizeOfStructureHeap() uintptr { return c.sizeOfStructureHeap }

// IsStructureHeapAddress is the fast range check for structure pointers.
func (c *Config) IsStructureHeapAddress(p uintptr) bool {
	return p-c.startOfStructureHeap < c.sizeOfStructureHeap
}

// DefaultCallThunk returns the default call trampoline.
func (c *Config) DefaultCallThunk() coderef.Ref { return c.defaultCallThunk }

// ArityFixupThunk returns the arity fixup trampoline.
func (c *Config) ArityFixupThunk() coderef.Ref { return c.arityFixupThunk }

// ShellTimeoutCheckCallback returns the callback the VM host runs when a
// script hits the watchdog.
func (c *Config) ShellTimeoutCheckCallback() coderef.Ref { return c.shellTimeoutCheckCallback }

// Dispatch returns the handler for opcode index in table kind. Unknown
// kinds yield the unset Ref.
func (c *Config) Dispatch(kind DispatchKind, index uint8) coderef.Ref {
	if kind >= NumDispatchKinds {
		return 0
	}
	return c.dispatch[kind][index]
}

// DispatchPopulated returns how many entries of table kind are set.
func (c *Config) DispatchPopulated(kind DispatchKind) int {
	if kind >= NumDispatchKinds {
		return 0
	}
	return c.dispatch[kind].Populated()
}

// Gate returns the handler of an entry gate.
func (c *Config) Gate(g bytecode.Gate) coderef.Ref {
	if g >= bytecode.NumGates {
		return 0
	}
	return c.llint.gateMap[g]
}

// ExceptionInstructions returns the instruction stream the interpreter
// runs when an exception is thrown. The slice aliases protected memory.
func (c *Config) ExceptionInstructions() []byte {
	return c.llint.exceptionInstructions[:]
}

// WasmExceptionInstructions is ExceptionInstructions for wasm frames.
func (c *Config) WasmExceptionInstructions() []byte {
	return c.llint.wasmExceptionInstructions[:]
}

// Options returns the option table. It aliases protected memory: setting
// an option after the freeze faults.
func (c *Config) Options() *options.Storage {
	return &c.options
}

// Address returns where the block lives.
func (c *Config) Address() uintptr {
	return uintptr(unsafe.Pointer(c))
}
