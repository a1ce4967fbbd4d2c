package rtconfig

import (
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/assert"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
)

// Builder is the only mutation path into a Config. Every setter stores
// straight into the block: after the freeze the store is a protection
// fault, and on platforms without page protection a crash.
type Builder struct {
	block *Block
}

func (b *Builder) checkWritable() {
	b.block.region.CheckWritable()
}

// Config returns the block being built, for reads.
func (b *Builder) Config() *Config {
	return b.block.config
}

// Options returns the option table for writing.
func (b *Builder) Options() *options.Storage {
	b.checkWritable()
	return &b.block.config.options
}

// SetJITDisabled turns the JIT off (or back on) globally.
func (b *Builder) SetJITDisabled(v bool) {
	b.checkWritable()
	b.block.config.jitDisabled = v
}

// DisallowVMCreation refuses every later VM creation.
func (b *Builder) DisallowVMCreation() {
	b.checkWritable()
	b.block.config.vmCreationDisallowed = true
}

func (b *Builder) SetUseFastJITPermissions(v bool) {
	b.checkWritable()
	b.block.config.useFastJITPermissions = v
}

// SetCanUseJIT records whether the platform can execute JIT code.
func (b *Builder) SetCanUseJIT(v bool) {
	b.checkWritable()
	c := b.block.config
	c.vm.canUseJIT = v
	c.vm.canUseJITIsSet = true
}

// SetExecutableMemory sets the half-open range of JIT code.
func (b *Builder) SetExecutableMemory(start, end uintptr) {
	assert.Crash(start <= end, "executable memory [%#x, %#x) is inverted", start, end)
	b.checkWritable()
	c := b.block.config
	c.startExecutableMemory = start
	c.endExecutableMemory = end
}

func (b *Builder) SetStartOfFixedWritableMemoryPool(p uintptr) {
	b.checkWritable()
	b.block.config.startOfFixedWritableMemoryPool = p
}

// SetStructureHeap sets the structure heap base and size.
func (b *Builder) SetStructureHeap(start, size uintptr) {
	assert.Crash(start+size >= start, "structure heap at %#x+%d wraps", start, size)
	b.checkWritable()
	c := b.block.config
	c.startOfStructureHeap = start
	c.sizeOfStructureHeap = size
}

func (b *Builder) SetDefaultCallThunk(ref coderef.Ref) {
	b.checkWritable()
	b.block.config.defaultCallThunk = ref
}

func (b *Builder) SetArityFixupThunk(ref coderef.Ref) {
	b.checkWritable()
	b.block.config.arityFixupThunk = ref
}

func (b *Builder) SetShellTimeoutCheckCallback(ref coderef.Ref) {
	b.checkWritable()
	b.block.config.shellTimeoutCheckCallback = ref
}

// SetDispatch installs the handler for one opcode of table kind.
func (b *Builder) SetDispatch(kind DispatchKind, index uint8, ref coderef.Ref) {
	assert.Crash(kind < NumDispatchKinds, "dispatch kind %d out of range", kind)
	b.checkWritable()
	b.block.config.dispatch[kind][index] = ref
}

// SetGate installs the handler of an entry gate.
func (b *Builder) SetGate(g bytecode.Gate, ref coderef.Ref) {
	assert.Crash(g < bytecode.NumGates, "gate %d out of range", g)
	b.checkWritable()
	b.block.config.llint.gateMap[g] = ref
}

// SetExceptionInstructions replaces the exception instruction stream. The
// rest of the stream is padded with OpHandleException.
func (b *Builder) SetExceptionInstructions(code []byte) {
	b.setStream(b.block.config.llint.exceptionInstructions[:], code)
}

// SetWasmExceptionInstructions is SetExceptionInstructions for wasm.
func (b *Builder) SetWasmExceptionInstructions(code []byte) {
	b.setStream(b.block.config.llint.wasmExceptionInstructions[:], code)
}

func (b *Builder) setStream(dst, code []byte) {
	assert.Crash(len(code) <= len(dst), "exception stream of %d bytes exceeds %d", len(code), len(dst))
	b.checkWritable()
	n := copy(dst, code)
	for i := n; i < len(dst); i++ {
		dst[i] = byte(bytecode.OpHandleException)
	}
}
