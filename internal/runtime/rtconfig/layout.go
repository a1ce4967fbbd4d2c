package rtconfig

import (
	"unsafe"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
)

// AlignmentOfConfig is the alignment Config needs inside the region.
const AlignmentOfConfig = unsafe.Alignof(Config{})

// Byte offsets of fields read by generated code, relative to the Config.
const (
	OffsetOfInitializeHasBeenCalled = unsafe.Offsetof(Config{}.initializeHasBeenCalled)
	OffsetOfGateMap                 = unsafe.Offsetof(Config{}.llint) + unsafe.Offsetof(Config{}.llint.gateMap)
	OffsetOfStartOfStructureHeap    = unsafe.Offsetof(Config{}.startOfStructureHeap)
	OffsetOfDefaultCallThunk        = unsafe.Offsetof(Config{}.defaultCallThunk)
	OffsetOfDispatchTables          = unsafe.Offsetof(Config{}.dispatch)
)

// The layout contract. Each line fails to compile when violated:
// Config must fit behind the region header, start suitably aligned, and the
// permitted-mutation section must fit in the smallest supported page.
var (
	_ = [1]struct{}{}[(region.OffsetOfConfigExtension+unsafe.Sizeof(Config{}))/(region.ConfigSizeToProtect+1)]
	_ = [1]struct{}{}[region.OffsetOfConfigExtension%AlignmentOfConfig]
	_ = [1]struct{}{}[unsafe.Sizeof(mutableSection{})/(minPageSize+1)]
)

const minPageSize = 4096

func (b *Block) validateLayout() {
	base := b.region.Base()
	addr := b.config.Address()
	if addr != base+region.OffsetOfConfigExtension {
		panicLayout("config at %#x, want %#x", addr, base+region.OffsetOfConfigExtension)
	}
	if addr%AlignmentOfConfig != 0 {
		panicLayout("config at %#x is not %d-byte aligned", addr, AlignmentOfConfig)
	}
	if unsafe.Sizeof(mutableSection{}) > b.region.PermittedMutationSize() {
		panicLayout("permitted-mutation section does not fit in %d bytes", b.region.PermittedMutationSize())
	}
}
