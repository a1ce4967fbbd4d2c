package rtconfig

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/assert"
)

// The helpers below operate on the process block. Failures here are fatal:
// a process that cannot freeze its configuration must not keep running.

// Get returns the process configuration for reading.
func Get() *Config {
	return singleton.config
}

// InitializeOnce initializes the process block and crashes on error.
func InitializeOnce(regs ...Registration) {
	if err := singleton.InitializeOnce(regs...); err != nil {
		singleton.fatal("initialize", err)
	}
}

// Finalize freezes the process block and crashes on error.
func Finalize() *Config {
	c, err := singleton.Finalize()
	if err != nil {
		singleton.fatal("finalize", err)
	}
	return c
}

// ConfigureForTesting configures the process block for testing.
func ConfigureForTesting() { singleton.ConfigureForTesting() }

// DisableFreezingForTesting disables freezing of the process block.
func DisableFreezingForTesting() { singleton.DisableFreezingForTesting() }

// EnableRestrictedOptions opens the testing gate of the process block.
func EnableRestrictedOptions() { singleton.EnableRestrictedOptions() }

// IsPermanentlyFrozen reports whether the process block is frozen.
func IsPermanentlyFrozen() bool { return singleton.IsPermanentlyFrozen() }

// StartOfStructureHeap is a plain read of the frozen field.
func StartOfStructureHeap() uintptr { return singleton.config.startOfStructureHeap }

// IsExecutableAddress reports whether p lies in the process executable range.
func IsExecutableAddress(p uintptr) bool { return singleton.config.IsExecutableAddress(p) }

// CanUseJIT reports the process JIT capability.
func CanUseJIT() bool { return singleton.config.CanUseJIT() }

func (b *Block) fatal(op string, err error) {
	b.log.Error("fatal runtime configuration error", zap.String("op", op), zap.Error(err))
	_ = b.log.Sync()
	assert.Crash(false, "%s runtime configuration: %v", op, err)
}
