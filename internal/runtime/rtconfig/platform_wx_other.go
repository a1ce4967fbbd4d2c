//go:build !linux

package rtconfig

import "github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"

const hasSeparatedWXHeap = false

type wxConfig struct{}

func (*wxConfig) capability() (SeparatedWX, bool) {
	return SeparatedWX{}, false
}

// SetSeparatedWX is a no-op on builds without separated W^X heaps.
func (b *Builder) SetSeparatedWX(coderef.Ref, uintptr) bool {
	return false
}
