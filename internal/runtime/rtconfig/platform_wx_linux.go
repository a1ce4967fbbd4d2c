//go:build linux

package rtconfig

import "github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"

const hasSeparatedWXHeap = true

type wxConfig struct {
	jitWriteSeparateHeaps coderef.Ref
	writableBase          uintptr
}

func (w *wxConfig) capability() (SeparatedWX, bool) {
	return SeparatedWX{Writer: w.jitWriteSeparateHeaps, WritableBase: w.writableBase}, true
}

// SetSeparatedWX records the writer used for separated W^X heaps and the
// base of the writable view. It reports whether the build stores them.
func (b *Builder) SetSeparatedWX(writer coderef.Ref, writableBase uintptr) bool {
	b.checkWritable()
	w := &b.block.config.platform.wx
	w.jitWriteSeparateHeaps = writer
	w.writableBase = writableBase
	return true
}
