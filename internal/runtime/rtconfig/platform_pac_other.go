//go:build !arm64

package rtconfig

import "github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/hashpins"

const hasPointerAuth = false

type pacConfig struct{}

func (*pacConfig) capability() (PointerAuth, bool) {
	return PointerAuth{}, false
}

// SetPointerAuth is a no-op on builds without a pin table.
func (b *Builder) SetPointerAuth(bool, hashpins.Header) bool {
	return false
}
