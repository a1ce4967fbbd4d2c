//go:build arm64

package rtconfig

import "github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/hashpins"

const hasPointerAuth = true

type pacConfig struct {
	canUseFPAC bool
	pins       hashpins.Header
}

func (p *pacConfig) capability() (PointerAuth, bool) {
	return PointerAuth{CanUseFPAC: p.canUseFPAC, Pins: p.pins}, true
}

// SetPointerAuth records the pin table. It reports whether the build
// stores it.
func (b *Builder) SetPointerAuth(canUseFPAC bool, pins hashpins.Header) bool {
	b.checkWritable()
	p := &b.block.config.platform.pac
	p.canUseFPAC = canUseFPAC
	p.pins = pins
	return true
}
