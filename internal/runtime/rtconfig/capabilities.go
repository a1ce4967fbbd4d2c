package rtconfig

import (
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/coderef"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/hashpins"
)

// platformConfig carries only the security metadata the build needs. Each
// half is empty on platforms that lack the feature.
type platformConfig struct {
	wx  wxConfig
	pac pacConfig
}

// SecurityCapabilities is the platform security capability set of this
// build. It is one of Baseline, SeparatedWX, PointerAuth or
// PointerAuthSeparatedWX.
type SecurityCapabilities interface {
	Name() string
	securityCapabilities()
}

// Baseline has neither separated W^X heaps nor a pin table.
type Baseline struct{}

// SeparatedWX maps executable memory twice and writes JIT code through
// the writable view only.
type SeparatedWX struct {
	Writer       coderef.Ref
	WritableBase uintptr
}

// PointerAuth signs code pointers with the hash pin table.
type PointerAuth struct {
	CanUseFPAC bool
	Pins       hashpins.Header
}

// PointerAuthSeparatedWX has both features.
type PointerAuthSeparatedWX struct {
	PointerAuth
	SeparatedWX
}

func (Baseline) Name() string               { return "baseline" }
func (SeparatedWX) Name() string            { return "separated-wx" }
func (PointerAuth) Name() string            { return "pointer-auth" }
func (PointerAuthSeparatedWX) Name() string { return "pointer-auth+separated-wx" }

func (Baseline) securityCapabilities()               {}
func (SeparatedWX) securityCapabilities()            {}
func (PointerAuth) securityCapabilities()            {}
func (PointerAuthSeparatedWX) securityCapabilities() {}

// Capabilities returns the capability variant of this build with its
// current field values.
func (c *Config) Capabilities() SecurityCapabilities {
	wx, hasWX := c.platform.wx.capability()
	pac, hasPAC := c.platform.pac.capability()
	switch {
	case hasWX && hasPAC:
		return PointerAuthSeparatedWX{PointerAuth: pac, SeparatedWX: wx}
	case hasPAC:
		return pac
	case hasWX:
		return wx
	default:
		return Baseline{}
	}
}

// HasSeparatedWXHeap reports whether this build carries separated W^X
// metadata.
func HasSeparatedWXHeap() bool { return hasSeparatedWXHeap }

// HasPointerAuth reports whether this build carries a hash pin table.
func HasPointerAuth() bool { return hasPointerAuth }
