package region

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/assert"
)

// ConfigSizeToProtect is the size of the protected header, extension space
// included. It is a multiple of every supported page size up to 16 KiB.
const ConfigSizeToProtect = 16 * 1024

type headerFields struct {
	isPermanentlyFrozen       bool
	disableFreezingForTesting bool
	unprotectAllowed          bool
	hardwareEnforced          bool
	pageSize                  uint32
	protectedSize             uintptr
	reservationBase           uintptr
}

const (
	// OffsetOfConfigExtension is where extension configs start, relative to
	// the base of the region.
	OffsetOfConfigExtension = unsafe.Sizeof(headerFields{})

	// ExtensionSize is the number of bytes available to extensions.
	ExtensionSize = ConfigSizeToProtect - OffsetOfConfigExtension

	// ExtensionAlignment is the alignment guaranteed at OffsetOfConfigExtension.
	ExtensionAlignment = unsafe.Alignof(uint64(0))
)

// Header is the region's own bookkeeping followed by the extension space.
type Header struct {
	headerFields
	spaceForExtensions [ExtensionSize / 8]uint64
}

// Header must fill the protected size exactly and leave the extension space
// 8-byte aligned.
var (
	_ = [1]struct{}{}[unsafe.Sizeof(Header{})-ConfigSizeToProtect]
	_ = [1]struct{}{}[OffsetOfConfigExtension%ExtensionAlignment]
	_ = [1]struct{}{}[unsafe.Offsetof(Header{}.spaceForExtensions)-OffsetOfConfigExtension]
)

var (
	ErrFrozen         = errors.New("region is permanently frozen")
	ErrNotFrozen      = errors.New("region is not frozen")
	ErrProcessRegion  = errors.New("the process region cannot be released")
	ErrReleased       = errors.New("region has been released")
	ErrUnprotectGated = errors.New("unprotect was not allowed before the freeze")
)

// Region is one reservation: a protected header page set plus a
// permitted-mutation page.
type Region struct {
	mem      []byte
	header   *Header
	process  bool
	released bool
}

var process = reserveProcess()

func reserveProcess() *Region {
	r, err := Reserve()
	assert.Crash(err == nil, "cannot reserve the process configuration region: %v", err)
	r.process = true
	return r
}

// Process returns the process-wide region. It is reserved during package
// initialisation and lives until exit.
func Process() *Region {
	return process
}

// Reserve maps a fresh zero-filled region.
func Reserve() (*Region, error) {
	ps := pageSize()
	protected := roundUp(ConfigSizeToProtect, ps)

	mem, err := mapPages(protected + ps)
	if err != nil {
		return nil, fmt.Errorf("reserve protected region: %w", err)
	}

	r := &Region{
		mem:    mem,
		header: (*Header)(unsafe.Pointer(&mem[0])),
	}
	h := r.header
	h.pageSize = uint32(ps)
	h.protectedSize = uintptr(protected)
	h.reservationBase = uintptr(unsafe.Pointer(&mem[0]))
	h.hardwareEnforced = hardwareEnforced
	return r, nil
}

// Map reserves size bytes (rounded up to whole pages) of zeroed read-write
// memory outside the Go heap.
func Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("map %d bytes: invalid size", size)
	}
	return mapPages(roundUp(size, pageSize()))
}

// Unmap releases memory obtained from Map.
func Unmap(mem []byte) error {
	return unmapPages(mem)
}

// PageSize returns the operating system page size.
func PageSize() int {
	return pageSize()
}

// HardwareEnforced reports whether frozen pages fault on write.
func HardwareEnforced() bool {
	return hardwareEnforced
}

// Header returns the region header.
func (r *Region) Header() *Header {
	return r.header
}

// Base returns the address of the first byte of the region.
func (r *Region) Base() uintptr {
	return r.header.reservationBase
}

// Extension returns the address of the extension space.
func (r *Region) Extension() unsafe.Pointer {
	return unsafe.Pointer(&r.header.spaceForExtensions)
}

// PermittedMutation returns the address of the page that stays writable
// after the freeze.
func (r *Region) PermittedMutation() unsafe.Pointer {
	return unsafe.Pointer(&r.mem[r.header.protectedSize])
}

// PermittedMutationSize is the size of the permitted-mutation page.
func (r *Region) PermittedMutationSize() uintptr {
	return uintptr(r.header.pageSize)
}

// ProtectedSize is the number of bytes made read-only by a freeze.
func (r *Region) ProtectedSize() uintptr {
	return r.header.protectedSize
}

// IsPermanentlyFrozen reports whether the protected part is read-only.
func (r *Region) IsPermanentlyFrozen() bool {
	return r.header.isPermanentlyFrozen
}

// FreezingDisabled reports whether DisableFreezingForTesting was called.
func (r *Region) FreezingDisabled() bool {
	return r.header.disableFreezingForTesting
}

// DisableFreezingForTesting makes Finalize leave the pages writable. After
// a freeze the write below faults.
func (r *Region) DisableFreezingForTesting() {
	assert.That(!r.header.isPermanentlyFrozen, "DisableFreezingForTesting after freeze")
	r.checkSoftwareFreeze()
	r.header.disableFreezingForTesting = true
}

// AllowUnprotectForTesting permits a later Unprotect/Reprotect cycle. It
// has to happen before the freeze; the flag itself is frozen with the rest.
func (r *Region) AllowUnprotectForTesting() {
	assert.That(!r.header.isPermanentlyFrozen, "AllowUnprotectForTesting after freeze")
	r.checkSoftwareFreeze()
	r.header.unprotectAllowed = true
}

// Finalize freezes the region unless freezing was disabled for testing.
func (r *Region) Finalize() error {
	if r.header.disableFreezingForTesting {
		return nil
	}
	return r.PermanentlyFreeze()
}

// PermanentlyFreeze marks the protected part read-only.
func (r *Region) PermanentlyFreeze() error {
	if r.released {
		return ErrReleased
	}
	if r.header.isPermanentlyFrozen {
		return nil
	}
	r.header.isPermanentlyFrozen = true
	if err := protect(r.protected(), true); err != nil {
		r.header.isPermanentlyFrozen = false
		return fmt.Errorf("freeze protected region: %w", err)
	}
	return nil
}

// Unprotect makes a frozen region writable again. Only regions that allowed
// it before the freeze may do so.
func (r *Region) Unprotect() error {
	if r.released {
		return ErrReleased
	}
	if !r.header.isPermanentlyFrozen {
		return ErrNotFrozen
	}
	if !r.header.unprotectAllowed {
		return ErrUnprotectGated
	}
	if err := protect(r.protected(), false); err != nil {
		return fmt.Errorf("unprotect region: %w", err)
	}
	r.header.isPermanentlyFrozen = false
	return nil
}

// Reprotect freezes a region again after Unprotect.
func (r *Region) Reprotect() error {
	if !r.header.unprotectAllowed {
		return ErrUnprotectGated
	}
	return r.PermanentlyFreeze()
}

// Release unmaps a region. The process region is never released.
func (r *Region) Release() error {
	if r.process {
		return ErrProcessRegion
	}
	if r.released {
		return nil
	}
	r.released = true
	r.header = nil
	return unmapPages(r.mem)
}

// checkSoftwareFreeze stands in for the hardware fault where there is none.
func (r *Region) checkSoftwareFreeze() {
	if hardwareEnforced {
		return
	}
	assert.Crash(!r.header.isPermanentlyFrozen, "write to frozen region at %#x", r.Base())
}

// CheckWritable crashes on platforms without hardware enforcement when the
// region is frozen. Writers outside this package call it before storing
// into the protected part.
func (r *Region) CheckWritable() {
	r.checkSoftwareFreeze()
}

func (r *Region) protected() []byte {
	return r.mem[:r.header.protectedSize]
}

func roundUp(n, multiple int) int {
	return (n + multiple - 1) &^ (multiple - 1)
}
