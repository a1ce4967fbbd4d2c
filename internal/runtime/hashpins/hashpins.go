// Package hashpins keeps the pin table used to authenticate code pointers.
//
// A pin is a random 64-bit value stored in page-backed memory outside the
// Go heap. Signing a pointer mixes the pointer, its PtrTag and a pin into a
// keyed BLAKE2b MAC; releasing the pin invalidates every signature made
// with it. This is the software rendition of hardware pointer
// authentication and is registered into the runtime configuration on arm64
// builds only.
package hashpins

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
)

var (
	ErrFull         = errors.New("pin table is full")
	ErrInvalidPin   = errors.New("invalid pin index")
	ErrClosed       = errors.New("pin table is closed")
	ErrInvalidTable = errors.New("invalid pin table capacity")
)

// Header describes a table without referencing it. It is what the runtime
// configuration stores.
type Header struct {
	Base     uintptr
	Capacity uint32
	_        uint32
}

// IsZero reports whether h describes no table.
func (h Header) IsZero() bool { return h.Base == 0 }

// Signature is a signed pointer's authentication code.
type Signature uint64

// Table is a fixed-capacity pin table.
type Table struct {
	mu     sync.Mutex
	mem    []byte
	pins   []uint64
	key    [blake2b.Size256]byte
	next   uint32
	closed bool
}

// New maps a table with room for capacity pins.
func New(capacity int) (*Table, error) {
	if capacity <= 0 || capacity > 1<<20 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTable, capacity)
	}
	mem, err := region.Map(capacity * 8)
	if err != nil {
		return nil, fmt.Errorf("map pin table: %w", err)
	}
	t := &Table{
		mem:  mem,
		pins: unsafe.Slice((*uint64)(unsafe.Pointer(&mem[0])), capacity),
	}
	if _, err := rand.Read(t.key[:]); err != nil {
		_ = region.Unmap(mem)
		return nil, fmt.Errorf("generate pin key: %w", err)
	}
	return t, nil
}

// Header returns the table's description, or the zero Header once closed.
func (t *Table) Header() Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Header{}
	}
	return Header{Base: uintptr(unsafe.Pointer(&t.pins[0])), Capacity: uint32(len(t.pins))}
}

// Allocate installs a fresh pin and returns its index.
func (t *Table) Allocate() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}

	n := uint32(len(t.pins))
	for i := uint32(0); i < n; i++ {
		idx := (t.next + i) % n
		if t.pins[idx] != 0 {
			continue
		}
		pin, err := randomPin()
		if err != nil {
			return 0, err
		}
		t.pins[idx] = pin
		t.next = (idx + 1) % n
		return idx, nil
	}
	return 0, ErrFull
}

// Release clears a pin. Signatures made with it no longer authenticate.
func (t *Table) Release(index uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if int(index) >= len(t.pins) || t.pins[index] == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPin, index)
	}
	t.pins[index] = 0
	return nil
}

// Pin returns the pin at index and whether it is live.
func (t *Table) Pin(index uint32) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || int(index) >= len(t.pins) {
		return 0, false
	}
	pin := t.pins[index]
	return pin, pin != 0
}

// Live returns the number of allocated pins.
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.pins {
		if p != 0 {
			n++
		}
	}
	return n
}

// Sign authenticates ptr under tag with the pin at index.
func (t *Table) Sign(ptr uintptr, tag PtrTag, index uint32) (Signature, error) {
	pin, ok := t.Pin(index)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPin, index)
	}
	return t.mac(ptr, tag, pin), nil
}

// Authenticate reports whether sig is the signature of ptr under tag with
// the pin at index.
func (t *Table) Authenticate(ptr uintptr, tag PtrTag, index uint32, sig Signature) bool {
	pin, ok := t.Pin(index)
	if !ok {
		return false
	}
	return t.mac(ptr, tag, pin) == sig
}

// Close unmaps the table.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.pins = nil
	return region.Unmap(t.mem)
}

func (t *Table) mac(ptr uintptr, tag PtrTag, pin uint64) Signature {
	var msg [17]byte
	binary.LittleEndian.PutUint64(msg[0:], uint64(ptr))
	binary.LittleEndian.PutUint64(msg[8:], pin)
	msg[16] = byte(tag)

	h, _ := blake2b.New256(t.key[:])
	h.Write(msg[:])
	sum := h.Sum(nil)
	return Signature(binary.LittleEndian.Uint64(sum))
}

func randomPin() (uint64, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("generate pin: %w", err)
		}
		if pin := binary.LittleEndian.Uint64(b[:]); pin != 0 {
			return pin, nil
		}
	}
}
