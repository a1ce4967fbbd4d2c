// Package structureheap reserves the heap that holds object shape metadata.
//
// Structure pointers are checked against the heap bounds frozen in the
// runtime configuration, so a forged pointer outside the heap is rejected
// without consulting any mutable state.
package structureheap

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

// StructureSize is the size of one structure slot.
const StructureSize = 64

var (
	ErrNotReserved = errors.New("structure heap was not reserved")
	ErrFull        = errors.New("structure heap is full")
)

// Heap is the reserved structure heap.
type Heap struct {
	log *zap.Logger
	mem []byte

	mu   sync.Mutex
	used int
}

// New returns an unreserved heap.
func New(log *zap.Logger) *Heap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Heap{log: log.Named("structureheap")}
}

// Registration reserves structureHeapReservationSize bytes and records the
// heap bounds.
func (h *Heap) Registration() rtconfig.Registration {
	return rtconfig.Registration{Name: "structureheap", Register: func(b *rtconfig.Builder) error {
		size := int(b.Config().Options().Size(options.StructureHeapReservationSize))
		mem, err := region.Map(size)
		if err != nil {
			return fmt.Errorf("reserve structure heap: %w", err)
		}
		h.mem = mem
		b.SetStructureHeap(h.base(), uintptr(len(mem)))
		h.log.Info("structure heap reserved",
			zap.String("base", fmt.Sprintf("%#x", h.base())),
			zap.String("size", units.BytesSize(float64(len(mem)))))
		return nil
	}}
}

func (h *Heap) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(h.mem)))
}

// Allocate hands out one zeroed structure slot.
func (h *Heap) Allocate() (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mem == nil {
		return 0, ErrNotReserved
	}
	if h.used+StructureSize > len(h.mem) {
		return 0, ErrFull
	}
	p := h.base() + uintptr(h.used)
	h.used += StructureSize
	return p, nil
}

// Used returns the number of allocated bytes.
func (h *Heap) Used() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Close unmaps the heap.
func (h *Heap) Close() error {
	if h.mem == nil {
		return nil
	}
	err := region.Unmap(h.mem)
	h.mem = nil
	return err
}

// Contains reports whether p points into the heap recorded in cfg. It
// reads nothing but frozen fields.
func Contains(cfg *rtconfig.Config, p uintptr) bool {
	return cfg.IsStructureHeapAddress(p)
}

// IsStructure checks p against the process configuration and slot
// alignment.
func IsStructure(p uintptr) bool {
	return rtconfig.Get().IsStructureHeapAddress(p) && (p-rtconfig.StartOfStructureHeap())%StructureSize == 0
}
