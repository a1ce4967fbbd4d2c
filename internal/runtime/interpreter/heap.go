package interpreter

import "sync/atomic"

// DefaultHeapCells is the size of a heap made by NewHeap.
const DefaultHeapCells = 64

// Trap values raised through the wasm exception stream.
const (
	TrapOutOfBounds int64 = 1 + iota
)

// Heap is a fixed array of 64-bit cells shared by the GC and atomic
// instruction families. Every access is atomic, so one heap may back
// interpreters on several goroutines.
type Heap struct {
	cells []atomic.Int64
}

// NewHeap returns a heap of DefaultHeapCells cells.
func NewHeap() *Heap {
	return NewHeapSize(DefaultHeapCells)
}

// NewHeapSize returns a heap of n cells.
func NewHeapSize(n int) *Heap {
	return &Heap{cells: make([]atomic.Int64, n)}
}

// Len returns the number of cells.
func (h *Heap) Len() int { return len(h.cells) }

// Load reads cell i.
func (h *Heap) Load(i int) (int64, bool) {
	if i >= len(h.cells) {
		return 0, false
	}
	return h.cells[i].Load(), true
}

// Store writes cell i.
func (h *Heap) Store(i int, v int64) bool {
	if i >= len(h.cells) {
		return false
	}
	h.cells[i].Store(v)
	return true
}

// Add adds v to cell i and returns the previous value.
func (h *Heap) Add(i int, v int64) (int64, bool) {
	if i >= len(h.cells) {
		return 0, false
	}
	return h.cells[i].Add(v) - v, true
}
