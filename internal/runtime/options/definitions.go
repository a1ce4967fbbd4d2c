package options

import "time"

// ID indexes the options table.
type ID uint16

const (
	UseJIT ID = iota
	UseFastJITPermissions
	UseSeparatedWXHeap
	JITMemoryReservationSize
	StructureHeapReservationSize
	MaxCallStackDepth
	WatchdogTimeout
	DumpOptions
	CrashIfCantAllocateJITMemory
	UsePointerAuthentication
	UseDollarVM
	ValidateDispatchTables

	NumOptions
)

// MaxOptions is the capacity of Storage. It is part of the protected layout
// and leaves room for new options without moving later fields.
const MaxOptions = 64

var _ = [1]struct{}{}[NumOptions/(MaxOptions+1)]

// Type is the value type of an option.
type Type uint8

const (
	TypeBool Type = iota
	TypeInt
	TypeUnsigned
	TypeSize
	TypeDuration
)

var typeNames = [...]string{"bool", "int", "unsigned", "size", "duration"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "invalid"
}

// Definition describes one option.
type Definition struct {
	ID          ID
	Name        string
	Type        Type
	Default     uint64 // encoded value
	Restricted  bool
	Description string
}

var definitions = [NumOptions]Definition{
	{UseJIT, "useJIT", TypeBool, 1, false,
		"allows executable memory to be reserved and JIT code to be installed"},
	{UseFastJITPermissions, "useFastJITPermissions", TypeBool, 1, false,
		"writes JIT code through a separate writable view instead of toggling page permissions"},
	{UseSeparatedWXHeap, "useSeparatedWXHeap", TypeBool, 1, false,
		"maps executable memory twice, once writable and once executable"},
	{JITMemoryReservationSize, "jitMemoryReservationSize", TypeSize, 16 << 20, false,
		"size of the executable memory region"},
	{StructureHeapReservationSize, "structureHeapReservationSize", TypeSize, 4 << 20, false,
		"size of the structure metadata heap"},
	{MaxCallStackDepth, "maxCallStackDepth", TypeUnsigned, 1024, false,
		"maximum JavaScript call stack depth per VM"},
	{WatchdogTimeout, "watchdogTimeout", TypeDuration, uint64(5 * time.Second), false,
		"interrupts scripts running longer than this; 0 disables the watchdog"},
	{DumpOptions, "dumpOptions", TypeBool, 0, false,
		"logs every option after startup"},
	{CrashIfCantAllocateJITMemory, "crashIfCantAllocateJITMemory", TypeBool, 0, false,
		"treats a failed executable memory reservation as fatal instead of disabling the JIT"},
	{UsePointerAuthentication, "usePointerAuthentication", TypeBool, 1, false,
		"signs code pointers with the hash pin table on platforms that carry one"},
	{UseDollarVM, "useDollarVM", TypeBool, 0, true,
		"exposes the $vm testing object to scripts"},
	{ValidateDispatchTables, "validateDispatchTables", TypeBool, 0, true,
		"checks every dispatch table entry against the handler registry at finalize"},
}

var byName = func() map[string]ID {
	m := make(map[string]ID, NumOptions)
	for i := range definitions {
		m[definitions[i].Name] = definitions[i].ID
	}
	return m
}()

// Definitions returns a copy of the options table.
func Definitions() []Definition {
	out := make([]Definition, NumOptions)
	copy(out, definitions[:])
	return out
}

// Lookup finds an option by name.
func Lookup(name string) (Definition, bool) {
	id, ok := byName[name]
	if !ok {
		return Definition{}, false
	}
	return definitions[id], true
}

// DefinitionOf returns the definition of id.
func DefinitionOf(id ID) Definition {
	return definitions[id]
}

func (id ID) String() string {
	if id < NumOptions {
		return definitions[id].Name
	}
	return "invalid"
}
