package hashpins

// PtrTag names what kind of code a signed pointer points at.
type PtrTag uint8

const (
	NoPtrTag PtrTag = iota
	JSEntryPtrTag
	JITThunkPtrTag
	OperationPtrTag
	BytecodePtrTag
	ExceptionHandlerPtrTag
	HostFunctionPtrTag

	NumPtrTags
)

var ptrTagNames = [NumPtrTags]string{
	"NoPtrTag",
	"JSEntryPtrTag",
	"JITThunkPtrTag",
	"OperationPtrTag",
	"BytecodePtrTag",
	"ExceptionHandlerPtrTag",
	"HostFunctionPtrTag",
}

func (t PtrTag) String() string {
	if t < NumPtrTags {
		return ptrTagNames[t]
	}
	return "<unknown PtrTag>"
}

// LookupTag resolves a tag by name, for diagnostics.
func LookupTag(name string) (PtrTag, bool) {
	for i, n := range ptrTagNames {
		if n == name {
			return PtrTag(i), true
		}
	}
	return NoPtrTag, false
}
