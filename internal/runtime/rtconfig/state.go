package rtconfig

// State is the lifecycle state of a configuration block.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Populated
	Frozen
	Finalized   // finalize ran with freezing disabled for testing
	Unprotected // frozen block temporarily writable for a testing mutation
)

var stateNames = [...]string{"uninitialized", "initializing", "populated", "frozen", "finalized", "unprotected"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// IsFinal reports whether Finalize has completed. An Unprotected block is
// still final; it returns to Frozen after the mutation.
func (s State) IsFinal() bool {
	return s == Frozen || s == Finalized || s == Unprotected
}

func validTransition(from, to State) bool {
	switch from {
	case Uninitialized:
		return to == Initializing
	case Initializing:
		return to == Populated
	case Populated:
		return to == Frozen || to == Finalized
	case Frozen:
		return to == Unprotected
	case Unprotected:
		return to == Populated
	}
	return false
}
