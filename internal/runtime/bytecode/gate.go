package bytecode

// Gate is an entry point into the interpreter. The gate map in the runtime
// configuration holds one handler per gate.
type Gate uint8

const (
	GateProgramEntry Gate = iota
	GateFunctionCall
	GateHandleException
	NumGates
)

var gateNames = [NumGates]string{"program_entry", "function_call", "handle_exception"}

func (g Gate) String() string {
	return nameOr(gateNames[:], uint8(g))
}
