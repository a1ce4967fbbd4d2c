package vm

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

var (
	ErrVMCreationDisallowed = errors.New("vm creation is disallowed")
	ErrVMEntryDisallowed    = errors.New("vm entry is disallowed")
	ErrTimeout              = errors.New("script exceeded the watchdog timeout")
	ErrClosed               = errors.New("vm is closed")
	ErrPoolClosed           = errors.New("vm pool is closed")
	ErrAcquireTimeout       = errors.New("vm acquisition timeout")
)

// Policy is what a VM consults before it is created and every time it is
// entered. *rtconfig.Block implements it.
type Policy interface {
	Config() *rtconfig.Config
	VMEntryDisallowed() bool
}

// Observer receives VM lifecycle events.
type Observer interface {
	VMCreated()
	VMClosed()
	ScriptExecuted(d time.Duration, err error)
}

// Config defines VM configuration
type Config struct {
	EnableConsole bool        // Allow console.log/warn/error/info
	Logger        *zap.Logger // Defaults to a no-op logger
	Observer      Observer    // Optional
}

// DefaultConfig returns the shell's VM configuration.
func DefaultConfig() Config {
	return Config{EnableConsole: true}
}

// Result holds execution result
type Result struct {
	VM       uuid.UUID     // VM that ran the script
	Value    any           // Exported return value
	Console  []LogEntry    // Console output
	Duration time.Duration // Execution time
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// TimeoutCheck is consulted when a script outlives the watchdog timeout.
// Returning true terminates the script; false grants another period.
type TimeoutCheck func(vm uuid.UUID, elapsed time.Duration) bool
