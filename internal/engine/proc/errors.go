package proc

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineExited indicates the engine process went away while a
	// request was outstanding.
	ErrEngineExited = errors.New("engine process exited")

	// ErrTimeout indicates the engine did not answer within the request
	// timeout.
	ErrTimeout = errors.New("engine request timed out")

	// ErrNoCommand indicates a factory configured without an engine command.
	ErrNoCommand = errors.New("no engine command configured")
)

// RemoteError is a request the engine answered with success=false.
type RemoteError struct {
	Command string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("engine %s: %s", e.Command, e.Message)
}
