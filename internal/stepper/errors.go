package stepper

import (
	"errors"
	"fmt"

	"github.com/dshills/mipsdap/internal/engine"
)

var (
	// ErrNotReadSyscall indicates input was provided while no read syscall
	// is pending.
	ErrNotReadSyscall = errors.New("not read syscall")

	// ErrEmptyInputReply indicates the engine answered provided input with
	// an empty reply.
	ErrEmptyInputReply = errors.New("error")
)

// InputError is input the engine rejected, carrying the engine's message.
type InputError struct {
	Kind    engine.SyscallKind
	Message string
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return e.Message
}

// String formats the error with its syscall for logs.
func (e *InputError) String() string {
	return fmt.Sprintf("%s input rejected: %s", e.Kind, e.Message)
}
