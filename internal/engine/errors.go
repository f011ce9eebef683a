package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSnapshot indicates a register or memory dump with an
	// unexpected layout.
	ErrMalformedSnapshot = errors.New("malformed engine snapshot")

	// ErrReleased indicates use of an engine handle after Release.
	ErrReleased = errors.New("engine released")
)

// ConstructionError reports that the engine refused to load a program,
// typically because it does not assemble.
type ConstructionError struct {
	Filename string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("load %s: %s", e.Filename, e.Message)
	}
	return fmt.Sprintf("load %s: %v", e.Filename, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConstructionError) Unwrap() error {
	return e.Err
}
