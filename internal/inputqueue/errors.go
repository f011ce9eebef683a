package inputqueue

import (
	"errors"
	"fmt"
)

// ErrExhausted indicates the queue ran out before a token could be read.
var ErrExhausted = errors.New("queued input exhausted")

// FormatError reports a token that was consumed but could not be parsed.
type FormatError struct {
	Run string
	Err error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid queued input %q: %v", e.Run, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *FormatError) Unwrap() error {
	return e.Err
}
