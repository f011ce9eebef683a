package dap

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingContentLength indicates a frame without a Content-Length
	// header.
	ErrMissingContentLength = errors.New("missing Content-Length header")

	// ErrInvalidHeader indicates a malformed frame header.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrContentTooLarge indicates a frame exceeding MaxContentLength.
	ErrContentTooLarge = errors.New("content-length exceeds maximum")

	// ErrBinaryFrame indicates a non-text WebSocket frame.
	ErrBinaryFrame = errors.New("unexpected binary websocket frame")
)

// DecodeError reports a client message that could not be decoded. Seq and
// Command are filled when the envelope itself was readable, so an error
// response can still be addressed.
type DecodeError struct {
	Seq     int
	Command string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("decode %s request %d: %v", e.Command, e.Seq, e.Err)
	}
	return fmt.Sprintf("decode message: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
