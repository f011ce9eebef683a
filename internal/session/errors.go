package session

import "errors"

var (
	// ErrSourceUnavailable indicates the program source could not be read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNotRunning indicates a request that needs a loaded program.
	ErrNotRunning = errors.New("no program is loaded")

	// ErrAlreadyLaunched indicates a second launch request.
	ErrAlreadyLaunched = errors.New("session already launched")
)

// Error response ids.
const (
	errDecode      = 1000
	errUnsupported = 1001
	errNotRunning  = 1002
	errLaunch      = 1003
	errEngine      = 1004
)
