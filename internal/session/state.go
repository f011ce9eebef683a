package session

// State is the lifecycle state of a debug session.
type State int

const (
	// StateUninitialized is before the initialize request.
	StateUninitialized State = iota
	// StateInitialized is after initialize and before a program is loaded.
	StateInitialized
	// StateSourceLoading is while waiting for the client to deliver source.
	StateSourceLoading
	// StateActive is while a program is loaded.
	StateActive
	// StateTerminated is after the program or session has ended.
	StateTerminated
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateSourceLoading:
		return "source-loading"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
