package engine

import "strings"

// SyscallKind identifies a pending syscall.
type SyscallKind int

const (
	// SyscallNone means no syscall is pending.
	SyscallNone SyscallKind = iota
	// SyscallPrint covers print_int, print_float, print_double, print_string and print_char.
	SyscallPrint
	// SyscallExit covers exit and exit2.
	SyscallExit
	// SyscallBreakpoint is a breakpoint reached during execution.
	SyscallBreakpoint
	// SyscallReadInt reads an integer.
	SyscallReadInt
	// SyscallReadChar reads a single character.
	SyscallReadChar
	// SyscallReadFloat reads a float.
	SyscallReadFloat
	// SyscallReadDouble reads a double.
	SyscallReadDouble
	// SyscallReadString reads a line into a buffer.
	SyscallReadString
	// SyscallRead is a read from a file descriptor.
	SyscallRead
	// SyscallSbrk grows the heap.
	SyscallSbrk
	// SyscallOpen opens a file.
	SyscallOpen
	// SyscallWrite writes to a file descriptor.
	SyscallWrite
	// SyscallClose closes a file descriptor.
	SyscallClose
	// SyscallTrap is a trap instruction.
	SyscallTrap
	// SyscallUnknown is any kind this bridge does not recognise.
	SyscallUnknown
)

var syscallNames = map[SyscallKind]string{
	SyscallNone:       "none",
	SyscallPrint:      "print",
	SyscallExit:       "exit",
	SyscallBreakpoint: "breakpoint",
	SyscallReadInt:    "read_int",
	SyscallReadChar:   "read_character",
	SyscallReadFloat:  "read_float",
	SyscallReadDouble: "read_double",
	SyscallReadString: "read_string",
	SyscallRead:       "read",
	SyscallSbrk:       "sbrk",
	SyscallOpen:       "open",
	SyscallWrite:      "write",
	SyscallClose:      "close",
	SyscallTrap:       "trap",
	SyscallUnknown:    "unknown",
}

// String returns the wire name of the kind.
func (k SyscallKind) String() string {
	if name, ok := syscallNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsRead reports whether the syscall blocks waiting for input.
func (k SyscallKind) IsRead() bool {
	return strings.HasPrefix(k.String(), "read")
}

// ParseSyscallKind maps a wire name to a kind. Unrecognised names map to
// SyscallUnknown.
func ParseSyscallKind(name string) SyscallKind {
	switch name {
	case "", "none":
		return SyscallNone
	case "read_char":
		return SyscallReadChar
	}
	for kind, n := range syscallNames {
		if n == name {
			return kind
		}
	}
	return SyscallUnknown
}
