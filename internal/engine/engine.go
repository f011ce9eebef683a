// Package engine defines the contract between the debug bridge and an
// instruction-level execution engine.
//
// The engine owns instruction decode, execution, the memory model and its own
// undo history. The bridge drives it one instruction at a time through the
// Engine interface and interprets the suspension points it reports.
//
// # Step results
//
// A single step yields one of four results, modelled as a sealed interface:
//
//   - Success: the instruction executed.
//   - SyscallGuard: execution is suspended at a syscall awaiting host handling.
//   - NoRuntime: the runtime is gone (released after exit).
//   - StepError: the instruction faulted; the message is engine supplied.
//
// Callers dispatch with a type switch:
//
//	switch r := result.(type) {
//	case engine.Success:
//	case engine.SyscallGuard:
//	    handle(r.Kind)
//	case engine.NoRuntime:
//	case engine.StepError:
//	    report(r.Message)
//	}
//
// # Implementations
//
//   - proc: drives an external engine process over framed JSON
//   - enginetest: scripted in-memory engine for tests
package engine

import "context"

// Engine is one loaded program inside an execution engine.
//
// An Engine is used from a single goroutine. Release must be called exactly
// once; every other method is invalid afterwards.
type Engine interface {
	// Step executes at most one instruction.
	Step(ctx context.Context) (StepResult, error)

	// StepBack undoes one instruction and reports whether history remained.
	// reverse is set while free-running backwards.
	StepBack(ctx context.Context, reverse bool) (bool, error)

	// SyscallKind returns the kind of the syscall currently pending.
	SyscallKind(ctx context.Context) (SyscallKind, error)

	// Print performs a pending print syscall and returns its payload as
	// "<print_type>: <contents>".
	Print(ctx context.Context) (string, error)

	// AcknowledgeBreakpoint clears a pending breakpoint guard.
	AcknowledgeBreakpoint(ctx context.Context) error

	// ProvideInput answers a pending read syscall. The reply is "ok" on
	// success, otherwise an engine-supplied message.
	ProvideInput(ctx context.Context, text string) (string, error)

	// SetBreakpoints replaces the breakpoint set and returns the lines the
	// engine could map to an instruction.
	SetBreakpoints(ctx context.Context, lines []int) ([]int, error)

	// Line returns the source line of the current instruction.
	Line(ctx context.Context) (int, bool, error)

	// PC returns the current program counter.
	PC(ctx context.Context) (uint32, bool, error)

	// Registers returns the flat register dump (see DecodeRegisters).
	Registers(ctx context.Context) ([]int32, error)

	// Memory returns the flat paginated memory dump (see DecodeMemory).
	Memory(ctx context.Context) ([]uint32, error)

	// Disassemble decodes count instructions starting at start.
	Disassemble(ctx context.Context, start uint32, count int) ([]Instruction, error)

	// Release frees the runtime.
	Release(ctx context.Context) error
}

// Factory loads source into a new engine handle. filename is used in engine
// diagnostics only.
type Factory func(ctx context.Context, source, filename string) (Engine, error)

// StepResult is the outcome of a single step.
type StepResult interface {
	isStepResult()
}

// Success means one instruction executed normally.
type Success struct{}

// SyscallGuard means execution is suspended at a syscall.
type SyscallGuard struct {
	Kind SyscallKind
}

// NoRuntime means the engine no longer holds a runtime.
type NoRuntime struct{}

// StepError means the instruction faulted.
type StepError struct {
	Message string
}

func (Success) isStepResult()      {}
func (SyscallGuard) isStepResult() {}
func (NoRuntime) isStepResult()    {}
func (StepError) isStepResult()    {}

// Instruction is one disassembled instruction.
type Instruction struct {
	Address uint32 `json:"address"`
	Text    string `json:"instruction"`
	Line    int    `json:"line_num"`
	Bytes   string `json:"instruction_bytes,omitempty"`
	Symbols string `json:"symbols,omitempty"`
}
