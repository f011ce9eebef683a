// Package enginetest provides a scripted in-memory engine for tests.
//
// A Program is a list of instructions laid out from TextBase in 4 byte
// steps. Plain instructions execute and advance; syscall instructions advance
// and then leave a guard pending until it is resolved through Print,
// AcknowledgeBreakpoint or ProvideInput. Breakpoints raise a breakpoint guard
// before the instruction on that line executes.
package enginetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dshills/mipsdap/internal/engine"
)

// TextBase is the address of the first instruction.
const TextBase uint32 = 0x00400000

// Instr is one scripted instruction.
type Instr struct {
	Line    int
	Syscall engine.SyscallKind
	// Print is the payload returned by Print for print syscalls.
	Print string
	// Fault makes Step return a StepError with this message.
	Fault string
	// Text is the disassembly text.
	Text string
}

// Program is a scripted program.
type Program []Instr

type snapshot struct {
	pc    int
	guard engine.SyscallKind
}

// Engine is a scripted engine.Engine. It is safe for concurrent use so tests
// can inspect it while a session loop drives it.
type Engine struct {
	mu sync.Mutex

	prog        Program
	pc          int
	guard       engine.SyscallKind
	bpAcked     bool
	breakpoints map[int]bool
	history     []snapshot
	released    bool

	// Regs is returned by Registers.
	Regs engine.Registers
	// Mem is returned by Memory.
	Mem engine.Memory
	// RejectInput, when set, is returned by ProvideInput instead of "ok".
	RejectInput string

	inputs   []string
	steps    int
	releases int
	reverse  []bool
}

// New creates an engine running prog.
func New(prog Program) *Engine {
	return &Engine{
		prog:        prog,
		breakpoints: make(map[int]bool),
	}
}

// Factory returns an engine.Factory that hands out e, failing with a
// ConstructionError when loadErr is non-empty.
func Factory(e *Engine, loadErr string) engine.Factory {
	return func(_ context.Context, _ string, filename string) (engine.Engine, error) {
		if loadErr != "" {
			return nil, &engine.ConstructionError{Filename: filename, Message: loadErr}
		}
		return e, nil
	}
}

// Step implements engine.Engine.
func (e *Engine) Step(context.Context) (engine.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.steps++
	if e.released {
		return engine.NoRuntime{}, nil
	}
	if e.guard != engine.SyscallNone {
		return engine.SyscallGuard{Kind: e.guard}, nil
	}
	if e.pc >= len(e.prog) {
		return engine.StepError{Message: "execution fell off the end of the program"}, nil
	}

	in := e.prog[e.pc]
	if e.breakpoints[in.Line] && !e.bpAcked {
		e.guard = engine.SyscallBreakpoint
		return engine.SyscallGuard{Kind: e.guard}, nil
	}
	if in.Fault != "" {
		return engine.StepError{Message: in.Fault}, nil
	}

	e.history = append(e.history, snapshot{pc: e.pc, guard: e.guard})
	e.pc++
	e.bpAcked = false
	if in.Syscall != engine.SyscallNone {
		e.guard = in.Syscall
		return engine.SyscallGuard{Kind: e.guard}, nil
	}
	return engine.Success{}, nil
}

// StepBack implements engine.Engine.
func (e *Engine) StepBack(_ context.Context, reverse bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reverse = append(e.reverse, reverse)
	if e.released {
		return false, engine.ErrReleased
	}
	if len(e.history) == 0 {
		return false, nil
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.pc = last.pc
	e.guard = last.guard
	e.bpAcked = true
	return true, nil
}

// SyscallKind implements engine.Engine.
func (e *Engine) SyscallKind(context.Context) (engine.SyscallKind, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard, nil
}

// Print implements engine.Engine.
func (e *Engine) Print(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.guard != engine.SyscallPrint {
		return "", nil
	}
	e.guard = engine.SyscallNone
	return e.prog[e.pc-1].Print, nil
}

// AcknowledgeBreakpoint implements engine.Engine.
func (e *Engine) AcknowledgeBreakpoint(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.guard == engine.SyscallBreakpoint {
		e.guard = engine.SyscallNone
		e.bpAcked = true
	}
	return nil
}

// ProvideInput implements engine.Engine.
func (e *Engine) ProvideInput(_ context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.guard.IsRead() {
		return "not a read syscall", nil
	}
	if e.RejectInput != "" {
		return e.RejectInput, nil
	}
	if e.guard == engine.SyscallReadInt {
		if _, err := strconv.ParseInt(text, 10, 32); err != nil {
			return fmt.Sprintf("%q is not a valid integer", text), nil
		}
	}
	e.inputs = append(e.inputs, text)
	e.guard = engine.SyscallNone
	return "ok", nil
}

// SetBreakpoints implements engine.Engine. A line is verified when some
// instruction belongs to it.
func (e *Engine) SetBreakpoints(_ context.Context, lines []int) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.breakpoints = make(map[int]bool)
	var verified []int
	for _, line := range lines {
		for _, in := range e.prog {
			if in.Line == line {
				e.breakpoints[line] = true
				verified = append(verified, line)
				break
			}
		}
	}
	return verified, nil
}

// Line implements engine.Engine.
func (e *Engine) Line(context.Context) (int, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.prog) == 0 {
		return 0, false, nil
	}
	if e.pc >= len(e.prog) {
		return e.prog[len(e.prog)-1].Line, true, nil
	}
	return e.prog[e.pc].Line, true, nil
}

// PC implements engine.Engine.
func (e *Engine) PC(context.Context) (uint32, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return TextBase + uint32(e.pc)*4, true, nil
}

// Registers implements engine.Engine. The PC word is filled from the
// current position.
func (e *Engine) Registers(context.Context) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.Regs
	regs.PC = TextBase + uint32(e.pc)*4
	return regs.Encode(), nil
}

// Memory implements engine.Engine.
func (e *Engine) Memory(context.Context) ([]uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Mem.Encode(), nil
}

// Disassemble implements engine.Engine.
func (e *Engine) Disassemble(_ context.Context, start uint32, count int) ([]engine.Instruction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []engine.Instruction
	for i := 0; i < count; i++ {
		addr := start + uint32(i)*4
		if addr < TextBase {
			continue
		}
		idx := int((addr - TextBase) / 4)
		if idx >= len(e.prog) {
			break
		}
		out = append(out, engine.Instruction{
			Address: addr,
			Text:    e.prog[idx].Text,
			Line:    e.prog[idx].Line,
		})
	}
	return out, nil
}

// Release implements engine.Engine.
func (e *Engine) Release(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.releases++
	e.released = true
	return nil
}

// Steps returns the number of Step calls.
func (e *Engine) Steps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Releases returns the number of Release calls.
func (e *Engine) Releases() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releases
}

// Inputs returns the input accepted by ProvideInput, in order.
func (e *Engine) Inputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

// ReverseFlags returns the reverse argument of every StepBack call.
func (e *Engine) ReverseFlags() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.reverse...)
}

// Breakpoints returns the lines with an active breakpoint.
func (e *Engine) Breakpoints() map[int]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int]bool, len(e.breakpoints))
	for k, v := range e.breakpoints {
		out[k] = v
	}
	return out
}

// Position returns the index of the next instruction to execute.
func (e *Engine) Position() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pc
}
