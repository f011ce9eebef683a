// Package stepper runs a loaded program one instruction at a time and
// interprets the syscall suspension points the engine reports.
//
// A Stepper owns its engine handle exclusively. It is not safe for concurrent
// use: the session loop calls it from one goroutine, either directly for a
// request or through RunBatch when its Scheduler fires.
package stepper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine"
	"github.com/dshills/mipsdap/internal/inputqueue"
)

// Defaults for Config.
const (
	DefaultBatchSize = 300
	DefaultIdleDelay = 50 * time.Millisecond
)

// Config tunes the autorun loop.
type Config struct {
	// BatchSize is the maximum number of steps per RunBatch.
	BatchSize int
	// IdleDelay is the delay before the next batch when autorun is off.
	IdleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = DefaultIdleDelay
	}
	return c
}

// Register is one named register value.
type Register struct {
	Name  string
	Value int32
}

// Stepper wraps one engine handle.
type Stepper struct {
	eng    engine.Engine
	queue  *inputqueue.Queue
	notify Notifier
	logger *zap.SugaredLogger
	cfg    Config

	autoRunning    bool
	runningReverse bool
	inputNeeded    bool
	resumeOnInput  bool
	isAtExit       bool
	released       bool
	terminated     bool

	// haltReason is the stop reason for the last Step that returned false.
	haltReason string
}

// New creates a Stepper over eng. queue is shared with the session, which
// refills it on request.
func New(eng engine.Engine, queue *inputqueue.Queue, notify Notifier, cfg Config, logger *zap.SugaredLogger) *Stepper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stepper{
		eng:    eng,
		queue:  queue,
		notify: notify,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (s *Stepper) Config() Config { return s.cfg }

// AutoRunning reports whether autorun is on.
func (s *Stepper) AutoRunning() bool { return s.autoRunning }

// RunningReverse reports whether autorun runs backwards.
func (s *Stepper) RunningReverse() bool { return s.runningReverse }

// InputNeeded reports whether a read syscall is waiting for input.
func (s *Stepper) InputNeeded() bool { return s.inputNeeded }

// AtExit reports whether the program is halted at its exit syscall.
func (s *Stepper) AtExit() bool { return s.isAtExit }

// Terminated reports whether the Stepper has been released.
func (s *Stepper) Terminated() bool { return s.terminated }

func (s *Stepper) stdout(format string, args ...any) {
	s.notify.Output(Stdout, fmt.Sprintf(format, args...))
}

func (s *Stepper) stderr(format string, args ...any) {
	s.notify.Output(Stderr, fmt.Sprintf(format, args...))
}

func (s *Stepper) debug(format string, args ...any) {
	s.notify.Output(Console, "[debug] "+fmt.Sprintf(format, args...))
}

// Step advances one instruction and reports whether execution may carry on.
// A false result records the reason used when autorun halts.
func (s *Stepper) Step(ctx context.Context) bool {
	if s.released {
		return false
	}
	if s.isAtExit {
		s.stdout("exiting...")
		s.notify.Terminated()
		s.release(ctx)
		return false
	}

	s.haltReason = ReasonBreakpoint
	result, err := s.eng.Step(ctx)
	if err != nil {
		s.logger.Warnw("engine step failed", "error", err)
		result = engine.StepError{Message: err.Error()}
	}

	switch r := result.(type) {
	case engine.Success:
		return true
	case engine.SyscallGuard:
		return s.handleSyscall(ctx)
	case engine.NoRuntime:
		s.SetAutorun(false, ReasonStep)
		return false
	case engine.StepError:
		s.fail(r.Message)
		return false
	default:
		s.debug("result %T", result)
		return false
	}
}

func (s *Stepper) fail(msg string) {
	s.stderr("An error has occurred:\n%s", msg)
	s.haltReason = ReasonException
	s.SetAutorun(false, ReasonException)
}

func (s *Stepper) handleSyscall(ctx context.Context) bool {
	kind, err := s.eng.SyscallKind(ctx)
	if err != nil {
		s.fail(err.Error())
		return false
	}

	switch {
	case kind == engine.SyscallPrint:
		return s.print(ctx)
	case kind == engine.SyscallExit:
		s.stdout("syscall exit: press continue/next/stop to exit")
		s.isAtExit = true
		s.haltReason = ReasonExit
		return false
	case kind == engine.SyscallBreakpoint:
		if err := s.eng.AcknowledgeBreakpoint(ctx); err != nil {
			s.fail(err.Error())
			return false
		}
		s.haltReason = ReasonBreakpoint
		return !s.autoRunning
	case kind.IsRead():
		if s.consumeQueued(ctx, kind) {
			return true
		}
		return s.awaitInput(kind)
	default:
		s.debug("unhandled syscall %s", kind)
		return false
	}
}

func (s *Stepper) print(ctx context.Context) bool {
	payload, err := s.eng.Print(ctx)
	if err != nil {
		s.fail(err.Error())
		return false
	}

	kind, contents := splitPrint(payload)
	if payload != "" {
		s.stdout("syscall %s: %s", kind, sanitisePrint(kind, contents))
	}
	s.notify.IO(dap.IOSegment{Str: contents, Type: dap.SegmentOut})
	return true
}

// splitPrint splits "<print_type>: <contents>". Contents may span lines.
func splitPrint(payload string) (kind, contents string) {
	kind, contents, ok := strings.Cut(payload, ": ")
	if !ok || strings.Contains(kind, ":") {
		return "", payload
	}
	return kind, contents
}

// sanitisePrint renders printed contents for the debug console: strings
// double quoted, characters single quoted.
func sanitisePrint(kind, contents string) string {
	switch kind {
	case "print_string":
		return jsonQuote(contents)
	case "print_char":
		switch contents {
		case `"`:
			return `'"'`
		case "'":
			return `'\''`
		}
		return strings.ReplaceAll(jsonQuote(contents), `"`, "'")
	}
	return contents
}

func jsonQuote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// consumeQueued answers a read from the input queue. It reports whether the
// read was satisfied; on any failure the queue is cleared.
func (s *Stepper) consumeQueued(ctx context.Context, kind engine.SyscallKind) bool {
	if s.queue.Exhausted() {
		return false
	}

	var (
		value string
		err   error
	)
	switch kind {
	case engine.SyscallReadInt:
		var v int64
		if v, err = s.queue.ReadInt(); err == nil {
			value = fmt.Sprint(v)
		}
	case engine.SyscallReadChar:
		var r rune
		if r, err = s.queue.ReadChar(); err == nil {
			value = string(r)
		}
	default:
		s.stderr("Queued input with a %s syscall not currently supported", kind)
		s.queue.Clear()
		return false
	}

	var ferr *inputqueue.FormatError
	switch {
	case errors.Is(err, inputqueue.ErrExhausted):
		s.stderr("All queued input now exhausted")
		s.queue.Clear()
		return false
	case errors.As(err, &ferr):
		s.stderr("Invalid format encountered in queued input during %s syscall: %s. Queued input removed.",
			kind, s.queue.Preview())
		s.queue.Clear()
		return false
	}

	echo, err := s.submit(ctx, kind, value)
	if err != nil {
		s.stderr("%s", err.Error())
		s.stderr("[clearing input queue due to above error]")
		s.queue.Clear()
		return false
	}
	s.stdout("[from queued input] %s", echo)
	return true
}

func (s *Stepper) awaitInput(kind engine.SyscallKind) bool {
	if s.inputNeeded {
		s.stderr("[enter your input to the %s syscall in the input box]", kind)
	} else {
		s.inputNeeded = true
		s.stdout("syscall %s: [enter your input in the input box]", kind)
	}
	s.resumeOnInput = s.autoRunning
	s.haltReason = ReasonInput
	return false
}

// submit forwards text to the pending read syscall and echoes accepted input
// to the I/O view.
func (s *Stepper) submit(ctx context.Context, kind engine.SyscallKind, text string) (string, error) {
	reply, err := s.eng.ProvideInput(ctx, text)
	if err != nil {
		return "", err
	}
	switch reply {
	case "ok":
	case "":
		s.debug("empty result...")
		return "", ErrEmptyInputReply
	default:
		return "", &InputError{Kind: kind, Message: reply}
	}

	s.inputNeeded = false
	s.notify.IO(dap.IOSegment{Str: strings.TrimRight(text, " \t\r\n") + "\n", Type: dap.SegmentIn})
	return fmt.Sprintf("syscall %s: %s", kind, text), nil
}

// ProvideInput answers the pending read syscall with text typed by the user.
// On success execution resumes if the read interrupted autorun; otherwise the
// client is told the program stepped.
func (s *Stepper) ProvideInput(ctx context.Context, text string) (string, error) {
	if s.released {
		return "", engine.ErrReleased
	}

	kind, err := s.eng.SyscallKind(ctx)
	if err != nil {
		return "", err
	}
	if !kind.IsRead() {
		return "", ErrNotReadSyscall
	}

	echo, err := s.submit(ctx, kind, text)
	if err != nil {
		return "", err
	}
	s.resumeAfterInput()
	return echo, nil
}

// RetryInput re-runs a blocked read against the input queue, typically right
// after the queue was refilled.
func (s *Stepper) RetryInput(ctx context.Context) {
	if !s.inputNeeded || s.released {
		return
	}
	if !s.Step(ctx) {
		return
	}
	s.resumeAfterInput()
}

func (s *Stepper) resumeAfterInput() {
	if s.resumeOnInput {
		s.SetAutorun(true, "")
		s.notify.Continued()
		return
	}
	s.notify.Continued()
	s.notify.Stopped(ReasonStep)
}

// StepBack undoes one instruction and reports whether history remained.
func (s *Stepper) StepBack(ctx context.Context) bool {
	if s.released {
		return false
	}
	s.isAtExit = false
	s.inputNeeded = false

	ok, err := s.eng.StepBack(ctx, s.autoRunning && s.runningReverse)
	if err != nil {
		s.logger.Warnw("engine step back failed", "error", err)
		s.stderr("An error has occurred:\n%s", err)
		return false
	}
	return ok
}

// SetAutorun turns autorun on or off. Turning it off emits a stopped
// notification with reason. Either way execution direction returns to
// forward.
func (s *Stepper) SetAutorun(on bool, reason string) {
	if s.terminated {
		s.autoRunning = false
		s.runningReverse = false
		return
	}
	if s.autoRunning && !on {
		s.notify.Stopped(reason)
	}
	s.runningReverse = false
	s.autoRunning = on
}

// RunReverse starts autorun backwards.
func (s *Stepper) RunReverse() {
	if s.terminated {
		return
	}
	s.runningReverse = true
	s.autoRunning = true
}

// Pause halts autorun. Exactly one stopped notification is emitted whether
// or not autorun was on.
func (s *Stepper) Pause() {
	if s.autoRunning {
		s.SetAutorun(false, ReasonPause)
		return
	}
	s.runningReverse = false
	if !s.terminated {
		s.notify.Stopped(ReasonPause)
	}
}

// RunBatch performs up to BatchSize steps while autorun holds and returns
// the delay before the next batch.
func (s *Stepper) RunBatch(ctx context.Context) time.Duration {
	for i := 0; i < s.cfg.BatchSize && s.autoRunning && !s.terminated; i++ {
		if s.runningReverse {
			if !s.StepBack(ctx) {
				s.SetAutorun(false, ReasonBreakpoint)
			}
			continue
		}
		if !s.Step(ctx) {
			s.SetAutorun(false, s.haltReason)
		}
	}

	if s.autoRunning {
		return 0
	}
	return s.cfg.IdleDelay
}

// Line returns the current source line.
func (s *Stepper) Line(ctx context.Context) (int, bool) {
	if s.released {
		return 0, false
	}
	line, ok, err := s.eng.Line(ctx)
	if err != nil {
		s.logger.Warnw("engine line failed", "error", err)
		return 0, false
	}
	return line, ok
}

// PC returns the current program counter.
func (s *Stepper) PC(ctx context.Context) (uint32, bool) {
	if s.released {
		return 0, false
	}
	pc, ok, err := s.eng.PC(ctx)
	if err != nil {
		s.logger.Warnw("engine pc failed", "error", err)
		return 0, false
	}
	return pc, ok
}

// Registers returns the written general purpose registers as "$name", then
// HI and LO when present, then PC.
func (s *Stepper) Registers(ctx context.Context) ([]Register, error) {
	if s.released {
		return nil, engine.ErrReleased
	}
	words, err := s.eng.Registers(ctx)
	if err != nil {
		return nil, err
	}
	regs, err := engine.DecodeRegisters(words)
	if err != nil {
		return nil, err
	}

	written := lo.Filter(lo.Range(len(regs.GPR)), func(i, _ int) bool {
		return regs.IsWritten(i)
	})
	out := lo.Map(written, func(i, _ int) Register {
		return Register{Name: "$" + engine.GeneralRegisterNames[i], Value: regs.GPR[i]}
	})
	if regs.HasHI {
		out = append(out, Register{Name: "HI", Value: regs.HI})
	}
	if regs.HasLO {
		out = append(out, Register{Name: "LO", Value: regs.LO})
	}
	return append(out, Register{Name: "PC", Value: int32(regs.PC)}), nil
}

// Memory returns the decoded memory snapshot.
func (s *Stepper) Memory(ctx context.Context) (engine.Memory, error) {
	if s.released {
		return engine.Memory{}, engine.ErrReleased
	}
	words, err := s.eng.Memory(ctx)
	if err != nil {
		return engine.Memory{}, err
	}
	return engine.DecodeMemory(words)
}

// Disassemble decodes count instructions starting at start.
func (s *Stepper) Disassemble(ctx context.Context, start uint32, count int) ([]engine.Instruction, error) {
	if s.released {
		return nil, engine.ErrReleased
	}
	return s.eng.Disassemble(ctx, start, count)
}

// SetBreakpoints replaces the engine's breakpoints and returns the verified
// lines.
func (s *Stepper) SetBreakpoints(ctx context.Context, lines []int) ([]int, error) {
	if s.released {
		return nil, engine.ErrReleased
	}
	return s.eng.SetBreakpoints(ctx, lines)
}

// Release frees the engine handle without notifying the client. It is safe
// to call more than once.
func (s *Stepper) Release(ctx context.Context) {
	s.autoRunning = false
	s.runningReverse = false
	s.release(ctx)
}

func (s *Stepper) release(ctx context.Context) {
	s.terminated = true
	if s.released {
		return
	}
	s.released = true
	if err := s.eng.Release(ctx); err != nil {
		s.logger.Warnw("engine release failed", "error", err)
	}
}
