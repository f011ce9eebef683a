// Package proc implements engine.Engine by driving an external engine
// process over Content-Length framed JSON on its stdin and stdout.
//
// One process serves one loaded program. The factory starts the process,
// sends load and hands back the Engine; Release asks the process to free the
// runtime and then shuts it down.
package proc

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine"
)

// Config configures engine processes.
type Config struct {
	// Command is the engine executable.
	Command string
	// Args are passed to Command.
	Args []string
	// RequestTimeout bounds each request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	// Logger receives client diagnostics and the process's stderr.
	Logger *zap.SugaredLogger
}

// Engine is an engine.Engine backed by an engine process.
type Engine struct {
	c *client
}

var _ engine.Engine = (*Engine)(nil)

// NewFactory returns a factory that starts one engine process per program.
func NewFactory(cfg Config) engine.Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(ctx context.Context, source, filename string) (engine.Engine, error) {
		if cfg.Command == "" {
			return nil, &engine.ConstructionError{Filename: filename, Err: ErrNoCommand}
		}

		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Stderr = &zapio.Writer{Log: logger.Desugar().With(zap.String("stream", "engine-stderr")), Level: zapcore.WarnLevel}

		t, err := dap.NewStdioTransport(cmd)
		if err != nil {
			return nil, &engine.ConstructionError{Filename: filename, Err: err}
		}
		logger.Debugw("engine process started", "command", cfg.Command, "pid", cmd.Process.Pid)

		return Load(ctx, t, source, filename, cfg.RequestTimeout, logger)
	}
}

// Load sends source to the engine on t. A rejected load is reported as an
// *engine.ConstructionError and t is closed.
func Load(ctx context.Context, t Transport, source, filename string, timeout time.Duration, logger *zap.SugaredLogger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{c: newClient(t, timeout, logger)}

	err := e.c.call(ctx, "load", loadArgs{Source: source, Filename: filename}, nil)
	if err != nil {
		e.c.close()
		cerr := &engine.ConstructionError{Filename: filename, Err: err}
		var remote *RemoteError
		if errors.As(err, &remote) {
			cerr.Message = remote.Message
		}
		return nil, cerr
	}
	return e, nil
}

// Step implements engine.Engine. A step the engine answers with
// success=false is reported as a StepError carrying its message.
func (e *Engine) Step(ctx context.Context) (engine.StepResult, error) {
	var body json.RawMessage
	if err := e.c.call(ctx, "step", nil, &body); err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) {
			return engine.StepError{Message: remote.Message}, nil
		}
		return nil, err
	}
	return decodeStepResult(body)
}

// StepBack implements engine.Engine.
func (e *Engine) StepBack(ctx context.Context, reverse bool) (bool, error) {
	var ok bool
	err := e.c.call(ctx, "stepBack", stepBackArgs{Reverse: reverse}, &ok)
	return ok, err
}

// SyscallKind implements engine.Engine.
func (e *Engine) SyscallKind(ctx context.Context) (engine.SyscallKind, error) {
	var name string
	if err := e.c.call(ctx, "syscallKind", nil, &name); err != nil {
		return engine.SyscallNone, err
	}
	return engine.ParseSyscallKind(name), nil
}

// Print implements engine.Engine.
func (e *Engine) Print(ctx context.Context) (string, error) {
	var out string
	err := e.c.call(ctx, "print", nil, &out)
	return out, err
}

// AcknowledgeBreakpoint implements engine.Engine.
func (e *Engine) AcknowledgeBreakpoint(ctx context.Context) error {
	return e.c.call(ctx, "acknowledgeBreakpoint", nil, nil)
}

// ProvideInput implements engine.Engine.
func (e *Engine) ProvideInput(ctx context.Context, text string) (string, error) {
	var reply string
	err := e.c.call(ctx, "provideInput", provideInputArgs{Text: text}, &reply)
	return reply, err
}

// SetBreakpoints implements engine.Engine.
func (e *Engine) SetBreakpoints(ctx context.Context, lines []int) ([]int, error) {
	if lines == nil {
		lines = []int{}
	}
	var verified []int
	err := e.c.call(ctx, "setBreakpoints", setBreakpointsArgs{Lines: lines}, &verified)
	return verified, err
}

// Line implements engine.Engine.
func (e *Engine) Line(ctx context.Context) (int, bool, error) {
	var line *int
	if err := e.c.call(ctx, "line", nil, &line); err != nil || line == nil {
		return 0, false, err
	}
	return *line, true, nil
}

// PC implements engine.Engine.
func (e *Engine) PC(ctx context.Context) (uint32, bool, error) {
	var pc *uint32
	if err := e.c.call(ctx, "pc", nil, &pc); err != nil || pc == nil {
		return 0, false, err
	}
	return *pc, true, nil
}

// Registers implements engine.Engine.
func (e *Engine) Registers(ctx context.Context) ([]int32, error) {
	var words []int32
	err := e.c.call(ctx, "registers", nil, &words)
	return words, err
}

// Memory implements engine.Engine.
func (e *Engine) Memory(ctx context.Context) ([]uint32, error) {
	var words []uint32
	err := e.c.call(ctx, "memory", nil, &words)
	return words, err
}

// Disassemble implements engine.Engine.
func (e *Engine) Disassemble(ctx context.Context, start uint32, count int) ([]engine.Instruction, error) {
	var out []engine.Instruction
	err := e.c.call(ctx, "disassemble", disassembleArgs{Start: start, Count: count}, &out)
	return out, err
}

// Release implements engine.Engine. The process is shut down even when the
// release request fails.
func (e *Engine) Release(ctx context.Context) error {
	err := e.c.call(ctx, "release", nil, nil)
	if cerr := e.c.close(); err == nil && cerr != nil {
		err = cerr
	}
	return err
}
