package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/go-dap"
	"github.com/samber/lo"

	mdap "github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine"
	"github.com/dshills/mipsdap/internal/stepper"
	"github.com/dshills/mipsdap/internal/watch"
)

// dispatch routes one decoded client message.
func (s *Session) dispatch(ctx context.Context, msg dap.Message) {
	rm, ok := msg.(dap.RequestMessage)
	if !ok {
		s.logger.Debugw("ignoring non-request message", "type", fmt.Sprintf("%T", msg))
		return
	}
	req := rm.GetRequest()
	s.logger.Debugw("request", "command", req.Command, "seq", req.Seq, "state", s.state.String())

	switch r := msg.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(r)
	case *dap.LaunchRequest:
		s.onLaunch(ctx, r)
	case *mdap.DeliverSourceRequest:
		s.onDeliverSource(ctx, r)
	case *dap.ConfigurationDoneRequest:
		s.send(&dap.ConfigurationDoneResponse{Response: s.ok(&r.Request)})
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(ctx, r)
	case *dap.SetInstructionBreakpointsRequest:
		s.send(&dap.SetInstructionBreakpointsResponse{
			Response: s.ok(&r.Request),
			Body:     dap.SetInstructionBreakpointsResponseBody{Breakpoints: []dap.Breakpoint{}},
		})
	case *dap.ThreadsRequest:
		s.send(&dap.ThreadsResponse{
			Response: s.ok(&r.Request),
			Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: threadID, Name: "main"}}},
		})
	case *dap.ContinueRequest:
		s.onContinue(r)
	case *dap.PauseRequest:
		s.onPause(r)
	case *dap.ReverseContinueRequest:
		s.onReverseContinue(r)
	case *dap.NextRequest:
		s.onNext(ctx, r)
	case *dap.StepInRequest:
		s.onStepIn(ctx, r)
	case *dap.StepOutRequest:
		s.onStepOut(ctx, r)
	case *dap.StepBackRequest:
		s.onStepBack(ctx, r)
	case *dap.EvaluateRequest:
		s.onEvaluate(ctx, r)
	case *mdap.QueueInputRequest:
		s.onQueueInput(ctx, r)
	case *dap.StackTraceRequest:
		s.onStackTrace(ctx, r)
	case *dap.ScopesRequest:
		s.onScopes(r)
	case *dap.VariablesRequest:
		s.onVariables(ctx, r)
	case *dap.DisassembleRequest:
		s.onDisassemble(ctx, r)
	case *dap.SourceRequest:
		s.onSource(r)
	case *dap.TerminateRequest:
		s.terminate(ctx)
		s.send(&dap.TerminateResponse{Response: s.ok(&r.Request)})
	case *dap.DisconnectRequest:
		s.terminate(ctx)
		s.send(&dap.DisconnectResponse{Response: s.ok(&r.Request)})
		s.done = true
	default:
		s.fail(req, errUnsupported, fmt.Errorf("unsupported request %q", req.Command))
	}
}

func (s *Session) onInitialize(r *dap.InitializeRequest) {
	s.logger.Infow("client initialized", "client", r.Arguments.ClientID, "adapter", r.Arguments.AdapterID)
	s.send(&dap.InitializeResponse{
		Response: s.ok(&r.Request),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsStepBack:                 true,
			SupportsDisassembleRequest:       true,
			SupportTerminateDebuggee:         true,
			SupportsTerminateRequest:         true,
		},
	})
	if s.state == StateUninitialized {
		s.state = StateInitialized
	}
	s.send(&dap.InitializedEvent{Event: s.event("initialized")})
	s.Output(stepper.Console, s.opts.Banner)
}

func (s *Session) onLaunch(ctx context.Context, r *dap.LaunchRequest) {
	if s.state == StateSourceLoading || s.state == StateActive {
		s.fail(&r.Request, errLaunch, ErrAlreadyLaunched)
		return
	}

	args, err := mdap.ParseLaunchArguments(r.Arguments)
	if err != nil {
		s.fail(&r.Request, errLaunch, err)
		return
	}

	if args.ClientSource != nil {
		uri := args.ClientSource.URI
		s.sourcePath = uri
		s.sourceName = baseName(uri)
		s.launch = &launchContinuation{request: r, uri: uri}
		s.state = StateSourceLoading
		s.logger.Infow("requesting source from client", "uri", uri)
		s.send(&mdap.SourceRequestedEvent{
			Event: s.event(mdap.EventSourceRequested),
			Body:  *args.ClientSource,
		})
		return
	}

	s.sourcePath = args.Program
	s.sourceName = baseName(args.Program)
	data, readErr := os.ReadFile(args.Program)
	if readErr != nil {
		err := fmt.Errorf("%w: %v", ErrSourceUnavailable, readErr)
		s.logger.Warnw("launch failed", "path", args.Program, "error", readErr)
		s.Output(stepper.Important, fmt.Sprintf("can't read %s: %v", args.Program, readErr))
		s.terminate(ctx)
		s.fail(&r.Request, errLaunch, err)
		return
	}
	s.source = string(data)
	s.fromDisk = true
	s.completeLaunch(ctx, r)
}

func (s *Session) onDeliverSource(ctx context.Context, r *mdap.DeliverSourceRequest) {
	s.send(&mdap.DeliverSourceResponse{Response: s.ok(&r.Request)})
	if s.state != StateSourceLoading || s.launch == nil {
		return
	}

	cont := s.launch
	s.launch = nil
	s.source = r.Arguments.Source
	s.completeLaunch(ctx, cont.request)
}

// completeLaunch loads s.source into a new engine and starts the program
// halted at entry.
func (s *Session) completeLaunch(ctx context.Context, r *dap.LaunchRequest) {
	s.lines = splitLines(s.source)

	eng, err := s.opts.Factory(ctx, s.source, s.sourceName)
	if err != nil {
		msg := err.Error()
		var cerr *engine.ConstructionError
		if errors.As(err, &cerr) && cerr.Message != "" {
			msg = cerr.Message
		}
		s.logger.Warnw("engine construction failed", "file", s.sourceName, "error", err)
		s.Output(stepper.Important, "Error:\n"+msg)
		s.terminate(ctx)
		s.fail(&r.Request, errLaunch, err)
		return
	}

	s.stepper = stepper.New(eng, s.queue, s, s.opts.Stepper, s.logger)
	s.sched = stepper.NewScheduler(s.opts.Clock, s.stepper.Config().IdleDelay)
	s.state = StateActive
	s.logger.Infow("program loaded", "file", s.sourceName, "lines", len(s.lines))

	s.send(&dap.LoadedSourceEvent{
		Event: s.event("loadedSource"),
		Body:  dap.LoadedSourceEventBody{Reason: "new", Source: s.dapSource()},
	})

	if pending := s.pendingBreakpoints; pending != nil {
		s.pendingBreakpoints = nil
		s.applyBreakpoints(ctx, pending)
	}

	s.send(&dap.LaunchResponse{Response: s.ok(&r.Request)})
	s.Stopped(stepper.ReasonEntry)

	if s.fromDisk && s.opts.Watch {
		s.startWatch()
	}
}

func (s *Session) startWatch() {
	w, err := watch.NewFileWatcher(s.sourcePath)
	if err != nil {
		s.logger.Warnw("watch source", "path", s.sourcePath, "error", err)
		return
	}
	s.watcher = w
}

func (s *Session) dapSource() dap.Source {
	return dap.Source{Name: s.sourceName, Path: s.sourcePath}
}

// running reports whether a Stepper exists, answering r with an error when
// it does not.
func (s *Session) running(r *dap.Request) bool {
	if s.stepper == nil {
		s.fail(r, errNotRunning, ErrNotRunning)
		return false
	}
	return true
}

func (s *Session) onContinue(r *dap.ContinueRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.send(&dap.ContinueResponse{
		Response: s.ok(&r.Request),
		Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
	})
	s.stepper.SetAutorun(true, "")
}

func (s *Session) onPause(r *dap.PauseRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.send(&dap.PauseResponse{Response: s.ok(&r.Request)})
	s.stepper.Pause()
}

func (s *Session) onReverseContinue(r *dap.ReverseContinueRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.stepper.RunReverse()
	s.send(&dap.ReverseContinueResponse{Response: s.ok(&r.Request)})
}

// stepForward steps until moved reports a position change or the Stepper
// halts.
func (s *Session) stepForward(ctx context.Context, moved func() bool) {
	for s.stepper.Step(ctx) {
		if moved() {
			return
		}
	}
}

// stepBackward steps back until moved reports a position change or history
// runs out.
func (s *Session) stepBackward(ctx context.Context, moved func() bool) {
	for s.stepper.StepBack(ctx) {
		if moved() {
			return
		}
	}
}

func (s *Session) lineChanged(ctx context.Context) func() bool {
	old, _ := s.stepper.Line(ctx)
	return func() bool {
		line, ok := s.stepper.Line(ctx)
		return ok && line != old
	}
}

func (s *Session) pcChanged(ctx context.Context) func() bool {
	old, _ := s.stepper.PC(ctx)
	return func() bool {
		pc, ok := s.stepper.PC(ctx)
		return ok && pc != old
	}
}

// stepped reports the end of a step request.
func (s *Session) stepped() {
	if !s.stepper.Terminated() {
		s.Stopped(stepper.ReasonStep)
	}
}

func (s *Session) onNext(ctx context.Context, r *dap.NextRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.stepForward(ctx, s.lineChanged(ctx))
	s.send(&dap.NextResponse{Response: s.ok(&r.Request)})
	s.stepped()
}

func (s *Session) onStepIn(ctx context.Context, r *dap.StepInRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.stepForward(ctx, s.pcChanged(ctx))
	s.send(&dap.StepInResponse{Response: s.ok(&r.Request)})
	s.stepped()
}

func (s *Session) onStepOut(ctx context.Context, r *dap.StepOutRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.stepBackward(ctx, s.pcChanged(ctx))
	s.send(&dap.StepOutResponse{Response: s.ok(&r.Request)})
	s.stepped()
}

func (s *Session) onStepBack(ctx context.Context, r *dap.StepBackRequest) {
	if !s.running(&r.Request) {
		return
	}
	s.stepBackward(ctx, s.lineChanged(ctx))
	s.send(&dap.StepBackResponse{Response: s.ok(&r.Request)})
	s.stepped()
}

// notReadingText is the evaluate result when no read syscall is pending.
const notReadingText = "not currently in input syscall! Use the queueInput request to queue up input."

func (s *Session) onEvaluate(ctx context.Context, r *dap.EvaluateRequest) {
	var result string
	switch {
	case r.Arguments.Context != "repl":
	case s.stepper == nil || !s.stepper.InputNeeded():
		result = notReadingText
	default:
		echo, err := s.stepper.ProvideInput(ctx, r.Arguments.Expression)
		if err != nil {
			result = err.Error()
		} else {
			result = echo
		}
	}

	s.send(&dap.EvaluateResponse{
		Response: s.ok(&r.Request),
		Body:     dap.EvaluateResponseBody{Result: result},
	})
}

func (s *Session) onQueueInput(ctx context.Context, r *mdap.QueueInputRequest) {
	if s.queue.Exhausted() {
		s.Output(stepper.Stdout, "[input queued]")
	} else {
		s.Output(stepper.Stdout, "[previous input queue cleared, and new input queued]")
	}
	s.queue.Clear()
	s.queue.Add(r.Arguments.Contents)

	s.send(&mdap.QueueInputResponse{Response: s.ok(&r.Request)})
	if s.stepper != nil && s.stepper.InputNeeded() {
		s.stepper.RetryInput(ctx)
	}
}

func (s *Session) onStackTrace(ctx context.Context, r *dap.StackTraceRequest) {
	body := dap.StackTraceResponseBody{StackFrames: []dap.StackFrame{}}
	if s.stepper != nil && !s.stepper.Terminated() {
		line, _ := s.stepper.Line(ctx)
		pc, _ := s.stepper.PC(ctx)
		src := s.dapSource()
		body.StackFrames = append(body.StackFrames, dap.StackFrame{
			Id:                          1,
			Name:                        s.sourceName,
			Source:                      &src,
			Line:                        line,
			Column:                      1,
			InstructionPointerReference: hex32(pc),
		})
		body.TotalFrames = 1
	}
	s.send(&dap.StackTraceResponse{Response: s.ok(&r.Request), Body: body})
}

func (s *Session) onScopes(r *dap.ScopesRequest) {
	s.send(&dap.ScopesResponse{
		Response: s.ok(&r.Request),
		Body: dap.ScopesResponseBody{Scopes: []dap.Scope{{
			Name:               "Registers",
			PresentationHint:   "registers",
			VariablesReference: registersReference,
		}}},
	})
}

func (s *Session) onVariables(ctx context.Context, r *dap.VariablesRequest) {
	vars := []dap.Variable{}
	if s.stepper == nil || s.stepper.Terminated() || r.Arguments.VariablesReference != registersReference {
		s.send(&dap.VariablesResponse{Response: s.ok(&r.Request), Body: dap.VariablesResponseBody{Variables: vars}})
		return
	}

	regs, err := s.stepper.Registers(ctx)
	if err != nil {
		s.fail(&r.Request, errEngine, fmt.Errorf("read registers: %w", err))
		return
	}
	vars = lo.Map(regs, func(reg stepper.Register, _ int) dap.Variable {
		return dap.Variable{Name: reg.Name, Value: RenderRegister(reg.Value)}
	})
	s.send(&dap.VariablesResponse{Response: s.ok(&r.Request), Body: dap.VariablesResponseBody{Variables: vars}})

	mem, err := s.stepper.Memory(ctx)
	if err != nil {
		s.logger.Warnw("read memory", "error", err)
		return
	}
	if mem.Empty() {
		return
	}
	s.send(&mdap.MemorySnapshotEvent{
		Event: s.event(mdap.EventMemorySnapshot),
		Body:  mdap.MemorySnapshotEventBody{Memory: mem.Encode()},
	})
}

func (s *Session) onDisassemble(ctx context.Context, r *dap.DisassembleRequest) {
	if !s.running(&r.Request) {
		return
	}

	base, err := parseAddress(r.Arguments.MemoryReference)
	if err != nil {
		s.fail(&r.Request, errEngine, fmt.Errorf("memory reference %q: %w", r.Arguments.MemoryReference, err))
		return
	}
	start := uint32(base + int64(r.Arguments.InstructionOffset)*4 + int64(r.Arguments.Offset))

	instrs, err := s.stepper.Disassemble(ctx, start, r.Arguments.InstructionCount)
	if err != nil {
		s.fail(&r.Request, errEngine, fmt.Errorf("disassemble: %w", err))
		return
	}

	src := s.dapSource()
	out := lo.Map(instrs, func(in engine.Instruction, _ int) dap.DisassembledInstruction {
		return dap.DisassembledInstruction{
			Address:          hex32(in.Address),
			Instruction:      in.Text,
			InstructionBytes: in.Bytes,
			Symbol:           in.Symbols,
			Location:         &src,
			Line:             in.Line,
			EndLine:          in.Line,
			Column:           1,
		}
	})
	s.send(&dap.DisassembleResponse{
		Response: s.ok(&r.Request),
		Body:     dap.DisassembleResponseBody{Instructions: out},
	})
}

func (s *Session) onSource(r *dap.SourceRequest) {
	if s.state != StateActive && s.source == "" {
		s.fail(&r.Request, errNotRunning, ErrSourceUnavailable)
		return
	}
	s.send(&dap.SourceResponse{
		Response: s.ok(&r.Request),
		Body:     dap.SourceResponseBody{Content: s.source},
	})
}
