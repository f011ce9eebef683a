// Package session implements the debug session controller.
//
// A Session serves one client connection. It decodes DAP requests, drives the
// session state machine, resolves the program source, and owns the Stepper
// that runs the loaded program. All session and Stepper state belongs to the
// goroutine running Run; a reader goroutine only decodes messages into a
// channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/google/go-dap"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mdap "github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine"
	"github.com/dshills/mipsdap/internal/inputqueue"
	"github.com/dshills/mipsdap/internal/logging"
	"github.com/dshills/mipsdap/internal/stepper"
	"github.com/dshills/mipsdap/internal/watch"
)

// DefaultBanner is written to the console after initialize.
const DefaultBanner = "mipsdap: MIPS debug adapter ready"

// threadID is the id of the only thread.
const threadID = 1

// registersReference is the variablesReference of the Registers scope.
const registersReference = 7

// Options configure a Session.
type Options struct {
	// Factory constructs the engine for a launched program.
	Factory engine.Factory

	// Stepper tunes the autorun loop.
	Stepper stepper.Config

	// Clock drives the autorun scheduler. Defaults to the wall clock.
	Clock clock.Clock

	// Watch enables the reload warning for programs read from disk.
	Watch bool

	// Banner replaces DefaultBanner.
	Banner string

	// Logger is the session logger. Defaults to a no-op logger.
	Logger *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return logging.Nop()
	}
	return o.Logger
}

// Session is one debug session.
type Session struct {
	id     string
	conn   *mdap.Conn
	opts   Options
	logger *zap.SugaredLogger

	state State
	queue *inputqueue.Queue

	stepper *stepper.Stepper
	sched   *stepper.Scheduler
	watcher *watch.FileWatcher

	// source is the program text, lines its split form.
	source     string
	lines      []string
	sourceName string
	sourcePath string
	fromDisk   bool

	launch             *launchContinuation
	pendingBreakpoints *dap.SetBreakpointsRequest

	terminatedSent bool
	reloadWarned   bool
	done           bool
}

// New creates a session over t.
func New(t mdap.Transport, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Banner == "" {
		opts.Banner = DefaultBanner
	}
	opts.Logger = opts.logger()

	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   mdap.NewConn(t),
		opts:   opts,
		logger: logging.WithComponent(opts.Logger, "session").With("session", id),
		state:  StateUninitialized,
		queue:  inputqueue.New(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// incoming is one decoded client message or a read failure.
type incoming struct {
	msg dap.Message
	err error
}

// Run serves the session until the client disconnects, the transport fails,
// or ctx is cancelled. Run closes the transport and releases the engine
// before returning.
func (s *Session) Run(ctx context.Context) error {
	msgs := make(chan incoming)
	stop := make(chan struct{})
	readerDone := make(chan struct{})

	go s.readLoop(msgs, stop, readerDone)

	defer func() {
		close(stop)
		s.shutdown(context.WithoutCancel(ctx))
		s.conn.Close()
		<-readerDone
	}()

	s.logger.Infow("session started")
	for !s.done {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case in := <-msgs:
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					s.logger.Infow("client closed connection")
					return nil
				}
				return fmt.Errorf("read request: %w", in.err)
			}
			s.dispatch(ctx, in.msg)

		case <-s.sched.C():
			s.tick(ctx)

		case ev := <-s.watcher.Events():
			s.sourceChanged(ev)

		case err := <-s.watcher.Errors():
			s.logger.Warnw("source watcher error", "error", err)
		}
	}

	s.logger.Infow("session ended")
	return nil
}

// readLoop decodes client messages. Messages that fail to decode are
// answered here so the loop only sees well-formed requests.
func (s *Session) readLoop(msgs chan<- incoming, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		msg, err := s.conn.ReadMessage()

		var decodeErr *mdap.DecodeError
		if errors.As(err, &decodeErr) {
			s.rejectUndecodable(decodeErr)
			continue
		}

		select {
		case msgs <- incoming{msg: msg, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) rejectUndecodable(err *mdap.DecodeError) {
	s.logger.Warnw("undecodable message", "command", err.Command, "error", err.Err)
	if err.Command == "" {
		return
	}
	s.send(&dap.ErrorResponse{
		Response: s.response(&dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: err.Seq, Type: "request"},
			Command:         err.Command,
		}, false, err.Error()),
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Id: errDecode, Format: err.Error(), ShowUser: true},
		},
	})
}

// tick runs one autorun batch and re-arms the scheduler.
func (s *Session) tick(ctx context.Context) {
	if s.stepper == nil || s.stepper.Terminated() {
		s.sched.Stop()
		return
	}
	delay := s.stepper.RunBatch(ctx)
	if s.stepper.Terminated() {
		s.sched.Stop()
		return
	}
	s.sched.Reset(delay)
}

func (s *Session) sourceChanged(ev watch.Event) {
	s.logger.Debugw("source changed", "path", ev.Path, "op", ev.Op.String())
	if s.reloadWarned || ev.Op == watch.OpRemove {
		return
	}
	s.reloadWarned = true
	s.Output(stepper.Important, fmt.Sprintf("Debug session must be reloaded for %s!", s.sourceName))
}

// shutdown releases everything the session holds.
func (s *Session) shutdown(ctx context.Context) {
	if s.stepper != nil {
		s.stepper.Release(ctx)
	}
	s.sched.Stop()
	if err := s.watcher.Close(); err != nil {
		s.logger.Warnw("close source watcher", "error", err)
	}
}

// terminate releases the engine and tells the client the program ended,
// once. A launch still waiting for its source and any stored breakpoint
// request are answered.
func (s *Session) terminate(ctx context.Context) {
	if s.stepper != nil {
		s.stepper.Release(ctx)
	}
	s.sched.Stop()
	s.state = StateTerminated
	if !s.terminatedSent {
		s.Terminated()
	}

	if cont := s.launch; cont != nil {
		s.launch = nil
		s.fail(&cont.request.Request, errLaunch,
			fmt.Errorf("%w: session terminated before %s was delivered", ErrSourceUnavailable, cont.uri))
	}
	if pending := s.pendingBreakpoints; pending != nil {
		s.pendingBreakpoints = nil
		s.answerUnverified(pending)
	}
}

// send writes msg, logging failures. A broken transport surfaces as a read
// error in the reader goroutine.
func (s *Session) send(msg dap.Message) {
	if err := s.conn.WriteMessage(msg); err != nil {
		s.logger.Warnw("send failed", "message", fmt.Sprintf("%T", msg), "error", err)
	}
}

func (s *Session) event(name string) dap.Event {
	s.logger.Debugw("event", "event", name)
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.conn.NextSeq(), Type: "event"},
		Event:           name,
	}
}

func (s *Session) response(req *dap.Request, success bool, message string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.conn.NextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Success:         success,
		Command:         req.Command,
		Message:         message,
	}
}

func (s *Session) ok(req *dap.Request) dap.Response {
	return s.response(req, true, "")
}

// fail sends an error response for req.
func (s *Session) fail(req *dap.Request, id int, err error) {
	s.logger.Debugw("request failed", "command", req.Command, "error", err)
	s.send(&dap.ErrorResponse{
		Response: s.response(req, false, err.Error()),
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Id: id, Format: err.Error()},
		},
	})
}

// Stopped implements stepper.Notifier.
func (s *Session) Stopped(reason string) {
	s.send(&dap.StoppedEvent{
		Event: s.event("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: true,
		},
	})
}

// Continued implements stepper.Notifier.
func (s *Session) Continued() {
	s.send(&dap.ContinuedEvent{
		Event: s.event("continued"),
		Body: dap.ContinuedEventBody{
			ThreadId:            threadID,
			AllThreadsContinued: true,
		},
	})
}

// Terminated implements stepper.Notifier.
func (s *Session) Terminated() {
	s.terminatedSent = true
	s.state = StateTerminated
	s.send(&dap.TerminatedEvent{Event: s.event("terminated")})
}

// Output implements stepper.Notifier.
func (s *Session) Output(category stepper.Category, line string) {
	s.send(&dap.OutputEvent{
		Event: s.event("output"),
		Body: dap.OutputEventBody{
			Category: string(category),
			Output:   line + "\n",
		},
	})
}

// IO implements stepper.Notifier.
func (s *Session) IO(segment mdap.IOSegment) {
	s.send(&mdap.IOSegmentsEvent{
		Event: s.event(mdap.EventIOSegments),
		Body:  mdap.IOSegmentsEventBody{Segments: []mdap.IOSegment{segment}},
	})
}

var _ stepper.Notifier = (*Session)(nil)
