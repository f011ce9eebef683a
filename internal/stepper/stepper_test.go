package stepper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine"
	"github.com/dshills/mipsdap/internal/engine/enginetest"
	"github.com/dshills/mipsdap/internal/inputqueue"
)

type outputLine struct {
	category Category
	line     string
}

// recorder is a Notifier that records everything in order.
type recorder struct {
	events []string
	output []outputLine
	io     []dap.IOSegment
}

func (r *recorder) Stopped(reason string) { r.events = append(r.events, "stopped:"+reason) }
func (r *recorder) Continued()            { r.events = append(r.events, "continued") }
func (r *recorder) Terminated()           { r.events = append(r.events, "terminated") }
func (r *recorder) Output(c Category, line string) {
	r.output = append(r.output, outputLine{c, line})
}
func (r *recorder) IO(seg dap.IOSegment) { r.io = append(r.io, seg) }

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) lines(c Category) []string {
	var out []string
	for _, o := range r.output {
		if o.category == c {
			out = append(out, o.line)
		}
	}
	return out
}

func plain(line int) enginetest.Instr {
	return enginetest.Instr{Line: line, Text: "nop"}
}

func syscall(line int, kind engine.SyscallKind) enginetest.Instr {
	return enginetest.Instr{Line: line, Syscall: kind, Text: "syscall"}
}

func newStepper(prog enginetest.Program) (*Stepper, *enginetest.Engine, *recorder, *inputqueue.Queue) {
	eng := enginetest.New(prog)
	rec := &recorder{}
	q := inputqueue.New()
	return New(eng, q, rec, Config{}, nil), eng, rec, q
}

var ctx = context.Background()

func TestConfigDefaults(t *testing.T) {
	s, _, _, _ := newStepper(nil)
	assert.Equal(t, Config{BatchSize: 300, IdleDelay: 50 * time.Millisecond}, s.Config())
}

func TestStepSuccess(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{plain(1), plain(2)})

	assert.True(t, s.Step(ctx))
	assert.Equal(t, 1, eng.Position())
	assert.Empty(t, rec.events)
}

func TestExitIsIdempotent(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{syscall(1, engine.SyscallExit)})

	assert.False(t, s.Step(ctx))
	assert.True(t, s.AtExit())
	assert.Equal(t, []string{"syscall exit: press continue/next/stop to exit"}, rec.lines(Stdout))

	for i := 0; i < 5; i++ {
		assert.False(t, s.Step(ctx))
	}

	assert.Equal(t, 1, rec.count("terminated"))
	assert.Equal(t, 1, eng.Releases())
	assert.True(t, s.Terminated())
	assert.Equal(t, []string{
		"syscall exit: press continue/next/stop to exit",
		"exiting...",
	}, rec.lines(Stdout))

	s.Release(ctx)
	assert.Equal(t, 1, eng.Releases())
}

func TestReleaseThenExitDoesNotReleaseTwice(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{syscall(1, engine.SyscallExit)})

	assert.False(t, s.Step(ctx))
	s.Release(ctx)
	assert.False(t, s.Step(ctx))

	assert.Equal(t, 1, eng.Releases())
	assert.Zero(t, rec.count("terminated"))
}

func TestPrint(t *testing.T) {
	prog := enginetest.Program{
		{Line: 1, Syscall: engine.SyscallPrint, Print: "print_string: hi\n"},
		{Line: 2, Syscall: engine.SyscallPrint, Print: "print_int: 42"},
	}
	s, _, rec, _ := newStepper(prog)

	assert.True(t, s.Step(ctx))
	assert.True(t, s.Step(ctx))

	assert.Equal(t, []string{`syscall print_string: "hi\n"`, "syscall print_int: 42"}, rec.lines(Stdout))
	assert.Equal(t, []dap.IOSegment{
		{Str: "hi\n", Type: dap.SegmentOut},
		{Str: "42", Type: dap.SegmentOut},
	}, rec.io)
}

func TestSanitisePrint(t *testing.T) {
	tests := []struct {
		kind, contents, want string
	}{
		{"print_string", "a\tb", `"a\tb"`},
		{"print_string", "<tag> & \"q\"", `"<tag> & \"q\""`},
		{"print_char", "a", "'a'"},
		{"print_char", "\n", `'\n'`},
		{"print_char", `"`, `'"'`},
		{"print_char", "'", `'\''`},
		{"print_int", "-5", "-5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitisePrint(tt.kind, tt.contents), "%s %q", tt.kind, tt.contents)
	}
}

func TestSplitPrint(t *testing.T) {
	kind, contents := splitPrint("print_string: a: b\nc")
	assert.Equal(t, "print_string", kind)
	assert.Equal(t, "a: b\nc", contents)

	kind, contents = splitPrint("garbage")
	assert.Empty(t, kind)
	assert.Equal(t, "garbage", contents)
}

func TestBreakpointHaltsAutorunOnce(t *testing.T) {
	prog := enginetest.Program{plain(1), plain(2), plain(3), plain(4), plain(5)}
	s, eng, rec, _ := newStepper(prog)
	_, err := s.SetBreakpoints(ctx, []int{4})
	require.NoError(t, err)

	s.SetAutorun(true, "")
	delay := s.RunBatch(ctx)

	assert.Equal(t, 50*time.Millisecond, delay)
	assert.False(t, s.AutoRunning())
	assert.Equal(t, []string{"stopped:breakpoint"}, rec.events)
	line, ok := s.Line(ctx)
	require.True(t, ok)
	assert.Equal(t, 4, line)

	// Continuing passes the acknowledged breakpoint.
	s.SetAutorun(true, "")
	s.RunBatch(ctx)
	assert.Equal(t, 5, eng.Position())
}

func TestManualStepPassesBreakpoint(t *testing.T) {
	s, eng, _, _ := newStepper(enginetest.Program{plain(1), plain(2)})
	_, err := s.SetBreakpoints(ctx, []int{1})
	require.NoError(t, err)

	assert.True(t, s.Step(ctx))
	assert.Equal(t, 0, eng.Position())
	assert.True(t, s.Step(ctx))
	assert.Equal(t, 1, eng.Position())
}

func TestRunBatchStaysHotWhileRunning(t *testing.T) {
	prog := make(enginetest.Program, 1000)
	for i := range prog {
		prog[i] = plain(i + 1)
	}
	eng := enginetest.New(prog)
	s := New(eng, inputqueue.New(), &recorder{}, Config{BatchSize: 10}, nil)

	s.SetAutorun(true, "")
	assert.Equal(t, time.Duration(0), s.RunBatch(ctx))
	assert.Equal(t, 10, eng.Steps())
	assert.True(t, s.AutoRunning())
}

func TestRunBatchIdle(t *testing.T) {
	s, eng, _, _ := newStepper(enginetest.Program{plain(1)})
	assert.Equal(t, DefaultIdleDelay, s.RunBatch(ctx))
	assert.Zero(t, eng.Steps())
}

func TestSetAutorunResetsReverse(t *testing.T) {
	s, _, rec, _ := newStepper(enginetest.Program{plain(1), plain(2)})

	s.RunReverse()
	assert.True(t, s.AutoRunning())
	assert.True(t, s.RunningReverse())

	s.SetAutorun(true, "")
	assert.False(t, s.RunningReverse())

	s.RunReverse()
	s.SetAutorun(false, ReasonPause)
	assert.False(t, s.AutoRunning())
	assert.False(t, s.RunningReverse())
	assert.Equal(t, []string{"stopped:pause"}, rec.events)
}

func TestReverseRunHaltsAtStart(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{plain(1), plain(2), plain(3)})
	assert.True(t, s.Step(ctx))
	assert.True(t, s.Step(ctx))

	s.RunReverse()
	s.RunBatch(ctx)

	assert.Equal(t, 0, eng.Position())
	assert.False(t, s.AutoRunning())
	assert.False(t, s.RunningReverse())
	assert.Equal(t, []string{"stopped:breakpoint"}, rec.events)
	assert.Equal(t, []bool{true, true, true}, eng.ReverseFlags())
}

func TestStepBackClearsExitAndInput(t *testing.T) {
	s, eng, _, _ := newStepper(enginetest.Program{plain(1), syscall(2, engine.SyscallExit)})
	assert.True(t, s.Step(ctx))
	assert.False(t, s.Step(ctx))
	require.True(t, s.AtExit())

	assert.True(t, s.StepBack(ctx))
	assert.False(t, s.AtExit())
	assert.False(t, s.InputNeeded())
	assert.Equal(t, []bool{false}, eng.ReverseFlags())
}

func TestPause(t *testing.T) {
	s, _, rec, _ := newStepper(enginetest.Program{plain(1)})

	s.Pause()
	assert.Equal(t, []string{"stopped:pause"}, rec.events)

	s.SetAutorun(true, "")
	s.Pause()
	assert.Equal(t, []string{"stopped:pause", "stopped:pause"}, rec.events)
}

func TestStepError(t *testing.T) {
	s, _, rec, _ := newStepper(enginetest.Program{{Line: 1, Fault: "unaligned load"}})

	s.SetAutorun(true, "")
	s.RunBatch(ctx)

	assert.Equal(t, []string{"An error has occurred:\nunaligned load"}, rec.lines(Stderr))
	assert.Equal(t, []string{"stopped:exception"}, rec.events)
}

func TestNoRuntime(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{plain(1)})
	require.NoError(t, eng.Release(ctx))

	s.SetAutorun(true, "")
	s.RunBatch(ctx)

	assert.Equal(t, []string{"stopped:step"}, rec.events)
}

func TestInteractiveInput(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{syscall(1, engine.SyscallReadInt), plain(2)})

	assert.False(t, s.Step(ctx))
	assert.True(t, s.InputNeeded())
	assert.Equal(t, []string{"syscall read_int: [enter your input in the input box]"}, rec.lines(Stdout))

	// A second attempt prompts on stderr instead.
	assert.False(t, s.Step(ctx))
	assert.Equal(t, []string{"[enter your input to the read_int syscall in the input box]"}, rec.lines(Stderr))

	_, err := s.ProvideInput(ctx, "abc")
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, ierr.Message, "not a valid integer")
	assert.True(t, s.InputNeeded())

	_, err = s.ProvideInput(ctx, "12  ")
	require.Error(t, err, "trailing spaces are rejected by the engine")

	echo, err := s.ProvideInput(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, "syscall read_int: 12", echo)
	assert.False(t, s.InputNeeded())
	assert.Equal(t, []string{"continued", "stopped:step"}, rec.events)
	assert.Equal(t, []dap.IOSegment{{Str: "12\n", Type: dap.SegmentIn}}, rec.io)
	assert.Equal(t, []string{"12"}, eng.Inputs())
}

func TestProvideInputWithoutRead(t *testing.T) {
	s, _, _, _ := newStepper(enginetest.Program{plain(1)})

	_, err := s.ProvideInput(ctx, "1")
	assert.ErrorIs(t, err, ErrNotReadSyscall)
}

// silentEngine answers every input with an empty reply.
type silentEngine struct {
	*enginetest.Engine
}

func (silentEngine) ProvideInput(context.Context, string) (string, error) { return "", nil }

func TestProvideInputEmptyReply(t *testing.T) {
	eng := enginetest.New(enginetest.Program{syscall(1, engine.SyscallReadString)})
	rec := &recorder{}
	s := New(silentEngine{eng}, inputqueue.New(), rec, Config{}, nil)
	assert.False(t, s.Step(ctx))

	_, err := s.ProvideInput(ctx, "hello")
	assert.ErrorIs(t, err, ErrEmptyInputReply)
	assert.Equal(t, []string{"[debug] empty result..."}, rec.lines(Console))
	assert.True(t, s.InputNeeded())
}

func TestInputResumesAutorun(t *testing.T) {
	prog := enginetest.Program{plain(1), syscall(2, engine.SyscallReadInt), plain(3), plain(4)}
	s, eng, rec, _ := newStepper(prog)

	s.SetAutorun(true, "")
	s.RunBatch(ctx)
	assert.Equal(t, []string{"stopped:input"}, rec.events)
	require.True(t, s.InputNeeded())

	_, err := s.ProvideInput(ctx, "5")
	require.NoError(t, err)
	assert.True(t, s.AutoRunning())
	assert.Equal(t, []string{"stopped:input", "continued"}, rec.events)

	s.RunBatch(ctx)
	assert.Equal(t, 4, eng.Position())
}

func TestQueuedInputAcrossReads(t *testing.T) {
	prog := enginetest.Program{
		syscall(1, engine.SyscallReadInt),
		plain(2),
		syscall(3, engine.SyscallReadInt),
		plain(4),
		syscall(5, engine.SyscallExit),
	}
	s, eng, rec, q := newStepper(prog)

	s.SetAutorun(true, "")
	s.RunBatch(ctx)
	require.True(t, s.InputNeeded())

	q.Clear()
	q.Add("42\n7")
	s.RetryInput(ctx)

	assert.True(t, s.AutoRunning())
	s.RunBatch(ctx)

	assert.Equal(t, []string{"42", "7"}, eng.Inputs())
	assert.Equal(t, []string{"stopped:input", "continued", "stopped:exit"}, rec.events)
	assert.Contains(t, rec.lines(Stdout), "[from queued input] syscall read_int: 42")
	assert.Contains(t, rec.lines(Stdout), "[from queued input] syscall read_int: 7")
	assert.True(t, q.Exhausted())
}

func TestQueuedInputWhenPaused(t *testing.T) {
	s, eng, rec, q := newStepper(enginetest.Program{syscall(1, engine.SyscallReadChar), plain(2)})

	assert.False(t, s.Step(ctx))
	q.Add("  xy")
	s.RetryInput(ctx)

	assert.Equal(t, []string{"x"}, eng.Inputs())
	assert.False(t, s.AutoRunning())
	assert.Equal(t, []string{"continued", "stopped:step"}, rec.events)
}

func TestQueuedInputFailures(t *testing.T) {
	tests := []struct {
		name   string
		kind   engine.SyscallKind
		queued string
		want   []string
	}{
		{
			name:   "exhausted",
			kind:   engine.SyscallReadInt,
			queued: "   ",
			want:   []string{"All queued input now exhausted"},
		},
		{
			name:   "bad format",
			kind:   engine.SyscallReadInt,
			queued: "abc",
			want:   []string{`Invalid format encountered in queued input during read_int syscall: "abc". Queued input removed.`},
		},
		{
			name:   "greedy malformed run",
			kind:   engine.SyscallReadInt,
			queued: "12-3 4",
			want:   []string{`Invalid format encountered in queued input during read_int syscall: " 4". Queued input removed.`},
		},
		{
			name:   "unsupported kind",
			kind:   engine.SyscallReadString,
			queued: "hello",
			want:   []string{"Queued input with a read_string syscall not currently supported"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, eng, rec, q := newStepper(enginetest.Program{syscall(1, tt.kind), plain(2)})
			q.Add(tt.queued)

			assert.False(t, s.Step(ctx))
			assert.Equal(t, tt.want, rec.lines(Stderr))
			assert.True(t, q.Exhausted())
			assert.True(t, s.InputNeeded())
			assert.Empty(t, eng.Inputs())
			assert.Equal(t, []string{"syscall " + tt.kind.String() + ": [enter your input in the input box]"}, rec.lines(Stdout))
		})
	}
}

func TestQueuedInputRejected(t *testing.T) {
	s, eng, rec, q := newStepper(enginetest.Program{syscall(1, engine.SyscallReadInt)})
	eng.RejectInput = "value out of range"
	q.Add("99999999999")

	assert.False(t, s.Step(ctx))
	assert.Equal(t, []string{
		"value out of range",
		"[clearing input queue due to above error]",
	}, rec.lines(Stderr))
	assert.True(t, q.Exhausted())
	assert.True(t, s.InputNeeded())
}

func TestUnhandledSyscall(t *testing.T) {
	s, _, rec, _ := newStepper(enginetest.Program{syscall(1, engine.SyscallSbrk)})

	assert.False(t, s.Step(ctx))
	require.Len(t, rec.output, 1)
	assert.Equal(t, Console, rec.output[0].category)
	assert.True(t, strings.HasSuffix(rec.output[0].line, "unhandled syscall sbrk"))
}

func TestRegisters(t *testing.T) {
	s, eng, _, _ := newStepper(enginetest.Program{plain(1), plain(2)})
	eng.Regs.GPR[8] = 5
	eng.Regs.GPR[29] = -16
	eng.Regs.GPR[9] = 77
	eng.Regs.Written = 1<<8 | 1<<29
	eng.Regs.HasLO = true
	eng.Regs.LO = 3
	assert.True(t, s.Step(ctx))

	regs, err := s.Registers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Register{
		{Name: "$t0", Value: 5},
		{Name: "$sp", Value: -16},
		{Name: "LO", Value: 3},
		{Name: "PC", Value: 0x00400004},
	}, regs)
}

func TestIntrospectionAfterRelease(t *testing.T) {
	s, _, _, _ := newStepper(enginetest.Program{plain(1)})
	s.Release(ctx)

	_, ok := s.Line(ctx)
	assert.False(t, ok)
	_, ok = s.PC(ctx)
	assert.False(t, ok)
	_, err := s.Registers(ctx)
	assert.ErrorIs(t, err, engine.ErrReleased)
	_, err = s.Memory(ctx)
	assert.ErrorIs(t, err, engine.ErrReleased)
	_, err = s.ProvideInput(ctx, "1")
	assert.ErrorIs(t, err, engine.ErrReleased)
	assert.False(t, s.StepBack(ctx))
}

func TestAutorunIgnoredAfterRelease(t *testing.T) {
	s, eng, rec, _ := newStepper(enginetest.Program{plain(1)})
	s.SetAutorun(true, "")
	s.Release(ctx)

	assert.False(t, s.AutoRunning())
	s.SetAutorun(true, "")
	s.RunBatch(ctx)
	assert.Zero(t, eng.Steps())
	assert.Empty(t, rec.events)
}
