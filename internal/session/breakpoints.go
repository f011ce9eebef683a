package session

import (
	"context"
	"fmt"

	"github.com/google/go-dap"
	"github.com/samber/lo"
)

func (s *Session) onSetBreakpoints(ctx context.Context, r *dap.SetBreakpointsRequest) {
	switch {
	case s.stepper != nil && !s.stepper.Terminated():
		s.applyBreakpoints(ctx, r)
	case s.state == StateTerminated:
		s.answerUnverified(r)
	default:
		if prev := s.pendingBreakpoints; prev != nil {
			s.answerUnverified(prev)
		}
		s.pendingBreakpoints = r
	}
}

// requestedLines returns the lines of r, falling back to the deprecated
// lines field.
func requestedLines(r *dap.SetBreakpointsRequest) []int {
	if len(r.Arguments.Breakpoints) > 0 {
		return lo.Map(r.Arguments.Breakpoints, func(bp dap.SourceBreakpoint, _ int) int {
			return bp.Line
		})
	}
	return r.Arguments.Lines
}

type placement struct {
	line       int
	executable bool
}

// applyBreakpoints moves each requested line onto executable code, sends
// the executable lines to the engine and reports which it verified.
func (s *Session) applyBreakpoints(ctx context.Context, r *dap.SetBreakpointsRequest) {
	placed := lo.Map(requestedLines(r), func(line int, _ int) placement {
		l, ok := executableLine(s.lines, line)
		return placement{line: l, executable: ok}
	})

	lines := lo.Uniq(lo.FilterMap(placed, func(p placement, _ int) (int, bool) {
		return p.line, p.executable
	}))
	verified, err := s.stepper.SetBreakpoints(ctx, lines)
	if err != nil {
		s.fail(&r.Request, errEngine, fmt.Errorf("set breakpoints: %w", err))
		return
	}
	s.logger.Debugw("breakpoints set", "requested", len(placed), "verified", len(verified))

	src := s.dapSource()
	bps := lo.Map(placed, func(p placement, i int) dap.Breakpoint {
		bp := dap.Breakpoint{
			Id:       i + 1,
			Verified: p.executable && lo.Contains(verified, p.line),
			Source:   &src,
			Line:     p.line,
			EndLine:  p.line,
		}
		if !p.executable {
			bp.Message = fmt.Sprintf("no code at or after line %d", p.line)
		}
		return bp
	})
	s.send(&dap.SetBreakpointsResponse{
		Response: s.ok(&r.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
	})
}

// answerUnverified responds to r with every breakpoint unverified.
func (s *Session) answerUnverified(r *dap.SetBreakpointsRequest) {
	bps := lo.Map(requestedLines(r), func(line int, i int) dap.Breakpoint {
		return dap.Breakpoint{Id: i + 1, Line: line, EndLine: line}
	})
	s.send(&dap.SetBreakpointsResponse{
		Response: s.ok(&r.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
	})
}
