package proc

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/mipsdap/internal/engine"
)

// request is a command sent to the engine process.
type request struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// response is the engine's answer to a request.
type response struct {
	Type       string          `json:"type"`
	RequestSeq int             `json:"request_seq"`
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Command arguments.
type (
	loadArgs struct {
		Source   string `json:"source"`
		Filename string `json:"filename"`
	}
	stepBackArgs struct {
		Reverse bool `json:"reverse"`
	}
	provideInputArgs struct {
		Text string `json:"text"`
	}
	setBreakpointsArgs struct {
		Lines []int `json:"lines"`
	}
	disassembleArgs struct {
		Start uint32 `json:"start"`
		Count int    `json:"count"`
	}
)

// Externally tagged step result names.
const (
	tagSuccess      = "StepSuccess"
	tagSyscallGuard = "AtSyscallGuard"
	tagNoRuntime    = "NoRuntime"
	tagError        = "StepError"
)

// decodeStepResult decodes an externally tagged step result. Unit variants
// are bare strings; StepError carries its message, and AtSyscallGuard may
// carry the syscall name.
func decodeStepResult(body json.RawMessage) (engine.StepResult, error) {
	var tag string
	if err := json.Unmarshal(body, &tag); err == nil {
		switch tag {
		case tagSuccess:
			return engine.Success{}, nil
		case tagSyscallGuard:
			return engine.SyscallGuard{Kind: engine.SyscallUnknown}, nil
		case tagNoRuntime:
			return engine.NoRuntime{}, nil
		}
		return nil, fmt.Errorf("unknown step result %q", tag)
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(body, &tagged); err != nil || len(tagged) != 1 {
		return nil, fmt.Errorf("malformed step result %s", body)
	}
	for name, v := range tagged {
		var payload string
		if err := json.Unmarshal(v, &payload); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", name, err)
		}
		switch name {
		case tagError:
			return engine.StepError{Message: payload}, nil
		case tagSyscallGuard:
			return engine.SyscallGuard{Kind: engine.ParseSyscallKind(payload)}, nil
		}
		return nil, fmt.Errorf("unknown step result %q", name)
	}
	return nil, fmt.Errorf("malformed step result %s", body)
}
