package dap

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
)

// Custom requests understood by the adapter.
const (
	CommandQueueInput    = "queueInput"
	CommandDeliverSource = "deliverSource"
)

// Custom events emitted by the adapter.
const (
	EventIOSegments      = "ioSegments"
	EventMemorySnapshot  = "memorySnapshot"
	EventSourceRequested = "sourceRequested"
)

// QueueInputRequest replaces the queue of pre-supplied input for blocking
// reads.
type QueueInputRequest struct {
	dap.Request

	Arguments QueueInputArguments `json:"arguments"`
}

// QueueInputArguments are the arguments of a queueInput request.
type QueueInputArguments struct {
	Contents string `json:"contents"`
}

// QueueInputResponse answers a queueInput request.
type QueueInputResponse struct {
	dap.Response
}

// DeliverSourceRequest carries source text the adapter asked the client for
// with a sourceRequested event.
type DeliverSourceRequest struct {
	dap.Request

	Arguments DeliverSourceArguments `json:"arguments"`
}

// DeliverSourceArguments are the arguments of a deliverSource request.
type DeliverSourceArguments struct {
	Source string `json:"source"`
}

// DeliverSourceResponse answers a deliverSource request.
type DeliverSourceResponse struct {
	dap.Response
}

// SegmentType tells whether an I/O segment was program input or output.
type SegmentType string

// Segment types.
const (
	SegmentIn  SegmentType = "in"
	SegmentOut SegmentType = "out"
)

// IOSegment is one chunk of program I/O.
type IOSegment struct {
	Str  string      `json:"str"`
	Type SegmentType `json:"type"`
}

// IOSegmentsEvent forwards program I/O to the I/O view.
type IOSegmentsEvent struct {
	dap.Event

	Body IOSegmentsEventBody `json:"body"`
}

// IOSegmentsEventBody is the body of an ioSegments event.
type IOSegmentsEventBody struct {
	Segments []IOSegment `json:"segments"`
}

// MemorySnapshotEvent forwards a flat memory snapshot to the memory view.
type MemorySnapshotEvent struct {
	dap.Event

	Body MemorySnapshotEventBody `json:"body"`
}

// MemorySnapshotEventBody is the body of a memorySnapshot event.
type MemorySnapshotEventBody struct {
	Memory []uint32 `json:"memory"`
}

// SourceRequestedEvent asks the client to deliver the text of an unsaved
// document.
type SourceRequestedEvent struct {
	dap.Event

	Body ClientSource `json:"body"`
}

// ClientSource names a document held by the client.
type ClientSource struct {
	URI string `json:"uri"`
}

// LaunchArguments are the launch request arguments the adapter understands.
type LaunchArguments struct {
	// Program is the path of the file to debug.
	Program string
	// ClientSource is set when the client holds the text itself. It takes
	// precedence over Program.
	ClientSource *ClientSource
}

// program is either a path string or an object naming a path.
type program struct {
	FSPath string `json:"fsPath"`
	Path   string `json:"path"`
}

// ParseLaunchArguments decodes raw launch arguments. program may be a string
// or an object with fsPath or path. A clientSource without a uri is ignored.
func ParseLaunchArguments(raw json.RawMessage) (LaunchArguments, error) {
	var wire struct {
		Program      json.RawMessage `json:"program"`
		ClientSource *ClientSource   `json:"clientSource"`
	}
	if len(raw) == 0 {
		return LaunchArguments{}, fmt.Errorf("launch: missing arguments")
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return LaunchArguments{}, fmt.Errorf("launch arguments: %w", err)
	}

	args := LaunchArguments{}
	if wire.ClientSource != nil && wire.ClientSource.URI != "" {
		args.ClientSource = wire.ClientSource
	}
	if len(wire.Program) > 0 && string(wire.Program) != "null" {
		var path string
		if err := json.Unmarshal(wire.Program, &path); err == nil {
			args.Program = path
		} else {
			var p program
			if err := json.Unmarshal(wire.Program, &p); err != nil {
				return LaunchArguments{}, fmt.Errorf("launch program: %w", err)
			}
			args.Program = p.FSPath
			if args.Program == "" {
				args.Program = p.Path
			}
		}
	}

	if args.Program == "" && args.ClientSource == nil {
		return LaunchArguments{}, fmt.Errorf("launch: neither program nor clientSource given")
	}
	return args, nil
}
