package stepper

import "github.com/dshills/mipsdap/internal/dap"

// Category is the output stream a line is written to.
type Category string

// Output categories.
const (
	Stdout    Category = "stdout"
	Stderr    Category = "stderr"
	Console   Category = "console"
	Important Category = "important"
)

// Stop reasons carried by stopped notifications.
const (
	ReasonEntry      = "entry"
	ReasonStep       = "step"
	ReasonBreakpoint = "breakpoint"
	ReasonPause      = "pause"
	ReasonExit       = "exit"
	ReasonInput      = "input"
	ReasonException  = "exception"
)

// Notifier receives everything the Stepper reports to the client. Calls
// happen on the goroutine driving the Stepper.
type Notifier interface {
	// Stopped reports that execution halted.
	Stopped(reason string)
	// Continued reports that execution resumed.
	Continued()
	// Terminated reports that the program has ended.
	Terminated()
	// Output writes one line to a user-visible stream.
	Output(category Category, line string)
	// IO forwards program input or output to the I/O view.
	IO(segment dap.IOSegment)
}
