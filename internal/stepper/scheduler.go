package stepper

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler drives RunBatch on a timer. The owner receives from C, runs a
// batch and calls Reset with the delay the batch returned.
type Scheduler struct {
	timer *clock.Timer
}

// NewScheduler creates a scheduler whose first tick fires after delay.
func NewScheduler(c clock.Clock, delay time.Duration) *Scheduler {
	return &Scheduler{timer: c.Timer(delay)}
}

// C returns the tick channel. A nil Scheduler yields a nil channel, which
// never fires.
func (s *Scheduler) C() <-chan time.Time {
	if s == nil {
		return nil
	}
	return s.timer.C
}

// Reset schedules the next tick after d. It must only be called after the
// previous tick has been received.
func (s *Scheduler) Reset(d time.Duration) {
	s.timer.Reset(d)
}

// Stop cancels the pending tick.
func (s *Scheduler) Stop() {
	if s != nil {
		s.timer.Stop()
	}
}
