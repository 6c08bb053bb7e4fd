package stream

import (
	"time"

	"github.com/juju/clock"
)

// Task is a repeating timer owned by a single session. It is not safe for
// concurrent use: the session loop is its only caller.
//
// The next firing is armed by Rearm once the previous one has been handled,
// so a slow tick delays the following one instead of queueing behind it.
type Task struct {
	clock  clock.Clock
	period time.Duration
	timer  clock.Timer
}

// NewTask returns a stopped task. A non-positive period yields a task that
// never fires.
func NewTask(clk clock.Clock, period time.Duration) *Task {
	return &Task{clock: clk, period: period}
}

// Start arms the first firing. Starting a running task is a no-op.
func (t *Task) Start() {
	if t.period <= 0 || t.timer != nil {
		return
	}
	t.timer = t.clock.NewTimer(t.period)
}

// C returns the channel of the pending firing, or nil when stopped so a
// select never chooses it.
func (t *Task) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.Chan()
}

// Rearm schedules the next firing one period from now.
func (t *Task) Rearm() {
	if t.timer == nil {
		return
	}
	t.timer = t.clock.NewTimer(t.period)
}

// Stop cancels the pending firing. Stopping twice is safe.
func (t *Task) Stop() {
	if t.timer == nil {
		return
	}
	t.timer.Stop()
	t.timer = nil
}

// Running reports whether a firing is pending.
func (t *Task) Running() bool {
	return t.timer != nil
}
