package playback

import "time"

// Task is an owned periodic tick source. Its channel is nil while stopped, so a
// select on C() simply never fires. Task is used by a single goroutine.
type Task struct {
	ticker *time.Ticker
	period time.Duration
}

// Start begins ticking every period, or changes the period if already running.
func (t *Task) Start(period time.Duration) {
	if period <= 0 {
		period = time.Millisecond
	}
	t.period = period
	if t.ticker == nil {
		t.ticker = time.NewTicker(period)
		return
	}
	t.ticker.Reset(period)
}

// Reset changes the period. A stopped task stays stopped.
func (t *Task) Reset(period time.Duration) {
	if period <= 0 {
		period = time.Millisecond
	}
	t.period = period
	if t.ticker != nil {
		t.ticker.Reset(period)
	}
}

// Stop cancels pending ticks. No tick is delivered after Stop returns.
func (t *Task) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

// C returns the tick channel, or nil when stopped.
func (t *Task) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.C
}

// Running reports whether the task is ticking.
func (t *Task) Running() bool { return t.ticker != nil }

// Period returns the last configured period.
func (t *Task) Period() time.Duration { return t.period }
