package timing

import "time"

// Timer is a one-shot deadline driven by caller-supplied time. It never
// reads the wall clock itself, so a tick loop and its tests see the same
// behaviour.
type Timer struct {
	timeout   time.Duration
	running   bool
	startTime time.Time
}

// NewTimer creates a stopped timer with the given timeout.
func NewTimer(timeout time.Duration) *Timer {
	return &Timer{timeout: timeout}
}

// SetTimeout changes the timeout; a running timer keeps its start time.
func (t *Timer) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// Timeout returns the configured timeout.
func (t *Timer) Timeout() time.Duration {
	return t.timeout
}

// IsRunning returns true if the timer has been started and not stopped.
func (t *Timer) IsRunning() bool {
	return t.running
}

// Start (re)arms the timer at now.
func (t *Timer) Start(now time.Time) {
	t.running = true
	t.startTime = now
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	t.running = false
}

// HasExpired reports whether a running timer has passed its timeout.
// A stopped timer or a zero timeout never expires.
func (t *Timer) HasExpired(now time.Time) bool {
	if !t.running || t.timeout <= 0 {
		return false
	}
	return now.Sub(t.startTime) > t.timeout
}

// Elapsed returns time since Start, or zero when stopped.
func (t *Timer) Elapsed(now time.Time) time.Duration {
	if !t.running {
		return 0
	}
	return now.Sub(t.startTime)
}

// Remaining returns time left before expiry, or zero.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if !t.running {
		return 0
	}
	left := t.timeout - now.Sub(t.startTime)
	if left < 0 {
		return 0
	}
	return left
}

// Interval fires at most once per period.
type Interval struct {
	period time.Duration
	last   time.Time
}

// NewInterval returns an interval whose first period starts at start.
func NewInterval(period time.Duration, start time.Time) *Interval {
	return &Interval{period: period, last: start}
}

// Period returns the configured period.
func (i *Interval) Period() time.Duration {
	return i.period
}

// Due reports whether a full period has passed since the last Mark.
func (i *Interval) Due(now time.Time) bool {
	return now.Sub(i.last) >= i.period
}

// Mark records that the periodic action ran at now.
func (i *Interval) Mark(now time.Time) {
	i.last = now
}
