// Package clocktest provides a deterministic clock.Clock for session
// engine unit tests, so ack-receive/send-ack timeout behavior can be
// exercised without real sleeps.
package clocktest

import (
	"time"

	"github.com/mattertools/btp-session/btp/clock"
)

// FakeClock hands out FakeTimers and lets tests fire them directly instead
// of waiting on wall-clock time.
type FakeClock struct {
	timers []*FakeTimer
}

func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

func (f *FakeClock) NewTimer() clock.Timer {
	t := &FakeTimer{}
	f.timers = append(f.timers, t)
	return t
}

// Timers returns every timer ever vended by this clock, in creation order.
func (f *FakeClock) Timers() []*FakeTimer {
	return f.timers
}

// FakeTimer is a clock.Timer whose expiry is driven manually by test code
// via Fire, instead of by wall-clock time.
type FakeTimer struct {
	running  bool
	duration time.Duration
	fn       func()
}

func (t *FakeTimer) Start(d time.Duration, fn func()) {
	t.duration = d
	t.fn = fn
	t.running = true
}

func (t *FakeTimer) Stop() bool {
	was := t.running
	t.running = false
	return was
}

func (t *FakeTimer) Running() bool {
	return t.running
}

// Duration returns the duration passed to the most recent Start call.
func (t *FakeTimer) Duration() time.Duration {
	return t.duration
}

// Fire invokes the armed callback as if the timer had expired, the way a
// test drives the ack-receive/send-ack timeout paths deterministically.
// It is a no-op if the timer isn't currently running.
func (t *FakeTimer) Fire() {
	if !t.running {
		return
	}
	t.running = false
	fn := t.fn
	if fn != nil {
		fn()
	}
}
