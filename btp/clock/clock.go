// Package clock defines the Timer/Clock capability the session engine uses
// for its two timers, per the Design Notes: "expose a Timer capability with
// start, stop, isRunning, and a callback — never a raw sleep-loop". This
// makes the engine trivially testable with a fake clock (see clocktest).
package clock

import (
	"sync"
	"time"
)

// Timer is a one-shot, cancellable, restartable timer. It is not safe for
// concurrent use; callers (the session engine) serialize access the same
// way the teacher's handler serializes access to its own timers.
type Timer interface {
	// Start (re)arms the timer to fire fn after d, cancelling any pending
	// fire first.
	Start(d time.Duration, fn func())
	// Stop cancels a pending fire. Returns true if a pending fire was
	// cancelled.
	Stop() bool
	// Running reports whether the timer currently has a pending fire.
	Running() bool
}

// Clock constructs Timers. RealClock is the production implementation;
// clocktest.FakeClock drives deterministic tests.
type Clock interface {
	NewTimer() Timer
}

// RealClock wraps time.AfterFunc.
type RealClock struct{}

func (RealClock) NewTimer() Timer {
	return &realTimer{}
}

type realTimer struct {
	mu      sync.Mutex
	t       *time.Timer
	running bool
}

func (r *realTimer) Start(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.running = true
	r.t = time.AfterFunc(d, func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		fn()
	})
}

func (r *realTimer) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t == nil {
		return false
	}
	stopped := r.t.Stop()
	r.running = false
	return stopped
}

func (r *realTimer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
