// Package resiliencetest provides a manual clock for driving pollers in tests.
package resiliencetest

import (
	"sync"
	"time"

	"github.com/fentz26/taskdeck/internal/resilience"
)

// ManualClock implements resilience.Clock. Timers only fire when a test asks.
type ManualClock struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// NewManualClock creates a clock with no timers.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// ManualTimer is one recurring callback registered on a ManualClock.
type ManualTimer struct {
	Interval time.Duration
	fn       func()

	mu      sync.Mutex
	stopped bool
}

// Stop implements resilience.Timer.
func (t *ManualTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback once unless the timer was stopped.
func (t *ManualTimer) Fire() {
	if t.Stopped() {
		return
	}
	t.fn()
}

// Every implements resilience.Clock.
func (c *ManualClock) Every(d time.Duration, fn func()) resilience.Timer {
	t := &ManualTimer{Interval: d, fn: fn}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// Active returns the timers that have not been stopped, oldest first.
func (c *ManualClock) Active() []*ManualTimer {
	c.mu.Lock()
	all := append([]*ManualTimer(nil), c.timers...)
	c.mu.Unlock()

	var active []*ManualTimer
	for _, t := range all {
		if !t.Stopped() {
			active = append(active, t)
		}
	}
	return active
}

// ActiveWithInterval returns the active timers registered with interval d.
func (c *ManualClock) ActiveWithInterval(d time.Duration) []*ManualTimer {
	var out []*ManualTimer
	for _, t := range c.Active() {
		if t.Interval == d {
			out = append(out, t)
		}
	}
	return out
}

// Advance fires every active timer with interval d once. Timers created while
// firing are not fired in the same call.
func (c *ManualClock) Advance(d time.Duration) int {
	timers := c.ActiveWithInterval(d)
	for _, t := range timers {
		t.Fire()
	}
	return len(timers)
}

// Created returns how many timers were ever registered.
func (c *ManualClock) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
