// Package sched is the single execution thread of a session: a task loop,
// timers with explicit cancel, and a pluggable clock so timer-driven code
// can be tested without sleeping.
package sched

import (
	"sort"
	"sync"
	"time"
)

// Clock is a time source able to call a function after a delay.
type Clock interface {
	Now() time.Time
	// AfterFunc calls fn once after d on a goroutine of the clock's
	// choosing. The returned func cancels the call.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// ManualClock only moves when Advance is called. Timers fire on the
// goroutine calling Advance, in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at   time.Time
	seq  int
	fn   func()
	dead bool
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		t.dead = true
		c.mu.Unlock()
	}
}

// Advance moves the clock forward by d, firing every timer that falls due,
// including timers armed by the callbacks themselves.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		c.prune()
		if len(c.timers) == 0 || c.timers[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		t.dead = true
		c.now = t.at
		c.mu.Unlock()
		t.fn()
	}
}

// Pending is the number of armed timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	return len(c.timers)
}

// prune drops cancelled timers and orders the rest. Caller holds mu.
func (c *ManualClock) prune() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.dead {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
}
