package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("sched: loop stopped")

// Scheduler arms timers whose callbacks run on the owner's thread.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) *Timer
	Every(d time.Duration, fn func()) *Ticker
}

// Timer is a pending one-shot callback.
type Timer struct {
	stopped atomic.Bool
	cancel  func()
}

// Stop cancels the timer. A callback already queued for the owner's
// thread is dropped too. Safe on nil and safe to call twice.
func (t *Timer) Stop() {
	if t == nil || t.stopped.Swap(true) {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
}

// Ticker is a repeating callback. The next tick is armed only after the
// previous callback returns, so ticks never pile up.
type Ticker struct {
	mu      sync.Mutex
	timer   *Timer
	stopped bool
}

// Stop cancels the ticker. Safe on nil and safe to call twice.
func (tk *Ticker) Stop() {
	if tk == nil {
		return
	}
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.stopped = true
	tk.timer.Stop()
}

func every(after func(time.Duration, func()) *Timer, d time.Duration, fn func()) *Ticker {
	tk := &Ticker{}
	var tick func()
	tick = func() {
		tk.mu.Lock()
		stopped := tk.stopped
		tk.mu.Unlock()
		if stopped {
			return
		}
		fn()
		tk.mu.Lock()
		defer tk.mu.Unlock()
		if !tk.stopped {
			tk.timer = after(d, tick)
		}
	}
	tk.mu.Lock()
	tk.timer = after(d, tick)
	tk.mu.Unlock()
	return tk
}

// Loop serialises every task of a session onto the goroutine running Run.
type Loop struct {
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewLoop returns a loop using clock. A nil clock means RealClock.
func NewLoop(clock Clock, logger *slog.Logger) *Loop {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		clock:  clock,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is cancelled. Tasks still queued at
// exit are dropped. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()
	for {
		l.Flush()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Flush runs every queued task on the calling goroutine and returns how
// many ran. Run uses it; hosts that drive the loop themselves may too.
func (l *Loop) Flush() int {
	ran := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			l.exec(fn)
			ran++
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("sched: task panicked", "error", fmt.Sprint(r))
		}
	}()
	fn()
}

// Post queues fn. It reports false once the loop has exited.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) Now() time.Time { return l.clock.Now() }

// After runs fn on the loop after d.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.cancel = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if !t.stopped.Load() {
				fn()
			}
		})
	})
	return t
}

// Every runs fn on the loop every d.
func (l *Loop) Every(d time.Duration, fn func()) *Ticker {
	return every(l.After, d, fn)
}

// Inline fires callbacks directly on the goroutine the clock fires them
// on. Paired with a ManualClock advanced by the goroutine that owns the
// document, it is a loop without a goroutine.
type Inline struct {
	Clock Clock
}

func (s Inline) Now() time.Time { return s.Clock.Now() }

func (s Inline) After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.cancel = s.Clock.AfterFunc(d, func() {
		if !t.stopped.Load() {
			fn()
		}
	})
	return t
}

func (s Inline) Every(d time.Duration, fn func()) *Ticker {
	return every(s.After, d, fn)
}
