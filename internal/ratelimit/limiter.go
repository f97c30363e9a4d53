// Package ratelimit enforces a global ceiling on outbound API calls per rolling window.
//
// A Limiter is shared by every worker of a run. Callers reserve a slot under a
// single mutex (check and record happen together) and then sleep until the
// reserved time, so concurrent callers can never jointly exceed the ceiling.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default values match the upstream free tier.
const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats holds limiter counters.
type Stats struct {
	Granted   int64
	Waited    int64         // grants that had to sleep
	TotalWait time.Duration // sum of reserved sleep durations
	Pauses    int64
}

// Limiter is a sliding-window log limiter: no window of length Window contains
// more than Limit granted calls.
type Limiter struct {
	limit  int
	window time.Duration
	clock  Clock

	mu          sync.Mutex
	slots       []time.Time // granted slot times, ascending, at most limit entries
	pausedUntil time.Time
	stats       Stats
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock used for reservations and sleeping.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New creates a Limiter allowing limit calls per window.
// Non-positive values fall back to the defaults.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		clock:  realClock{},
		slots:  make([]time.Time, 0, limit),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured ceiling.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Acquire blocks until one more call may be made. It only returns an error
// when ctx is done; the reserved slot is then consumed, never handed to
// another caller.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait := l.reserve()
	if wait <= 0 {
		return nil
	}
	return l.clock.Sleep(ctx, wait)
}

// reserve records the next free slot and returns how long to wait for it.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	slot := now

	if n := len(l.slots); n > 0 && l.slots[n-1].After(slot) {
		slot = l.slots[n-1]
	}
	if len(l.slots) >= l.limit {
		// The call limit slots back must have left the window.
		if earliest := l.slots[len(l.slots)-l.limit].Add(l.window); earliest.After(slot) {
			slot = earliest
		}
	}
	if l.pausedUntil.After(slot) {
		slot = l.pausedUntil
	}

	l.slots = append(l.slots, slot)
	if len(l.slots) > l.limit {
		l.slots = append(l.slots[:0], l.slots[len(l.slots)-l.limit:]...)
	}

	wait := slot.Sub(now)
	l.stats.Granted++
	if wait > 0 {
		l.stats.Waited++
		l.stats.TotalWait += wait
	}
	return wait
}

// Pause pushes every future slot to at least now+d. Used when the upstream
// signals throttling so that all workers back off together.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.clock.Now().Add(d)
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
	l.stats.Pauses++
}

// Stats returns a snapshot of the counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
