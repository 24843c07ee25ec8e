// Package agepolicy owns the rolling birth-date cutoff: the latest birth date a
// user may have, today minus the configured minimum age. One background
// goroutine recomputes it at every local midnight; request goroutines read it
// lock-free.
package agepolicy

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	id "userdir/pkg/domain"
)

// Observer is notified after every recomputation.
type Observer interface {
	ObserveCutoff(cutoff time.Time)
}

// Policy publishes immutable cutoff snapshots.
type Policy struct {
	minAge   int
	cutoff   atomic.Pointer[id.Date]
	clock    func() time.Time
	after    func(time.Duration) <-chan time.Time
	logger   *slog.Logger
	observer Observer
}

type Option func(*Policy)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(p *Policy) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.observer = o
	}
}

// New computes the initial cutoff from the current date.
func New(minAge int, opts ...Option) *Policy {
	p := &Policy{
		minAge: minAge,
		clock:  time.Now,
		after:  time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Refresh()
	return p
}

// MinAge is the configured minimum age in years.
func (p *Policy) MinAge() int {
	return p.minAge
}

// Cutoff returns the current snapshot. Birth dates after it are rejected.
func (p *Policy) Cutoff() id.Date {
	return *p.cutoff.Load()
}

// Refresh recomputes the cutoff from the clock's current local date and
// publishes it. It is recomputed rather than incremented so leap days settle.
func (p *Policy) Refresh() id.Date {
	cutoff := id.DateOf(p.clock()).AddYears(-p.minAge)
	prev := p.cutoff.Swap(&cutoff)
	if p.observer != nil {
		p.observer.ObserveCutoff(cutoff.Time())
	}
	if p.logger != nil && (prev == nil || !prev.Equal(cutoff)) {
		p.logger.Info("birth date cutoff updated",
			"cutoff", cutoff.String(),
			"min_age", p.minAge,
		)
	}
	return cutoff
}

// Run refreshes the cutoff at every local midnight until ctx is cancelled.
// The wait is recomputed on each iteration, so a timer firing early only
// causes a short extra wait.
func (p *Policy) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.after(untilNextMidnight(p.clock())):
			p.Refresh()
		}
	}
}

func untilNextMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
