// Package backoff wraps an exponential backoff generator with a
// context-aware Sleep. Every operation owns two instances: a bounded one
// (max elapsed time set) and an unbounded one (max elapsed time zero).
package backoff

import (
	"context"
	"errors"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned by Sleep once the max elapsed time is used up.
var ErrExhausted = errors.New("backoff: max elapsed time exhausted")

// Clock reports the current time; tests substitute a fake one.
type Clock = cbackoff.Clock

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Backoff.
type Options struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxElapsedTime of zero means the backoff never stops.
	MaxElapsedTime time.Duration

	Clock Clock
	Sleep SleepFunc
}

// DefaultOptions mirrors the intervals the ledger SDKs use: 500ms
// initial, x1.5 growth, 60s cap, 50% jitter.
func DefaultOptions() Options {
	return Options{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         60 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
	}
}

// Backoff is not safe for concurrent use; each operation owns its own.
type Backoff struct {
	exp     *cbackoff.ExponentialBackOff
	sleep   SleepFunc
	current time.Duration
	retries int
}

// New builds a backoff from opts, normally a modified DefaultOptions().
// Zero intervals and multiplier fall back to the defaults; a zero
// randomization factor disables jitter.
func New(opts Options) *Backoff {
	def := DefaultOptions()
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = def.MaxInterval
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = def.Multiplier
	}
	if opts.RandomizationFactor < 0 {
		opts.RandomizationFactor = def.RandomizationFactor
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}

	exp := cbackoff.NewExponentialBackOff()
	exp.InitialInterval = opts.InitialInterval
	exp.MaxInterval = opts.MaxInterval
	exp.Multiplier = opts.Multiplier
	exp.RandomizationFactor = opts.RandomizationFactor
	exp.MaxElapsedTime = opts.MaxElapsedTime
	if opts.Clock != nil {
		exp.Clock = opts.Clock
	}
	exp.Reset()

	return &Backoff{exp: exp, sleep: opts.Sleep}
}

// NewBounded returns a backoff that gives up after maxElapsed.
func NewBounded(maxElapsed time.Duration, opts Options) *Backoff {
	opts.MaxElapsedTime = maxElapsed
	return New(opts)
}

// NewUnbounded returns a backoff that never gives up.
func NewUnbounded(opts Options) *Backoff {
	opts.MaxElapsedTime = 0
	return New(opts)
}

// Next returns the next delay, or false once the backoff is exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	d := b.exp.NextBackOff()
	if d == cbackoff.Stop {
		return 0, false
	}
	b.current = d
	return d, true
}

// Sleep waits for the next delay. It returns ErrExhausted without
// sleeping when the max elapsed time is used up, and ctx.Err() when the
// context ends first.
func (b *Backoff) Sleep(ctx context.Context) error {
	d, ok := b.Next()
	if !ok {
		return ErrExhausted
	}
	b.retries++
	return b.sleep(ctx, d)
}

// Reset restarts the interval sequence and the elapsed time.
func (b *Backoff) Reset() {
	b.exp.Reset()
	b.current = 0
	b.retries = 0
}

// Current is the delay most recently handed out.
func (b *Backoff) Current() time.Duration { return b.current }

// Retries counts sleeps since the last Reset.
func (b *Backoff) Retries() int { return b.retries }

// Elapsed is the time since the last Reset according to the clock.
func (b *Backoff) Elapsed() time.Duration { return b.exp.GetElapsedTime() }

// Bounded reports whether this backoff can be exhausted.
func (b *Backoff) Bounded() bool { return b.exp.MaxElapsedTime > 0 }

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
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
