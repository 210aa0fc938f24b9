// Package wait pauses goroutines without outliving their context.
package wait

import (
	"context"
	"time"
)

// Sleep waits for d, or returns ctx.Err() as soon as ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sleeper implements retry.Sleeper and wakes up early once its context is done.
// Retried actions are expected to check the context at the start of every attempt.
type Sleeper struct {
	ctx context.Context
}

// NewSleeper ...
func NewSleeper(ctx context.Context) Sleeper {
	return Sleeper{ctx: ctx}
}

// Sleep ...
func (s Sleeper) Sleep(d time.Duration) {
	_ = Sleep(s.ctx, d)
}
