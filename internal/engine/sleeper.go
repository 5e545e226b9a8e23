// File: internal/engine/sleeper.go
package engine

import (
	"context"
	"time"
)

// Sleeper is a cancellation-checked suspension point. Sleep returns the
// context's error if it is done before d elapses.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock supplies the current time to the throttle.
type Clock func() time.Time

// TimerSleeper waits on a real timer.
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
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

// InstantSleeper never waits. Replays use it so recorded screens are
// processed as fast as they can be read.
type InstantSleeper struct{}

// Sleep returns ctx.Err() immediately.
func (InstantSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
