package clock

import (
	"context"
	"time"
)

// Clock allows injecting time into services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock that always returns the same instant (useful for tests).
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}

// Sleeper pauses between retry attempts and aborts early when the context is
// cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type systemSleeper struct{}

// NewSystemSleeper returns a sleeper backed by time.NewTimer.
func NewSystemSleeper() Sleeper {
	return systemSleeper{}
}

func (systemSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
