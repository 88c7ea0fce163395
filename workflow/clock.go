package workflow

import (
	"context"
	"time"
)

// clock is the time source of the polling loops. Tests swap it for a fake
// that advances instantly.
type clock struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func realClock() clock {
	return clock{now: time.Now, sleep: sleepCtx}
}

// sleepCtx suspends for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
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
