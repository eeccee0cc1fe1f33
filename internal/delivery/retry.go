package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoAttempts is returned by a policy that permits zero attempts.
var ErrNoAttempts = errors.New("retry policy allows no attempts")

// RetryPolicy is a bounded, fixed-delay retry budget.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Do calls fn up to Attempts times, sleeping Delay between failures. It
// returns nil on the first success, otherwise the last error. A cancelled
// context stops the loop and is reported alongside the last failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	if p.Attempts <= 0 {
		return ErrNoAttempts
	}
	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return joinCancel(err, last)
		}
		if last = fn(ctx, attempt); last == nil {
			return nil
		}
		if attempt == p.Attempts || p.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return joinCancel(ctx.Err(), last)
		case <-timer.C:
		}
	}
	return last
}

func joinCancel(ctxErr, last error) error {
	if last == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last failure: %w)", ctxErr, last)
}
