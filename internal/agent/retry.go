package agent

import (
	"context"
	"errors"
	"time"
)

// SleepFunc waits for d, returning early with ctx.Err() if ctx ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retrier runs an operation up to MaxAttempts times with linear backoff:
// before attempt k+1 it sleeps BaseDelay*k.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	// OnRetry, if set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, returns a permanent error, or the attempts
// run out. The last error is returned.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(r.MaxAttempts, 1)
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if isPermanent(err) || ctx.Err() != nil || attempt == attempts {
			return err
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, r.BaseDelay*time.Duration(attempt)); serr != nil {
			return err
		}
	}
	return err
}

// isPermanent reports errors that no amount of retrying will fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNoProviderConfigured) ||
		errors.Is(err, context.Canceled)
}
