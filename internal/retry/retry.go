// Package retry provides a shared retry utility with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Policy controls how Do retries.
type Policy struct {
	Attempts  int           // total calls, including the first; <= 0 means 1
	BaseDelay time.Duration // delay before the second call, doubled after each retry
	MaxDelay  time.Duration // cap on a single delay; zero means no cap

	// OnRetry, if set, is called before each sleep with the attempt that
	// just failed (1-based), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls fn until it succeeds, returns a *PermanentError, the attempts
// run out or ctx is done. Delays carry +-25% jitter. The last error is
// returned, unwrapped from PermanentError.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		// Don't sleep after the last attempt.
		if attempt == attempts {
			break
		}

		sleep := jitter(delay)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, sleep)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return err
}

// jitter returns d +-25%.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := d / 4
	return d - j + time.Duration(rand.Int64N(int64(2*j)+1))
}
