// Package retry runs an operation under a bounded retry policy. Sleeping is
// injected so policies can be exercised in tests without real delays.
package retry

import (
	"context"
	"errors"
	"time"
)

var ErrNoAttempts = errors.New("retry policy allows no attempts")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Sleep        SleepFunc
}

// Result describes how an operation under a Policy ended.
type Result struct {
	Attempts int
	Err      error
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Sleep blocks for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, the attempts are exhausted or ctx is done.
// attempt is 1-based. Cancellation is only observed between attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) Result {
	if p.MaxAttempts <= 0 {
		return Result{Err: ErrNoAttempts}
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	delay := p.InitialDelay

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Attempts: attempt - 1, Err: ctxErr}
		}

		err = fn(ctx, attempt)
		if err == nil {
			return Result{Attempts: attempt}
		}

		if attempt == p.MaxAttempts {
			break
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return Result{Attempts: attempt, Err: sleepErr}
		}

		delay = p.next(delay)
	}

	return Result{Attempts: p.MaxAttempts, Err: err}
}

func (p Policy) next(delay time.Duration) time.Duration {
	if p.Multiplier > 1 {
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return delay
}
