package flow

import (
	"context"
	"time"

	"github.com/nyrix-labs/gocoro/pkg/ambient"
)

// Catch runs f and, if it terminates with a non-cancellation error, invokes
// handler with that error instead of propagating it. If handler returns a
// non-nil error, that error is propagated in its place.
func Catch[T any](f Flow[T], handler func(err error) error) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		err := f.Collect(ctx, func(v T) error { return emit(v) })
		if err == nil || err == context.Canceled {
			return err
		}
		return handler(err)
	}
}

// retryBaseDelay and retryBackoff give Retry's default exponential-ish
// backoff: 100ms, 200ms, 400ms, ... doubling per retry.
const retryBaseDelay = 100 * time.Millisecond

func retryBackoff(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Retry re-runs f from the beginning up to maxAttempts times (the first
// run plus up to maxAttempts-1 retries) whenever it fails with a
// non-cancellation error, stopping at the first attempt that completes
// without error. Between attempts it waits with exponential-ish backoff
// (100ms, 200ms, 400ms, ...), measured through clock so the wait is real
// under ambient.RealTime{} and instant-but-ordered under a virtual-time
// controller in tests.
func Retry[T any](f Flow[T], maxAttempts int, clock ambient.TimeSource, shouldRetry func(err error) bool) Flow[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if clock == nil {
		clock = ambient.RealTime{}
	}
	return func(ctx context.Context, emit Emit[T]) error {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			lastErr = f.Collect(ctx, func(v T) error { return emit(v) })
			if lastErr == nil {
				return nil
			}
			if lastErr == context.Canceled {
				return lastErr
			}
			if shouldRetry != nil && !shouldRetry(lastErr) {
				return lastErr
			}
			if attempt == maxAttempts-1 {
				break
			}
			select {
			case <-clock.After(retryBackoff(attempt), ctx.Done()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return lastErr
	}
}

// RetryWhen is Retry generalized to a caller-supplied predicate that also
// sees the attempt number (0-based), for backoff policies that need it -
// e.g. `func(err error, attempt int) bool { time.Sleep(backoff(attempt)); return attempt < 5 }`.
func RetryWhen[T any](f Flow[T], predicate func(err error, attempt int) bool) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		var lastErr error
		attempt := 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			lastErr = f.Collect(ctx, func(v T) error { return emit(v) })
			if lastErr == nil || lastErr == context.Canceled {
				return lastErr
			}
			if !predicate(lastErr, attempt) {
				return lastErr
			}
			attempt++
		}
	}
}
