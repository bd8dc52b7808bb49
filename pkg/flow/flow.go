// Package flow implements cold Flow[T] streams and the hot SharedFlow[T] /
// StateFlow[T] broadcast primitives built on top of them.
//
// A cold Flow is grounded on the pull-model in internal/worker/source.go's
// JobSource.Poll together with other_examples' ygrebnov-workers RunStream/
// MapStream: a Flow is a function that, given a context and an emit
// callback, drives its own production loop and calls emit once per value.
// Nothing runs until Collect is called, and every Collect call runs its own
// independent production loop - the same "nothing happens until someone
// polls" shape as Poll, generalized from a batch-fetch interface to a
// single-value emit callback.
package flow

import (
	"context"
	"errors"
)

// ErrEmpty is returned by operators that require at least one element
// (First, Single) when the Flow completes without emitting any.
var ErrEmpty = errors.New("flow: empty")

// Emit is called once per produced value. Returning a non-nil error (most
// commonly context.Canceled, propagated by a downstream operator that has
// seen enough, e.g. Take) stops the producer. Collect returns whatever the
// producer returns; operators that stop early on purpose (Take, TakeWhile,
// First) turn their own context.Canceled into a clean result.
type Emit[T any] func(value T) error

// Flow is a cold asynchronous stream. Calling Collect runs body from the
// start; two concurrent Collect calls on the same Flow run two independent,
// non-interfering production loops.
type Flow[T any] func(ctx context.Context, emit Emit[T]) error

// New wraps a producer function as a Flow.
func New[T any](body func(ctx context.Context, emit Emit[T]) error) Flow[T] {
	return Flow[T](body)
}

// Collect runs the Flow to completion, invoking onEach for every emitted
// value. It blocks until the Flow's producer returns or ctx is cancelled.
func (f Flow[T]) Collect(ctx context.Context, onEach func(T) error) error {
	return f(ctx, Emit[T](onEach))
}

// Of builds a Flow that emits each of values in order, then completes.
func Of[T any](values ...T) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		for _, v := range values {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(v); err != nil {
				return err
			}
		}
		return nil
	}
}

// FromSlice is an alias for Of, for call sites converting an existing slice.
func FromSlice[T any](values []T) Flow[T] { return Of(values...) }

// FromChannel builds a Flow that relays every value received from ch until
// ch is closed or ctx is cancelled.
func FromChannel[T any](ch <-chan T) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		for {
			select {
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				if err := emit(v); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ToSlice collects every value a Flow emits into a slice.
func ToSlice[T any](ctx context.Context, f Flow[T]) ([]T, error) {
	var out []T
	err := f.Collect(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// ToChannel runs f in a new goroutine and relays its emissions onto the
// returned channel, which is closed when f completes; errCh receives at most
// one value, f's terminal error (nil on clean completion), and is always closed.
func ToChannel[T any](ctx context.Context, f Flow[T]) (<-chan T, <-chan error) {
	out := make(chan T)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		err := f.Collect(ctx, func(v T) error {
			select {
			case out <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errCh <- err
	}()
	return out, errCh
}
