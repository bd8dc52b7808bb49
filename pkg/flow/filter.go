package flow

import "context"

// Filter keeps only values for which predicate returns true.
func Filter[T any](f Flow[T], predicate func(T) bool) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		return f.Collect(ctx, func(v T) error {
			if !predicate(v) {
				return nil
			}
			return emit(v)
		})
	}
}

// First returns the first value f emits, cancelling the producer as soon as
// it arrives. Returns ErrEmpty if f completes without emitting anything.
func First[T any](ctx context.Context, f Flow[T]) (T, error) {
	var (
		value T
		found bool
	)
	collectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := f.Collect(collectCtx, func(v T) error {
		value = v
		found = true
		cancel()
		return context.Canceled
	})
	if found {
		return value, nil
	}
	if err != nil && err != context.Canceled {
		var zero T
		return zero, err
	}
	var zero T
	return zero, ErrEmpty
}

// Single returns the first value f emits, or ErrEmpty if it emits none. It
// behaves exactly like First: it does not check that f emits only one value.
func Single[T any](ctx context.Context, f Flow[T]) (T, error) {
	return First(ctx, f)
}
