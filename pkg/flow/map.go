package flow

import "context"

// Map applies transform to every value f emits.
func Map[T, R any](f Flow[T], transform func(T) R) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		return f.Collect(ctx, func(v T) error {
			return emit(transform(v))
		})
	}
}

// MapErr is Map for a transform that can itself fail; a non-nil error
// terminates the Flow the same way a failing emit does.
func MapErr[T, R any](f Flow[T], transform func(T) (R, error)) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		return f.Collect(ctx, func(v T) error {
			r, err := transform(v)
			if err != nil {
				return err
			}
			return emit(r)
		})
	}
}

// OnEach runs action for every value, for side effects, without changing the stream.
func OnEach[T any](f Flow[T], action func(T)) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		return f.Collect(ctx, func(v T) error {
			action(v)
			return emit(v)
		})
	}
}
