package flow

import "context"

// OnStart runs action once, before f's producer starts emitting.
func OnStart[T any](f Flow[T], action func()) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		action()
		return f.Collect(ctx, func(v T) error { return emit(v) })
	}
}

// OnCompletion runs action exactly once after f's producer returns,
// regardless of whether it returned an error, receiving that error (nil on
// a clean completion).
func OnCompletion[T any](f Flow[T], action func(cause error)) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		err := f.Collect(ctx, func(v T) error { return emit(v) })
		action(err)
		return err
	}
}

// OnEmpty runs action, and lets it optionally emit fallback values, if f
// completes without ever emitting anything.
func OnEmpty[T any](f Flow[T], action func(emit Emit[T]) error) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		emitted := false
		err := f.Collect(ctx, func(v T) error {
			emitted = true
			return emit(v)
		})
		if err != nil {
			return err
		}
		if emitted {
			return nil
		}
		return action(emit)
	}
}
