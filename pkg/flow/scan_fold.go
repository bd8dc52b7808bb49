package flow

import "context"

// Scan emits the running accumulation of accumulator over f's values,
// starting from initial, emitting once per input value (including the
// initial value before any input arrives).
func Scan[T, R any](f Flow[T], initial R, accumulator func(acc R, value T) R) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		acc := initial
		if err := emit(acc); err != nil {
			return err
		}
		return f.Collect(ctx, func(v T) error {
			acc = accumulator(acc, v)
			return emit(acc)
		})
	}
}

// Fold runs f to completion and returns the final accumulation; unlike Scan
// it emits nothing until the source Flow itself completes.
func Fold[T, R any](ctx context.Context, f Flow[T], initial R, accumulator func(acc R, value T) R) (R, error) {
	acc := initial
	err := f.Collect(ctx, func(v T) error {
		acc = accumulator(acc, v)
		return nil
	})
	return acc, err
}
