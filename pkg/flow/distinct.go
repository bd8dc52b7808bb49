package flow

import "context"

// DistinctUntilChanged suppresses consecutive equal values (by ==); the
// first value is always emitted.
func DistinctUntilChanged[T comparable](f Flow[T]) Flow[T] {
	return DistinctUntilChangedBy(f, func(a, b T) bool { return a == b })
}

// DistinctUntilChangedBy is DistinctUntilChanged with a caller-supplied
// equality function, for types that are not comparable with ==.
func DistinctUntilChangedBy[T any](f Flow[T], equal func(a, b T) bool) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		var (
			prev T
			have bool
		)
		return f.Collect(ctx, func(v T) error {
			if have && equal(prev, v) {
				return nil
			}
			prev = v
			have = true
			return emit(v)
		})
	}
}
