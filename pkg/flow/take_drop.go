package flow

import "context"

// Take emits at most n values, then cancels the upstream producer.
func Take[T any](f Flow[T], n int) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		if n <= 0 {
			return nil
		}
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		count := 0
		err := f.Collect(collectCtx, func(v T) error {
			if err := emit(v); err != nil {
				return err
			}
			count++
			if count >= n {
				cancel()
				return context.Canceled
			}
			return nil
		})
		if err == context.Canceled && count >= n {
			return nil
		}
		return err
	}
}

// TakeWhile emits values while predicate holds, stopping (without error) at
// the first value for which it returns false.
func TakeWhile[T any](f Flow[T], predicate func(T) bool) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := f.Collect(collectCtx, func(v T) error {
			if !predicate(v) {
				stopped = true
				cancel()
				return context.Canceled
			}
			return emit(v)
		})
		if stopped && err == context.Canceled {
			return nil
		}
		return err
	}
}

// Drop skips the first n values, then emits everything after.
func Drop[T any](f Flow[T], n int) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		seen := 0
		return f.Collect(ctx, func(v T) error {
			if seen < n {
				seen++
				return nil
			}
			return emit(v)
		})
	}
}

// DropWhile skips values while predicate holds, then emits that value and
// everything after it.
func DropWhile[T any](f Flow[T], predicate func(T) bool) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		dropping := true
		return f.Collect(ctx, func(v T) error {
			if dropping {
				if predicate(v) {
					return nil
				}
				dropping = false
			}
			return emit(v)
		})
	}
}
