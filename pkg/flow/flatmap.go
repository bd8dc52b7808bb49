package flow

import (
	"context"
	"sync"
)

// FlatMapConcat maps each value from f to an inner Flow via transform and
// collects each inner Flow fully, in order, before starting the next -
// exactly one inner Flow running at a time.
func FlatMapConcat[T, R any](f Flow[T], transform func(T) Flow[R]) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		return f.Collect(ctx, func(v T) error {
			inner := transform(v)
			return inner.Collect(ctx, func(r R) error {
				return emit(r)
			})
		})
	}
}

// FlatMapMerge maps each value from f to an inner Flow via transform and
// runs up to concurrency inner Flows at once, interleaving their emissions.
// concurrency <= 0 means unbounded.
func FlatMapMerge[T, R any](f Flow[T], concurrency int, transform func(T) Flow[R]) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			sem      chan struct{}
			innerWG  sync.WaitGroup
			mu       sync.Mutex
			emitMu   sync.Mutex
			firstErr error
		)
		if concurrency > 0 {
			sem = make(chan struct{}, concurrency)
		}

		fail := func(err error) {
			if err == nil || err == context.Canceled {
				return
			}
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			cancel()
		}

		outerErr := f.Collect(collectCtx, func(v T) error {
			if sem != nil {
				select {
				case sem <- struct{}{}:
				case <-collectCtx.Done():
					return collectCtx.Err()
				}
			}
			innerWG.Add(1)
			go func() {
				defer innerWG.Done()
				if sem != nil {
					defer func() { <-sem }()
				}
				inner := transform(v)
				err := inner.Collect(collectCtx, func(r R) error {
					emitMu.Lock()
					defer emitMu.Unlock()
					return emit(r)
				})
				fail(err)
			}()
			return nil
		})
		fail(outerErr)

		innerWG.Wait()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		mu.Lock()
		defer mu.Unlock()
		return firstErr
	}
}
