package flow

import (
	"context"
	"sync"
)

// Merge interleaves the emissions of every Flow in sources as they arrive,
// with no ordering guarantee between sources. It completes once every
// source has completed, returning the first non-cancellation error seen.
func Merge[T any](sources ...Flow[T]) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var mu sync.Mutex
		var firstErr error
		var emitMu sync.Mutex // serializes emit: downstream Collect bodies are not required to be goroutine-safe

		var wg sync.WaitGroup
		wg.Add(len(sources))
		for _, src := range sources {
			src := src
			go func() {
				defer wg.Done()
				err := src.Collect(collectCtx, func(v T) error {
					emitMu.Lock()
					defer emitMu.Unlock()
					return emit(v)
				})
				if err != nil && err != context.Canceled {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
				}
			}()
		}
		wg.Wait()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		return firstErr
	}
}
