package flow

import "context"

// Buffer decouples the producer from the consumer with an internal queue of
// capacity slots: the upstream producer can run up to capacity values ahead
// of the downstream consumer instead of blocking on every emit.
func Buffer[T any](f Flow[T], capacity int) Flow[T] {
	if capacity < 0 {
		capacity = 0
	}
	return func(ctx context.Context, emit Emit[T]) error {
		buf := make(chan T, capacity)
		producerErrCh := make(chan error, 1)

		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			err := f.Collect(collectCtx, func(v T) error {
				select {
				case buf <- v:
					return nil
				case <-collectCtx.Done():
					return collectCtx.Err()
				}
			})
			close(buf)
			producerErrCh <- err
		}()

		for v := range buf {
			if err := emit(v); err != nil {
				cancel()
				for range buf {
				}
				<-producerErrCh
				return err
			}
		}
		err := <-producerErrCh
		if err == context.Canceled && ctx.Err() == nil {
			return nil
		}
		return err
	}
}

// Conflate keeps only the most recent value produced while the consumer is
// still processing a previous one, dropping intermediate values instead of
// buffering them - useful for state-like streams where only the latest
// value matters.
func Conflate[T any](f Flow[T]) Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		latest := make(chan T, 1)
		producerErrCh := make(chan error, 1)

		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			err := f.Collect(collectCtx, func(v T) error {
				select {
				case latest <- v:
				default:
					select {
					case <-latest:
					default:
					}
					latest <- v
				}
				return collectCtx.Err()
			})
			close(latest)
			producerErrCh <- err
		}()

		for v := range latest {
			if err := emit(v); err != nil {
				cancel()
				for range latest {
				}
				<-producerErrCh
				return err
			}
		}
		err := <-producerErrCh
		if err == context.Canceled && ctx.Err() == nil {
			return nil
		}
		return err
	}
}
