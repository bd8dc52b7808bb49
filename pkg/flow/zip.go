package flow

import "context"

// Zip runs a and b concurrently and emits combine(av, bv) for each matched
// pair, in arrival order on each side - the n-th value from a paired with
// the n-th value from b. It completes (without error) as soon as either
// side completes, cancelling the other.
func Zip[T, U, R any](a Flow[T], b Flow[U], combine func(T, U) R) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		aCh, aErrCh := ToChannel(collectCtx, a)
		bCh, bErrCh := ToChannel(collectCtx, b)

		for {
			av, aOK := <-aCh
			if !aOK {
				cancel()
				<-bErrCh
				return firstRealErr(ctx, <-aErrCh)
			}
			bv, bOK := <-bCh
			if !bOK {
				cancel()
				<-aErrCh
				return firstRealErr(ctx, <-bErrCh)
			}
			if err := emit(combine(av, bv)); err != nil {
				cancel()
				<-aErrCh
				<-bErrCh
				return err
			}
		}
	}
}

// firstRealErr downgrades a context.Canceled produced only by our own
// early-stop cancellation to nil, unless ctx itself (the caller's context,
// not our internal cancel) was the one that fired.
func firstRealErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == context.Canceled {
		return nil
	}
	return err
}
