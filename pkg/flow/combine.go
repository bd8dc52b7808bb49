package flow

import "context"

// Combine runs a and b concurrently and emits combine(latestA, latestB)
// every time either side produces a new value, once both sides have
// produced at least one. It terminates as soon as either side completes,
// cancelling the other - the same early-exit shape as Zip, just without
// Zip's pairing-by-position.
func Combine[T, U, R any](a Flow[T], b Flow[U], combine func(T, U) R) Flow[R] {
	return func(ctx context.Context, emit Emit[R]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		aCh, aErrCh := ToChannel(collectCtx, a)
		bCh, bErrCh := ToChannel(collectCtx, b)

		var (
			latestA      T
			latestB      U
			haveA, haveB bool
		)

		for {
			select {
			case v, ok := <-aCh:
				if !ok {
					cancel()
					<-bErrCh
					return firstRealErr(ctx, <-aErrCh)
				}
				latestA, haveA = v, true
			case v, ok := <-bCh:
				if !ok {
					cancel()
					<-aErrCh
					return firstRealErr(ctx, <-bErrCh)
				}
				latestB, haveB = v, true
			}
			if haveA && haveB {
				if err := emit(combine(latestA, latestB)); err != nil {
					cancel()
					<-aErrCh
					<-bErrCh
					return err
				}
			}
		}
	}
}
