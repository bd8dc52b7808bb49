package flow

import (
	"context"
	"time"

	"github.com/nyrix-labs/gocoro/pkg/ambient"
)

// Debounce emits a value only after quiet has elapsed without a newer value
// arriving; each new value resets the timer and supersedes the pending one.
// quiet is measured through clock, so it runs on the real clock in
// production and on a virtual-time controller's clock in tests - clock.After
// is what pkg/virtualtime drives, so nothing here ever calls time.Sleep or
// reaches for the wall clock directly.
func Debounce[T any](f Flow[T], quiet time.Duration, clock ambient.TimeSource) Flow[T] {
	if clock == nil {
		clock = ambient.RealTime{}
	}
	return func(ctx context.Context, emit Emit[T]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		type item struct {
			value T
			has   bool
		}
		updates := make(chan T)
		producerErrCh := make(chan error, 1)

		go func() {
			err := f.Collect(collectCtx, func(v T) error {
				select {
				case updates <- v:
					return nil
				case <-collectCtx.Done():
					return collectCtx.Err()
				}
			})
			producerErrCh <- err
		}()

		var timerCh <-chan time.Time
		var timerCancel chan struct{}
		var pending item

		resetTimer := func() {
			if timerCancel != nil {
				close(timerCancel)
			}
			timerCancel = make(chan struct{})
			timerCh = clock.After(quiet, timerCancel)
		}

		for {
			select {
			case v, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				pending = item{value: v, has: true}
				resetTimer()
			case <-timerCh:
				timerCh = nil
				if pending.has {
					if err := emit(pending.value); err != nil {
						cancel()
						return waitProducer(producerErrCh, err)
					}
					pending.has = false
				}
			case err := <-producerErrCh:
				if timerCancel != nil {
					close(timerCancel)
				}
				if pending.has {
					if emitErr := emit(pending.value); emitErr != nil {
						return emitErr
					}
				}
				if err == context.Canceled && ctx.Err() == nil {
					return nil
				}
				return err
			}
		}
	}
}

// Sample emits the most recent value seen from f, once per tick of
// interval, dropping everything observed in between. interval's ticks are
// driven through clock the same way Debounce's quiet period is.
func Sample[T any](f Flow[T], interval time.Duration, clock ambient.TimeSource) Flow[T] {
	if clock == nil {
		clock = ambient.RealTime{}
	}
	return func(ctx context.Context, emit Emit[T]) error {
		collectCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			mu      = make(chan struct{}, 1)
			latest  T
			haveAny bool
		)
		mu <- struct{}{}

		producerErrCh := make(chan error, 1)
		go func() {
			err := f.Collect(collectCtx, func(v T) error {
				<-mu
				latest = v
				haveAny = true
				mu <- struct{}{}
				return nil
			})
			producerErrCh <- err
		}()

		var tickCancel chan struct{}
		nextTick := func() <-chan time.Time {
			if tickCancel != nil {
				close(tickCancel)
			}
			tickCancel = make(chan struct{})
			return clock.After(interval, tickCancel)
		}
		defer func() {
			if tickCancel != nil {
				close(tickCancel)
			}
		}()
		tick := nextTick()

		for {
			select {
			case <-tick:
				tick = nextTick()
				<-mu
				v, ok := latest, haveAny
				mu <- struct{}{}
				if ok {
					if err := emit(v); err != nil {
						cancel()
						return waitProducer(producerErrCh, err)
					}
				}
			case err := <-producerErrCh:
				if err == context.Canceled && ctx.Err() == nil {
					return nil
				}
				return err
			case <-ctx.Done():
				cancel()
				return waitProducer(producerErrCh, ctx.Err())
			}
		}
	}
}

func waitProducer(errCh <-chan error, fallback error) error {
	<-errCh
	return fallback
}
