package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/nyrix-labs/gocoro/pkg/ambient"
)

// SharedFlow is a hot, multicast stream: values are only delivered to
// subscribers that are actively subscribed when Emit is called, mirroring
// how replayWAL in internal/controller/controller.go fans one recovered
// event out to exactly the callback(s) registered to receive it at that
// moment, with no per-subscriber persistence of events that already passed.
type SharedFlow[T any] struct {
	mu          sync.Mutex
	subscribers map[int]*sharedSubscriber[T]
	nextID      int
	replay      []T
	replaySize  int
	closed      bool

	// Handlers receives a subscriber's collector panic once recovered, so
	// one misbehaving subscriber can neither crash Emit's caller nor go
	// unreported. Exported, like Scope.Ambient, so callers can Install
	// additional handlers; defaults to NewChain's slog-based handler.
	Handlers *ambient.Chain
}

type sharedSubscriber[T any] struct {
	notify Emit[T]
	result chan error
}

// NewSharedFlow returns a SharedFlow that replays the last replaySize values
// to each new subscriber before delivering live emissions (replaySize == 0:
// no replay, a purely live broadcast).
func NewSharedFlow[T any](replaySize int) *SharedFlow[T] {
	if replaySize < 0 {
		replaySize = 0
	}
	return &SharedFlow[T]{
		subscribers: make(map[int]*sharedSubscriber[T]),
		replaySize:  replaySize,
		Handlers:    ambient.NewChain(),
	}
}

// Emit delivers value to every currently-subscribed Collect call by invoking
// each subscriber's collector function directly, synchronously, in turn -
// Emit does not return until every subscriber has processed value. A slow
// subscriber therefore applies backpressure to the emitter and to every
// subscriber after it in iteration order; callers that can't afford that
// must buffer or hop dispatchers on their own side of Collect, exactly as
// spec.md's "slow subscribers must handle backpressure internally" requires.
//
// A subscriber whose collector panics is unsubscribed, its panic is
// recovered and reported to Handlers, and recover()'s value becomes that
// subscriber's Collect error - it never aborts delivery to the remaining
// subscribers. A subscriber whose collector simply returns an error is
// unsubscribed and that error is handed back to its own Collect call, the
// same as any cold Flow.
func (s *SharedFlow[T]) Emit(value T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.replaySize > 0 {
		s.replay = append(s.replay, value)
		if len(s.replay) > s.replaySize {
			s.replay = s.replay[len(s.replay)-s.replaySize:]
		}
	}
	subs := make([]*sharedSubscriber[T], 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := s.invoke(sub, value); err != nil {
			s.unsubscribe(sub)
			select {
			case sub.result <- err:
			default:
			}
		}
	}
}

func (s *SharedFlow[T]) invoke(sub *sharedSubscriber[T], value T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shared flow subscriber panicked: %v", r)
			s.Handlers.Handle(context.Background(), err)
		}
	}()
	return sub.notify(value)
}

// Close marks the SharedFlow done: every current and future subscriber's
// Collect returns cleanly.
func (s *SharedFlow[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := make([]*sharedSubscriber[T], 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.subscribers = make(map[int]*sharedSubscriber[T])
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.result <- nil:
		default:
		}
	}
}

// AsFlow returns a cold Flow view of the SharedFlow: each Collect call is an
// independent subscription that starts when Collect is called and ends when
// ctx is cancelled or the SharedFlow is closed, matching the "Collect
// subscribes, it doesn't replay the whole history unless configured to"
// contract of a hot flow.
func (s *SharedFlow[T]) AsFlow() Flow[T] {
	return func(ctx context.Context, emit Emit[T]) error {
		sub := &sharedSubscriber[T]{notify: emit, result: make(chan error, 1)}
		backlog, id, alreadyClosed := s.subscribe(sub)

		for _, v := range backlog {
			if err := emit(v); err != nil {
				s.unsubscribeID(id)
				return err
			}
		}
		if alreadyClosed {
			return nil
		}

		select {
		case err := <-sub.result:
			return err
		case <-ctx.Done():
			s.unsubscribeID(id)
			return ctx.Err()
		}
	}
}

func (s *SharedFlow[T]) subscribe(sub *sharedSubscriber[T]) (backlog []T, id int, alreadyClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backlog = append([]T(nil), s.replay...)
	if s.closed {
		return backlog, -1, true
	}
	id = s.nextID
	s.nextID++
	s.subscribers[id] = sub
	return backlog, id, false
}

func (s *SharedFlow[T]) unsubscribe(sub *sharedSubscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, registered := range s.subscribers {
		if registered == sub {
			delete(s.subscribers, id)
			return
		}
	}
}

func (s *SharedFlow[T]) unsubscribeID(id int) {
	if id < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// SubscriptionCount reports the number of active Collect subscriptions,
// mirroring Kotlin's SharedFlow.subscriptionCount used to lazily start/stop
// an upstream producer.
func (s *SharedFlow[T]) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
