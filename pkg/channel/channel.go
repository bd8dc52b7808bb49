// Package channel implements Channel[T], gocoro's inter-coroutine mailbox.
// It is grounded on the taskCh/resultCh/stopCh triad in
// internal/worker/worker_pool.go: a buffered Go channel for the data path
// and a separately closed signal channel so Send can race a close without
// panicking on a send to a closed channel.
package channel

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send/TrySend once the Channel has been closed,
// and by Receive to signal there is nothing left to read after a Close
// with no cause.
var ErrClosed = errors.New("channel: closed")

// Capacity selects one of the three standard buffering strategies.
type Capacity int

const (
	// Rendezvous gives Send and Receive no buffer: each Send blocks until a
	// Receive is ready to take it, and vice versa.
	Rendezvous Capacity = 0
)

// Channel is a generic, closable, many-producer many-consumer mailbox.
type Channel[T any] struct {
	data   chan T // read by Receive/ReceiveAll
	sendCh chan T // written by Send/TrySend; equals data except for NewUnbounded

	mu       sync.Mutex
	closed   bool
	closeErr error
	done     chan struct{}
}

// NewRendezvous returns an unbuffered Channel: Send blocks until a matching Receive.
func NewRendezvous[T any]() *Channel[T] { return newChannel[T](int(Rendezvous)) }

// NewBounded returns a Channel buffered to capacity entries; Send blocks once full.
func NewBounded[T any](capacity int) *Channel[T] { return newChannel[T](capacity) }

// NewUnbounded returns a Channel with unbounded internal buffering: Send
// never blocks on capacity (only on Close). Backed by a forwarder goroutine
// draining a growable slice into a rendezvous channel, the same
// pull-driven-buffer shape as a JobSource.Poll loop feeding a bounded taskCh.
func NewUnbounded[T any]() *Channel[T] {
	c := &Channel[T]{
		data: make(chan T),
		done: make(chan struct{}),
	}
	in := make(chan T)
	go unboundedForwarder(in, c.data)
	c.sendCh = in
	return c
}

func newChannel[T any](capacity int) *Channel[T] {
	c := &Channel[T]{
		data: make(chan T, capacity),
		done: make(chan struct{}),
	}
	c.sendCh = c.data
	return c
}

// unboundedForwarder buffers values from in into an unbounded internal
// queue and relays them to out one at a time, so producers into in never
// block on a consumer being slow.
func unboundedForwarder[T any](in <-chan T, out chan<- T) {
	var queue []T
	for {
		if len(queue) == 0 {
			v, ok := <-in
			if !ok {
				close(out)
				return
			}
			queue = append(queue, v)
			continue
		}
		select {
		case v, ok := <-in:
			if !ok {
				for _, q := range queue {
					out <- q
				}
				close(out)
				return
			}
			queue = append(queue, v)
		case out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// Send blocks until value is accepted, ctx is cancelled, or the Channel is
// closed.
func (c *Channel[T]) Send(ctx context.Context, value T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	sendCh := c.sendCh
	done := c.done
	c.mu.Unlock()

	select {
	case sendCh <- value:
		return nil
	case <-done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend attempts a non-blocking send; ok is false if the Channel has no
// room (or is unbounded and momentarily not ready for direct handoff) or is closed.
func (c *Channel[T]) TrySend(value T) (ok bool, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	sendCh := c.sendCh
	c.mu.Unlock()

	select {
	case sendCh <- value:
		return true, nil
	default:
		return false, nil
	}
}

// Receive blocks until a value is available, ctx is cancelled, or the
// Channel is closed and drained (ok is false in that case).
func (c *Channel[T]) Receive(ctx context.Context) (value T, ok bool, err error) {
	select {
	case v, open := <-c.data:
		if !open {
			var zero T
			return zero, false, c.closeCause()
		}
		return v, true, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// ReceiveAll returns a channel that yields every value sent until ctx is
// cancelled or the Channel is closed, for use in a Go range loop:
//
//	values, errs := ch.ReceiveAll(ctx)
//	for v := range values { ... }
//	if err := <-errs; err != nil { ... }
//
// errs receives exactly one value once values closes: nil after a clean
// Close(), ctx.Err() if ctx was cancelled first, or the cause given to
// CloseWithError - the close-exception spec.md requires receiveAll to
// raise, surfaced the same way ToChannel surfaces a Flow's terminal error
// alongside its value channel.
func (c *Channel[T]) ReceiveAll(ctx context.Context) (values <-chan T, errs <-chan error) {
	out := make(chan T)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			v, ok, err := c.Receive(ctx)
			if !ok {
				if err == ErrClosed {
					err = nil
				}
				errCh <- err
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}

// Close closes the Channel with no specific cause; once the buffer is
// drained, pending and future Receive calls return ok == false with
// ErrClosed, and ReceiveAll ends with a nil error.
func (c *Channel[T]) Close() {
	c.CloseWithError(nil)
}

// CloseWithError closes the Channel, recording cause so that Receive callers
// draining after the close can distinguish a graceful shutdown from failure.
func (c *Channel[T]) CloseWithError(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = cause
	c.mu.Unlock()

	close(c.done)
	close(c.sendCh)
}

func (c *Channel[T]) closeCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrClosed
}
