// Package deferred implements Deferred[T], the future returned by
// Scope.Async: a Job that additionally carries a typed result, grounded on
// the (Task, Result) pairing in internal/worker/types.go - there a Result
// carries a Success/Error/Duration triple produced by one Worker goroutine
// and read back by the Controller; here the same one-producer,
// one-buffered-slot shape carries a single typed value back to whoever Awaits.
package deferred

import (
	"context"
	"time"

	"github.com/nyrix-labs/gocoro/pkg/job"
)

// StartMode selects when a Deferred's body begins running.
type StartMode int

const (
	// Default starts the body immediately, concurrently with the caller.
	Default StartMode = iota
	// Lazy defers starting the body until Start or the first Await.
	Lazy
)

type result[T any] struct {
	value T
	err   error
}

// Deferred is a Job that produces a single typed result. It is created by
// Scope.Async and is not constructed directly by callers outside this module.
type Deferred[T any] struct {
	*job.Job

	mode   StartMode
	run    func() (T, error)
	ch     chan result[T]
	starts chan struct{} // closed exactly once, by Start
}

// New wires body to run under j, reporting its result on the returned
// Deferred. The Scope dispatches Launch as soon as the Deferred is set up,
// in either mode; for Lazy mode Launch itself waits until Start is called.
func New[T any](j *job.Job, mode StartMode, body func() (T, error)) *Deferred[T] {
	d := &Deferred[T]{
		Job:    j,
		mode:   mode,
		run:    body,
		ch:     make(chan result[T], 1),
		starts: make(chan struct{}),
	}
	if mode == Default {
		close(d.starts)
	}
	return d
}

// Launch runs body on the calling goroutine once the Deferred is permitted
// to start (immediately for Default, after Start for Lazy), reporting the
// outcome through both the embedded Job and the result channel. Scope.Async
// runs Launch on a freshly spawned goroutine; callers of this package should
// not call Launch directly.
func (d *Deferred[T]) Launch() {
	<-d.starts

	if err := d.EnsureActive(); err != nil {
		var zero T
		d.ch <- result[T]{value: zero, err: err}
		return
	}

	value, err := d.run()
	if err != nil {
		d.MarkFaulted(err)
	} else {
		d.MarkCompleted()
	}
	d.ch <- result[T]{value: value, err: err}
}

// Start releases a Lazy Deferred to begin running. A no-op on a Default
// Deferred or on a Deferred already started.
func (d *Deferred[T]) Start() {
	select {
	case <-d.starts:
	default:
		close(d.starts)
	}
}

// Await blocks until the result is available or ctx is cancelled first. A
// Lazy Deferred is implicitly started by Await. If the Job was cancelled
// (even after the body already produced a value), the Job's outcome wins:
// Await reports the cancellation rather than a value the caller no longer
// asked for.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	d.Start()
	select {
	case r := <-d.ch:
		d.ch <- r // allow repeated Await calls to observe the same result
		if outcome := d.outcome(); outcome != nil {
			var zero T
			return zero, outcome
		}
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// outcome maps the embedded Job's terminal state to the error Await/TryGetResult
// should surface, taking priority over whatever the body itself returned.
func (d *Deferred[T]) outcome() error {
	switch d.State() {
	case job.Cancelled:
		return job.ErrCancelled
	case job.Faulted:
		return d.Err()
	default:
		return nil
	}
}

// AwaitTimeout is Await bounded by a plain duration instead of a context.
func (d *Deferred[T]) AwaitTimeout(timeout time.Duration) (value T, err error, timedOut bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	value, err = d.Await(ctx)
	if err == context.DeadlineExceeded {
		var zero T
		return zero, nil, true
	}
	return value, err, false
}

// TryGetResult returns the result without blocking; ok is false if the
// Deferred has not completed yet.
func (d *Deferred[T]) TryGetResult() (value T, err error, ok bool) {
	select {
	case r := <-d.ch:
		d.ch <- r
		if outcome := d.outcome(); outcome != nil {
			var zero T
			return zero, outcome, true
		}
		return r.value, r.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// GetException returns the captured failure, if any, without blocking the
// caller past the Job's own terminal state (nil if still Active, nil if
// Completed, the FaultError if Faulted, job.ErrCancelled if Cancelled).
func (d *Deferred[T]) GetException() error {
	return d.Job.Err()
}
