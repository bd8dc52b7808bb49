// Package scope implements Scope, the structured-concurrency entry point
// that ties a Job, a Dispatcher, and an ambient.Context together. It is
// grounded on internal/controller/controller.go's role as "the brain that
// coordinates JobManager, WorkerPool and Config" - a Scope plays the same
// coordinating role at the granularity of one coroutine tree node instead of
// one whole system.
package scope

import (
	"context"
	"fmt"

	"github.com/nyrix-labs/gocoro/pkg/ambient"
	"github.com/nyrix-labs/gocoro/pkg/deferred"
	"github.com/nyrix-labs/gocoro/pkg/dispatcher"
	"github.com/nyrix-labs/gocoro/pkg/job"
)

// Scope is the handle user code launches coroutines against. It owns a Job
// (its own lifetime node in the tree), a Dispatcher (where launched work
// runs), and an ambient.Context (handler chain, time source, locals).
type Scope struct {
	*job.Job
	Dispatcher dispatcher.Dispatcher
	Ambient    *ambient.Context
}

// New creates a root Scope with no parent. disp is the Dispatcher launched
// work runs on; amb defaults to a fresh ambient.Context if nil.
func New(disp dispatcher.Dispatcher, amb *ambient.Context, opts ...job.Option) *Scope {
	if amb == nil {
		amb = ambient.NewContext()
	}
	return &Scope{
		Job:        job.New(nil, opts...),
		Dispatcher: disp,
		Ambient:    amb,
	}
}

// Child creates a new Scope whose Job is attached under s's Job. It uses
// disp, or s's Dispatcher when disp is nil, and always shares s's Ambient;
// opts configure the child Job. Launch/Async create
// children implicitly; Child is exposed for callers building their own
// nested scope (e.g. a withContext-style dispatcher swap that must still
// participate in the same cancellation tree).
func (s *Scope) Child(disp dispatcher.Dispatcher, opts ...job.Option) *Scope {
	if disp == nil {
		disp = s.Dispatcher
	}
	return &Scope{
		Job:        job.New(s.Job, opts...),
		Dispatcher: disp,
		Ambient:    s.Ambient,
	}
}

// jobContext returns a context.Context that is cancelled when j reaches a
// terminal state, bridging the Job tree into the context.Context callers
// that user blocks expect to receive.
func jobContext(j *job.Job) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-j.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// runGuarded invokes body, recovering a panic and turning it into the
// equivalent of an unhandled error - a launched block that panics faults
// its Job exactly like one that returns an error, per the completion
// handlers' "exceptions are discarded, not leaked to other goroutines" contract.
func runGuarded(body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in coroutine body: %v", r)
		}
	}()
	return body()
}

// Launch starts body concurrently under a new child Job, dispatched on s's
// Dispatcher. It returns the child Job immediately; body observes cancellation
// through the context.Context it is given, which is cancelled the moment the
// child Job (or any ancestor) is cancelled.
func (s *Scope) Launch(body func(ctx context.Context) error) *job.Job {
	child := job.New(s.Job)
	err := s.Dispatcher.Dispatch(func() {
		ctx, cancel := jobContext(child)
		defer cancel()

		if err := child.EnsureActive(); err != nil {
			return
		}
		runErr := runGuarded(func() error { return body(ctx) })
		if runErr != nil {
			child.MarkFaulted(runErr)
		} else {
			child.MarkCompleted()
		}
	})
	if err != nil {
		// Dispatcher already closed: the child can never run, so it is
		// stillborn-cancelled rather than left Active forever.
		child.Cancel("dispatcher closed")
	}
	return child
}

// Async starts body concurrently, returning a Deferred[T] future. mode
// selects whether body starts immediately (deferred.Default) or waits for
// Start/Await (deferred.Lazy).
func Async[T any](s *Scope, mode deferred.StartMode, body func(ctx context.Context) (T, error)) *deferred.Deferred[T] {
	child := job.New(s.Job)
	d := deferred.New(child, mode, func() (T, error) {
		ctx, cancel := jobContext(child)
		defer cancel()

		var value T
		runErr := runGuarded(func() error {
			v, err := body(ctx)
			value = v
			return err
		})
		return value, runErr
	})

	dispatchErr := s.Dispatcher.Dispatch(d.Launch)
	if dispatchErr != nil {
		child.Cancel("dispatcher closed")
	}
	return d
}

// WithContext runs body synchronously on disp (switching the execution site
// the way Kotlin's withContext switches dispatcher) and returns its result
// once body completes. The calling goroutine blocks for the duration; body's
// context.Context is cancelled if s's Job is cancelled concurrently.
func WithContext[T any](s *Scope, disp dispatcher.Dispatcher, body func(ctx context.Context) (T, error)) (T, error) {
	child := job.New(s.Job)
	ctx, cancel := jobContext(child)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	resultCh := make(chan outcome, 1)

	dispatchErr := disp.Dispatch(func() {
		if err := child.EnsureActive(); err != nil {
			resultCh <- outcome{err: err}
			return
		}
		var out outcome
		runErr := runGuarded(func() error {
			v, err := body(ctx)
			out.value = v
			out.err = err
			return err
		})
		if runErr != nil {
			child.MarkFaulted(runErr)
		} else {
			child.MarkCompleted()
		}
		resultCh <- out
	})
	if dispatchErr != nil {
		child.Cancel("dispatcher closed")
		var zero T
		return zero, dispatchErr
	}

	select {
	case out := <-resultCh:
		return out.value, out.err
	case <-s.Done():
		var zero T
		return zero, job.ErrCancelled
	}
}

// JoinAll blocks until every direct child of s's Job reaches a terminal
// state, or ctx is cancelled first. It returns the first non-nil child
// outcome error encountered, if any, after all children have settled.
func (s *Scope) JoinAll(ctx context.Context) error {
	children := s.Children()
	var firstErr error
	for _, c := range children {
		if err := c.Join(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Cancel cancels s's Job with reason, which cascades to every descendant
// per the Job tree's cancellation propagation.
func (s *Scope) Cancel(reason string) {
	s.Job.Cancel(reason)
}
