// Package dispatcher provides the pluggable execution-site strategies that a
// Scope runs launched and async blocks on. Pooled and SingleThread are
// grounded on the same worker-pool shape as internal/worker/worker_pool.go:
// a shared task channel, a fixed set of goroutines draining it, and a
// close-once stop signal used for graceful shutdown. Inline has no pool and
// runs each task on the caller's goroutine.
package dispatcher

import "errors"

// ErrClosed is returned by Dispatch once the Dispatcher has been closed.
var ErrClosed = errors.New("dispatcher: closed")

// Dispatcher schedules a unit of work (task) for execution according to its
// own policy - on a worker pool, on a single dedicated goroutine, or
// synchronously on the caller. Dispatch returns an error only if the
// Dispatcher cannot accept the task at all (already closed); task's own
// failure is reported back through whatever join/await mechanism the caller
// is using, not through Dispatch's return value.
type Dispatcher interface {
	// Dispatch schedules task to run according to the Dispatcher's policy.
	// It returns ErrClosed if the Dispatcher has been closed.
	Dispatch(task func()) error

	// Close stops accepting new work and blocks until everything already
	// accepted has finished running. Close is idempotent.
	Close()
}

// StatsReporter is implemented by Dispatchers that can report their current
// saturation. Pooled and SingleThread implement it; Inline does not, since
// it never queues anything. Callers type-assert for it before polling, the
// same optional-capability pattern context.Context uses for Deadline.
type StatsReporter interface {
	// Stats reports the number of tasks currently queued and the number of
	// worker goroutines currently executing a task.
	Stats() (queued, busyWorkers int)
}
