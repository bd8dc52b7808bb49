package virtualtime

import (
	"runtime"
	"sync/atomic"

	"github.com/nyrix-labs/gocoro/pkg/dispatcher"
)

// TestDispatcher runs every dispatched task on its own new goroutine (unlike
// Pooled's fixed worker pool) and tracks how many it has started and not
// yet seen return. A
// coroutine's body still does real blocking channel receives (most notably
// on a Controller.After channel); Go gives no hook to detect "this goroutine
// is now parked waiting on a channel" short of it actually happening, so
// TestDispatcher cannot synchronously "run" a task the way a single-threaded
// drain loop would - it can only count who is in flight and let the runtime
// scheduler interleave real goroutines against the virtual clock.
type TestDispatcher struct {
	running atomic.Int64
	closed  atomic.Bool
}

var _ dispatcher.Dispatcher = (*TestDispatcher)(nil)

// NewTestDispatcher returns an empty TestDispatcher.
func NewTestDispatcher() *TestDispatcher {
	return &TestDispatcher{}
}

// Dispatch starts task on a new goroutine immediately.
func (d *TestDispatcher) Dispatch(task func()) error {
	if d.closed.Load() {
		return dispatcher.ErrClosed
	}
	d.running.Add(1)
	go func() {
		defer d.running.Add(-1)
		task()
	}()
	return nil
}

// Pending reports how many dispatched tasks have not yet returned.
func (d *TestDispatcher) Pending() int {
	return int(d.running.Load())
}

// Close stops accepting new tasks. In-flight goroutines are left running;
// TestDispatcher has no way to forcibly stop a goroutine blocked inside user
// code, so Close only affects future Dispatch calls.
func (d *TestDispatcher) Close() {
	d.closed.Store(true)
}

// yieldToScheduler gives already-runnable goroutines a chance to run and
// reach their next blocking point, since Dispatch's goroutines are real and
// scheduled by the Go runtime, not by this package.
func yieldToScheduler() {
	for i := 0; i < 64; i++ {
		runtime.Gosched()
	}
}
