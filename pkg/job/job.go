// ============================================================================
// gocoro Job Tree - Structured Cancellation
// ============================================================================
//
// Package: pkg/job
// Purpose: the node type for the cancellation tree that every launched
// coroutine in the system is attached to.
//
// Design Philosophy:
//   A Job's state is a single sum type {Active, Completed, Cancelled,
//   Faulted} realized as one atomic CAS on a 32-bit word, per Design Note
//   "State machine vs. two booleans" - no parallel isCompleted/isCancelled
//   booleans. Only the goroutine that wins the CAS performs side effects
//   (parent notification, completion-signal close, handler fan-out).
//
// Job State Machine:
//   Active
//      |-> Completed  (markCompleted, normal return)
//      |-> Cancelled  (Cancel, cooperative)
//      |-> Faulted    (markFaulted, unhandled error)
//
// Parent Propagation:
//   Default policy: a child's failure cancels the parent, which recursively
//   cancels siblings (structured concurrency's "one fails, all fail").
//   Supervisor policy: the hooks are no-ops; failures are only logged.
//   This mirrors internal/jobmanager's state-transition discipline and
//   babyman-slug-lang's NurseryScope fail-fast/CancelChildren shape, without
//   inheritance: the policy is a field, branched on in the two hook methods.
//
// Concurrency:
//   - atomic.Int32 state word, CAS transition
//   - sync.Mutex protects the children set and completion-handler list
//   - completion is a close-once channel; waiters select on it
//
// ============================================================================

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// State is one of the four mutually exclusive Job states.
type State int32

const (
	// Active is the only non-terminal state.
	Active State = iota
	// Completed means the user block returned normally.
	Completed
	// Cancelled means Cancel won the race to a terminal state.
	Cancelled
	// Faulted means the user block (or a descendant) raised an unhandled error.
	Faulted
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of Completed/Cancelled/Faulted.
func (s State) IsTerminal() bool { return s != Active }

// Policy selects how a Job reacts to a child's cancellation or failure.
type Policy int

const (
	// DefaultPolicy propagates a child's cancellation/failure to the parent,
	// which in turn cancels its other children.
	DefaultPolicy Policy = iota
	// SupervisorPolicy isolates a child's cancellation/failure: siblings
	// and the parent are left running.
	SupervisorPolicy
)

var (
	// ErrCancelled is the outcome reported to Join/Await callers for a Cancelled Job.
	ErrCancelled = errors.New("job: cancelled")
	// ErrTimeout is the sentinel for a join that timed out. JoinTimeout does
	// not return it: it reports a timeout as ok == false with a nil error.
	ErrTimeout = errors.New("job: join timed out")
)

// FaultError wraps the exception captured by MarkFaulted so Join/Await
// callers can unwrap the original cause.
type FaultError struct {
	Cause error
}

func (e *FaultError) Error() string { return fmt.Sprintf("job: faulted: %v", e.Cause) }
func (e *FaultError) Unwrap() error { return e.Cause }

// CompletionHandler is a one-shot callback invoked exactly once when a Job
// reaches a terminal state. Panics/errors inside a handler are swallowed -
// per spec, "completion callback exceptions are discarded".
type CompletionHandler func(state State, err error)

// Metrics receives a Job's lifecycle events. *gocorometrics.Collector
// implements it without referencing this package, the same structural-typing
// fit dispatcher.go's StatsReporter gives dispatcher callers.
type Metrics interface {
	// RecordLaunch is called once, when a Job becomes Active.
	RecordLaunch()
	// RecordTerminal is called once, when a Job reaches a terminal state;
	// state is one of "completed", "cancelled", "faulted".
	RecordTerminal(state string, lifetimeSeconds float64)
}

type noopMetrics struct{}

func (noopMetrics) RecordLaunch()                   {}
func (noopMetrics) RecordTerminal(string, float64) {}

// Job is one node in the structured-concurrency tree.
type Job struct {
	name   string
	policy Policy

	state atomic.Int32 // holds a State

	mu       sync.Mutex
	parent   *Job
	children map[*Job]struct{}
	handlers []CompletionHandler
	reason   string
	err      error

	done chan struct{} // closed exactly once, on terminal transition

	log       *slog.Logger
	metrics   Metrics
	createdAt time.Time
}

// Option configures a new Job.
type Option func(*Job)

// WithName attaches a human-readable name used in log lines, mirroring the
// teacher's "ambient tagging" of jobs/controllers for diagnostics.
func WithName(name string) Option { return func(j *Job) { j.name = name } }

// WithPolicy sets the child-propagation policy; default is DefaultPolicy.
func WithPolicy(p Policy) Option { return func(j *Job) { j.policy = p } }

// WithMetrics attaches m as the Job's lifecycle sink. Children created under
// this Job inherit it automatically unless they're given their own
// WithMetrics, the same inheritance Scope.Child gives Ambient.
func WithMetrics(m Metrics) Option { return func(j *Job) { j.metrics = m } }

// New creates an Active Job attached to parent (nil for a root Job).
//
// Per the "child creation happens-before the first user statement of the
// child's block" ordering guarantee, callers must call New and attach the
// returned Job to its parent (automatic here) before running any user code
// under it, so a concurrent Cancel of the parent is always observed.
func New(parent *Job, opts ...Option) *Job {
	j := &Job{
		parent:    parent,
		children:  make(map[*Job]struct{}),
		done:      make(chan struct{}),
		log:       slog.Default(),
		createdAt: nowFunc(),
	}
	if parent != nil {
		j.metrics = parent.metrics
	}
	for _, o := range opts {
		o(j)
	}
	if j.metrics == nil {
		j.metrics = noopMetrics{}
	}
	j.state.Store(int32(Active))

	if parent != nil {
		parent.addChild(j)
	}
	j.metrics.RecordLaunch()
	return j
}

// nowFunc is a var so tests could swap it; production code always takes the
// wall clock since Job lifetimes are reported to Prometheus, not driven
// through the virtual-time harness.
var nowFunc = time.Now

func (j *Job) addChild(child *Job) {
	j.mu.Lock()
	terminal := State(j.state.Load()).IsTerminal()
	if !terminal {
		j.children[child] = struct{}{}
	}
	j.mu.Unlock()

	if terminal {
		// Parent already terminal: the child is doomed immediately, but it
		// must still exist first (ordering guarantee) so its Cancel below
		// observes a consistent transition.
		child.Cancel("parent already terminal")
	}
}

func (j *Job) removeChild(child *Job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.children, child)
}

// Name returns the Job's diagnostic name, or "" if unset.
func (j *Job) Name() string { return j.name }

// State returns the current state.
func (j *Job) State() State { return State(j.state.Load()) }

// Err returns the captured failure (a *FaultError) for a Faulted Job,
// ErrCancelled for a Cancelled Job, and nil otherwise.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Reason returns the cancellation reason, if any.
func (j *Job) Reason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reason
}

// Done returns a channel that is closed exactly once, when the Job reaches
// a terminal state. Analogous to context.Context.Done.
func (j *Job) Done() <-chan struct{} { return j.done }

// Children returns a stable snapshot of current children.
func (j *Job) Children() []*Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Job, 0, len(j.children))
	for c := range j.children {
		out = append(out, c)
	}
	return out
}

// transition performs the single CAS from Active to target and, only if it
// wins, runs the terminal side effects exactly once.
func (j *Job) transition(target State, reason string, err error) bool {
	if !j.state.CompareAndSwap(int32(Active), int32(target)) {
		return false
	}

	j.mu.Lock()
	j.reason = reason
	j.err = err
	children := make([]*Job, 0, len(j.children))
	for c := range j.children {
		children = append(children, c)
	}
	handlers := j.handlers
	j.handlers = nil
	j.mu.Unlock()

	close(j.done)

	j.log.Debug("job terminal", "name", j.name, "state", target.String(), "reason", reason)
	j.metrics.RecordTerminal(strings.ToLower(target.String()), nowFunc().Sub(j.createdAt).Seconds())

	for _, h := range handlers {
		runHandlerSafely(h, target, err)
	}

	if j.parent != nil {
		j.parent.removeChild(j)
	}

	switch target {
	case Cancelled:
		for _, c := range children {
			// A child's own Cancel failing (already terminal) must not stop
			// the loop over the rest, per spec.
			func() {
				defer func() { _ = recover() }()
				c.Cancel(reason)
			}()
		}
		if j.parent != nil {
			j.parent.handleChildCancellation(j)
		}
	case Faulted:
		for _, c := range children {
			func() {
				defer func() { _ = recover() }()
				c.Cancel("sibling faulted")
			}()
		}
		if j.parent != nil {
			j.parent.handleChildException(err)
		}
	case Completed:
		// no propagation
	}
	return true
}

func runHandlerSafely(h CompletionHandler, state State, err error) {
	defer func() { _ = recover() }()
	h(state, err)
}

// Cancel attempts Active -> Cancelled. A no-op on an already-terminal Job
// (including a Job already Cancelled: the first reason wins, Cancel is
// idempotent).
func (j *Job) Cancel(reason string) {
	j.transition(Cancelled, reason, ErrCancelled)
}

// MarkCompleted attempts Active -> Completed; called by the scheduling
// layer when a launched block returns without error.
func (j *Job) MarkCompleted() {
	j.transition(Completed, "", nil)
}

// MarkFaulted attempts Active -> Faulted, capturing err as the Job's
// exception. A Job never retries and never reports more than the first
// failure; later calls after the CAS has already fired are no-ops.
func (j *Job) MarkFaulted(err error) {
	j.transition(Faulted, "", &FaultError{Cause: err})
}

// handleChildCancellation is the default-policy hook: a child's
// cancellation cancels this Job (propagating to siblings through its own
// transition). Under SupervisorPolicy it only logs.
func (j *Job) handleChildCancellation(child *Job) {
	if j.policy == SupervisorPolicy {
		j.log.Debug("supervisor observed child cancellation", "parent", j.name, "child", child.name)
		return
	}
	j.Cancel(fmt.Sprintf("child %s cancelled", child.name))
}

// handleChildException is the default-policy hook: a child's failure
// faults this Job. Under SupervisorPolicy it only logs to the default
// logger (spec: "logged to the ambient uncaught-exception handler").
func (j *Job) handleChildException(err error) {
	if j.policy == SupervisorPolicy {
		j.log.Warn("supervisor observed child failure", "parent", j.name, "error", err)
		return
	}
	j.MarkFaulted(err)
}

// EnsureActive returns ErrCancelled-wrapping error if the Job is not Active.
func (j *Job) EnsureActive() error {
	if j.State() != Active {
		return fmt.Errorf("job %q not active: %w", j.name, ErrCancelled)
	}
	return nil
}

// InvokeOnCompletion registers a one-shot handler. If the Job is already
// terminal, the handler runs immediately (synchronously, on the caller's
// goroutine) rather than being queued.
func (j *Job) InvokeOnCompletion(h CompletionHandler) {
	j.mu.Lock()
	state := State(j.state.Load())
	if state.IsTerminal() {
		j.mu.Unlock()
		runHandlerSafely(h, state, j.Err())
		return
	}
	j.handlers = append(j.handlers, h)
	j.mu.Unlock()
}

// Join blocks until the Job reaches a terminal state, or cancel fires
// first (in which case it returns ctx.Err() without affecting the Job).
// A Cancelled/Faulted outcome is reported back to the caller as an error.
func (j *Job) Join(ctx context.Context) error {
	select {
	case <-j.done:
		return j.outcomeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinTimeout waits up to d for the terminal signal. ok is false on timeout.
func (j *Job) JoinTimeout(d time.Duration) (ok bool, err error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-j.done:
		return true, j.outcomeErr()
	case <-timer.C:
		return false, nil
	}
}

func (j *Job) outcomeErr() error {
	switch j.State() {
	case Cancelled:
		return ErrCancelled
	case Faulted:
		return j.Err()
	default:
		return nil
	}
}
