package virtualtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nyrix-labs/gocoro/pkg/ambient"
	"github.com/nyrix-labs/gocoro/pkg/scope"
)

// maxAutoAdvanceIterations bounds RunUntilIdle's auto-advance loop. A
// coroutine can be durably stuck (waiting on something that will never
// complete, e.g. a channel nobody will ever send to) rather than merely
// waiting on a timer; without a cap, RunUntilIdle would spin forever
// advancing virtual time for no reason. kotlinx-coroutines-test hits the
// identical failure mode in advanceUntilIdle on a genuinely stuck test.
const maxAutoAdvanceIterations = 1_000

// settleAttempts bounds how many scheduling-yield passes RunUntilIdle gives
// already-dispatched goroutines to reach their next blocking point before
// concluding there is nothing left that virtual time can unblock.
const settleAttempts = 8

// StuckError is returned by RunUntilIdleStrict (and logged, not returned, by
// RunUntilIdle) when the auto-advance loop exceeds maxAutoAdvanceIterations
// without the scope ever settling, or earlier when no timer is pending and
// the scope stays busy for more than settleAttempts consecutive rounds -
// evidence of a coroutine that is not actually waiting on virtual time at all.
type StuckError struct {
	Iterations int
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("virtualtime: scope did not become idle after %d auto-advance iterations; a coroutine is likely blocked on something other than virtual time", e.Iterations)
}

// TestScope pairs a Scope with a Controller-backed virtual clock and a
// TestDispatcher, so launched coroutines run under explicit
// AdvanceTimeBy/RunUntilIdle control instead of real-time sleeps.
type TestScope struct {
	*scope.Scope
	Dispatcher *TestDispatcher
	Clock      *Controller
}

// NewTestScope returns a TestScope whose virtual clock starts at epoch.
func NewTestScope(epoch time.Time) *TestScope {
	clock := NewController(epoch)
	disp := NewTestDispatcher()
	amb := ambient.NewContext().WithDispatcherTime(clock)

	return &TestScope{
		Scope:      scope.New(disp, amb),
		Dispatcher: disp,
		Clock:      clock,
	}
}

// RunCurrent gives already-runnable goroutines a chance to reach their next
// blocking point, without advancing the virtual clock. Equivalent in spirit
// to kotlinx-coroutines-test's runCurrent(), within the limits of Go not
// exposing when a goroutine has actually parked.
func (ts *TestScope) RunCurrent() {
	yieldToScheduler()
}

// IsIdle reports whether there is nothing left to run right now: no
// dispatched goroutines in flight and no timer due at or before the current
// virtual time.
func (ts *TestScope) IsIdle() bool {
	if ts.Dispatcher.Pending() > 0 {
		return false
	}
	deadline, pending := ts.Clock.NextDeadline()
	if !pending {
		return true
	}
	return deadline.After(ts.Clock.Now())
}

// AdvanceTimeBy moves the virtual clock forward by d, firing every timer due
// in the interval and yielding to the scheduler between fires so their
// continuations run before the next timer fires.
func (ts *TestScope) AdvanceTimeBy(d time.Duration) {
	target := ts.Clock.Now().Add(d)
	yieldToScheduler()
	for {
		deadline, pending := ts.Clock.NextDeadline()
		if !pending || deadline.After(target) {
			ts.Clock.AdvanceTo(target)
			yieldToScheduler()
			return
		}
		ts.Clock.AdvanceTo(deadline)
		yieldToScheduler()
	}
}

// RunUntilIdle auto-advances the virtual clock to each successive pending
// timer's deadline, in turn, until the scope has nothing left to run.
// Equivalent to kotlinx-coroutines-test's advanceUntilIdle(). If the scope
// does not settle (see StuckError for when it gives up), the apparent stall is
// logged via slog and RunUntilIdle returns anyway (diagnostic mode: a test
// calling this doesn't want a panic, it wants to fail its own assertions
// with a clear log line explaining why). Use RunUntilIdleStrict to get an
// error instead.
func (ts *TestScope) RunUntilIdle() {
	if err := ts.runUntilIdle(); err != nil {
		slog.Warn("virtualtime: RunUntilIdle gave up without reaching idle", "error", err)
	}
}

// RunUntilIdleStrict is RunUntilIdle but returns a *StuckError instead of
// only logging one, for tests that want to fail loudly on a stuck coroutine
// rather than rely on a subsequent assertion to notice.
func (ts *TestScope) RunUntilIdleStrict() error {
	return ts.runUntilIdle()
}

func (ts *TestScope) runUntilIdle() error {
	noProgressRounds := 0
	for i := 0; i < maxAutoAdvanceIterations; i++ {
		for s := 0; s < settleAttempts; s++ {
			yieldToScheduler()
		}
		if ts.IsIdle() {
			return nil
		}

		deadline, pending := ts.Clock.NextDeadline()
		if pending {
			// A coroutine registered a timer: advance to it regardless of
			// Pending(), since "pending" only means "has not returned yet",
			// which is equally true of a goroutine parked on this very
			// timer as of one still doing unrelated work.
			ts.Clock.AdvanceTo(deadline)
			noProgressRounds = 0
			continue
		}

		// Nothing scheduled to chase: either still-runnable work hasn't
		// finished settling yet, or a coroutine is blocked on something
		// that is not virtual time at all. Give it a bounded number of
		// extra rounds before concluding the latter.
		noProgressRounds++
		if noProgressRounds > settleAttempts {
			return &StuckError{Iterations: i}
		}
	}
	return &StuckError{Iterations: maxAutoAdvanceIterations}
}
