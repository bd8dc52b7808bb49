// Package virtualtime implements the deterministic test harness: a virtual
// clock driven entirely by AdvanceTimeBy/RunUntilIdle instead of wall-clock
// time, paired with a TestDispatcher that runs dispatched work on real
// goroutines but reports how many are still in flight so a test scope can
// tell idle from busy.
//
// Grounded on internal/controller/controller.go's four-loop design
// (dispatch/result/timeout/snapshot, each driven off a time.Ticker) -
// generalized from "wall-clock tickers driving real loops" to "a priority
// queue of (when, action) pairs driving a single virtual clock", the
// standard technique for making timer-dependent concurrent code testable
// without real sleeps.
package virtualtime

import (
	"container/heap"
	"sync"
	"time"

	"github.com/nyrix-labs/gocoro/pkg/ambient"
)

var _ ambient.TimeSource = (*Controller)(nil)

type timerEntry struct {
	when  time.Time
	seq   uint64
	fire  chan time.Time
	fired bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Controller is the virtual clock: a single point in time that only moves
// forward when AdvanceTimeBy or RunUntilIdle says so, plus a min-heap of
// pending timers ordered by when they fire.
type Controller struct {
	mu      sync.Mutex
	now     time.Time
	timers  timerHeap
	nextSeq uint64
}

// NewController returns a Controller whose virtual clock starts at the
// given epoch (callers typically pass a fixed, arbitrary instant - the
// absolute value never matters, only elapsed durations do).
func NewController(epoch time.Time) *Controller {
	return &Controller{now: epoch}
}

// Now returns the current virtual time.
func (c *Controller) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After schedules a timer that fires d after the current virtual time, or
// never if cancel fires first. It satisfies ambient.TimeSource.
func (c *Controller) After(d time.Duration, cancel <-chan struct{}) <-chan time.Time {
	out := make(chan time.Time, 1)
	if d <= 0 {
		c.mu.Lock()
		now := c.now
		c.mu.Unlock()
		out <- now
		return out
	}

	c.mu.Lock()
	entry := &timerEntry{when: c.now.Add(d), seq: c.nextSeq, fire: out}
	c.nextSeq++
	heap.Push(&c.timers, entry)
	c.mu.Unlock()

	if cancel != nil {
		go func() {
			<-cancel
			c.mu.Lock()
			entry.fired = true // suppresses a later fire without removing it from the heap
			c.mu.Unlock()
		}()
	}
	return out
}

// NextDeadline returns the when of the earliest still-pending timer, and
// whether any timer is pending at all.
func (c *Controller) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.timers) > 0 && c.timers[0].fired {
		heap.Pop(&c.timers)
	}
	if len(c.timers) == 0 {
		return time.Time{}, false
	}
	return c.timers[0].when, true
}

// AdvanceTo moves the virtual clock to target (a no-op if target is not
// after the current time) and fires every timer due at or before it, in
// (when, registration order) order.
func (c *Controller) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		if len(c.timers) == 0 || c.timers[0].when.After(target) {
			if c.now.Before(target) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		entry := heap.Pop(&c.timers).(*timerEntry)
		if entry.when.After(c.now) {
			c.now = entry.when
		}
		fired := entry.fired
		at := c.now
		c.mu.Unlock()

		if !fired {
			entry.fire <- at
		}
	}
}

// AdvanceBy moves the virtual clock forward by d, firing every timer due in
// the interval.
func (c *Controller) AdvanceBy(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.AdvanceTo(target)
}
