// Package ambient carries the few pieces of state that every coroutine in a
// tree needs implicit access to: the uncaught-exception handler chain, the
// time source (real or virtual), and user-installed coroutine-local values.
//
// Go has no async-local storage, so these are not carried by magic context
// propagation across suspension points. Instead a *Context is held explicitly
// by each Scope and passed down to children, the way the teacher's Controller
// holds a package-level slog.Logger and passes its Config down to workers.
package ambient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler receives an uncaught exception. ctx may be nil when no request
// context was available at the failure site. Handler errors (panics) are
// recovered and swallowed by Chain.Handle, mirroring Job.invokeOnCompletion's
// "handler exceptions are swallowed" contract.
type Handler func(ctx context.Context, err error)

// Chain is an ordered, thread-safe list of Handlers.
type Chain struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewChain returns a Chain whose default handler logs via slog.
func NewChain() *Chain {
	c := &Chain{}
	c.Install(func(_ context.Context, err error) {
		slog.Default().Error("uncaught coroutine failure", "error", err)
	})
	return c
}

// Install appends a handler and returns an uninstall function.
func (c *Chain) Install(h Handler) (uninstall func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	idx := len(c.handlers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.handlers) {
			c.handlers[idx] = nil
		}
	}
}

// Handle fans an error out to every installed handler. Each handler runs
// under recover so one bad handler can't stop the chain or crash the caller.
func (c *Chain) Handle(ctx context.Context, err error) {
	c.mu.RLock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			h(ctx, err)
		}()
	}
}

// TimeSource abstracts wall-clock access so the virtual-time harness can
// stand in for it during tests. Now returns the current instant; After
// returns a channel that fires once duration has elapsed, honoring cancel.
type TimeSource interface {
	Now() time.Time
	After(d time.Duration, cancel <-chan struct{}) <-chan time.Time
}

// RealTime is the default TimeSource, backed by the monotonic system clock.
type RealTime struct{}

// Now returns time.Now().
func (RealTime) Now() time.Time { return time.Now() }

// After returns a channel that fires after d, or never fires if cancel fires first.
func (RealTime) After(d time.Duration, cancel <-chan struct{}) <-chan time.Time {
	out := make(chan time.Time, 1)
	if d <= 0 {
		out <- time.Now()
		return out
	}
	timer := time.NewTimer(d)
	go func() {
		select {
		case t := <-timer.C:
			out <- t
		case <-cancel:
			timer.Stop()
		}
	}()
	return out
}

// Local is a typed coroutine-local slot. Values are carried explicitly via
// Context.WithLocal/Context.Get rather than through goroutine-local magic;
// Go has none, and the Design Notes call the Scope "the natural carrier".
type Local[T any] struct {
	key *int
}

// NewLocal allocates a fresh, comparable key for a coroutine-local slot.
func NewLocal[T any]() Local[T] {
	return Local[T]{key: new(int)}
}

// Context bundles the ambient state a Scope threads down to its children.
type Context struct {
	Handlers *Chain
	Time     TimeSource

	mu     sync.RWMutex
	locals map[any]any
}

// NewContext returns a Context with a default Chain and RealTime source.
func NewContext() *Context {
	return &Context{
		Handlers: NewChain(),
		Time:     RealTime{},
		locals:   make(map[any]any),
	}
}

// WithLocal returns a copy of the Context carrying value under key's slot.
// The locals map is copied-on-write so a child scope's WithLocal never
// mutates state visible to siblings or the parent.
func (c *Context) WithLocal(key any, value any) *Context {
	c.mu.RLock()
	next := make(map[any]any, len(c.locals)+1)
	for k, v := range c.locals {
		next[k] = v
	}
	c.mu.RUnlock()

	next[key] = value
	return &Context{Handlers: c.Handlers, Time: c.Time, locals: next}
}

// Get fetches a coroutine-local value, ok is false if never set.
func (c *Context) Get(key any) (value any, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok = c.locals[key]
	return
}

// Set returns a copy of ctx carrying value in slot l; ctx itself is unchanged.
func Set[T any](ctx *Context, l Local[T], value T) *Context {
	return ctx.WithLocal(l.key, value)
}

// Get retrieves the value held in slot l.
func Get[T any](ctx *Context, l Local[T]) (T, bool) {
	v, ok := ctx.Get(l.key)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// WithDispatcherTime returns a copy of the Context using ts as its time source;
// used by the virtual-time harness to swap in the virtual clock for a test scope.
func (c *Context) WithDispatcherTime(ts TimeSource) *Context {
	c.mu.RLock()
	locals := c.locals
	c.mu.RUnlock()
	return &Context{Handlers: c.Handlers, Time: ts, locals: locals}
}
