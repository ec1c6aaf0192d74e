// Package observable provides Cell, a single mutable value that publishes a
// de-duplicated stream of its own changes to independently-subscribed
// handlers.
//
// A Cell is the building block the state store is built from: one per piece
// of top-level state (the password hash, the restream list), each with its
// own subscribers (the persister, the reconciler).
package observable

import (
	"context"
	"log/slog"
	"sync"
)

// Cell holds a value of type T and a monotonically increasing version.
// Subscribers are notified whenever Mutate leaves the value unequal to what
// it was before, per the caller-supplied Equal function; consecutive equal
// values never trigger a notification.
type Cell[T any] struct {
	equal func(a, b T) bool
	clone func(T) T

	mu      sync.RWMutex
	value   T
	version uint64
	changed chan struct{}

	log *slog.Logger
}

// NewCell creates a Cell seeded with initial. equal decides whether two
// values are the same for deduplication purposes; clone returns an
// independent copy of a value, so that snapshots handed to readers and
// subscribers can never alias the Cell's own internal state.
func NewCell[T any](initial T, equal func(a, b T) bool, clone func(T) T, log *slog.Logger) *Cell[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Cell[T]{
		equal:   equal,
		clone:   clone,
		value:   clone(initial),
		changed: make(chan struct{}),
		log:     log,
	}
}

// Get returns a clone of the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clone(c.value)
}

// Mutate runs f against the live value under an exclusive lock. f may read
// and modify the value in place. If the value compares unequal to what it
// was before f ran, a change is published to every subscriber.
func (c *Cell[T]) Mutate(f func(current *T)) {
	MutateReturning(c, func(current *T) struct{} {
		f(current)
		return struct{}{}
	})
}

// MutateReturning is Mutate for mutators that also need to report a result
// computed while holding the lock, such as the tri-valued bool returns of
// the state store's enable/disable/remove operations.
func MutateReturning[T, R any](c *Cell[T], f func(current *T) R) R {
	c.mu.Lock()
	before := c.clone(c.value)
	result := f(&c.value)
	changed := !c.equal(before, c.value)
	var old chan struct{}
	if changed {
		c.version++
		old = c.changed
		c.changed = make(chan struct{})
	}
	c.mu.Unlock()
	if changed {
		close(old)
	}
	return result
}

// Subscribe registers handler to run once for the value current at the time
// of the call and again whenever the value has changed since the handler
// last ran, in mutation order. Values are latest-wins: if several changes
// land while the handler is running, only the newest is delivered next.
// Invocations for a single subscription never overlap. If handler panics,
// the panic is caught, logged with name, and this subscription alone is
// dropped — other subscribers are unaffected.
//
// Subscribe returns immediately; the handler runs on a goroutine owned by
// the subscription. Cancel ctx to stop the subscription.
func (c *Cell[T]) Subscribe(ctx context.Context, name string, handler func(context.Context, T)) {
	c.mu.RLock()
	value, version := c.clone(c.value), c.version
	c.mu.RUnlock()
	go c.run(ctx, name, handler, value, version)
}

func (c *Cell[T]) run(ctx context.Context, name string, handler func(context.Context, T), value T, version uint64) {
	for {
		if !c.invoke(ctx, name, handler, value) {
			return
		}
		var ok bool
		value, version, ok = c.waitChanged(ctx, version, true)
		if !ok {
			return
		}
	}
}

func (c *Cell[T]) waitChanged(ctx context.Context, lastVersion uint64, haveLast bool) (T, uint64, bool) {
	for {
		c.mu.RLock()
		if !haveLast || c.version != lastVersion {
			v := c.clone(c.value)
			ver := c.version
			c.mu.RUnlock()
			return v, ver, true
		}
		ch := c.changed
		c.mu.RUnlock()

		select {
		case <-ch:
			haveLast = false
		case <-ctx.Done():
			var zero T
			return zero, 0, false
		}
	}
}

// invoke runs handler once, converting a panic into a logged error.
// Returns false if handler panicked, in which case the subscription stops.
func (c *Cell[T]) invoke(ctx context.Context, name string, handler func(context.Context, T), value T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("subscriber panicked, dropping subscription", "name", name, "panic", r)
			ok = false
		}
	}()
	handler(ctx, value)
	return true
}
