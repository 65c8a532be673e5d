// Package syncx provides the small concurrency primitives vigil is built on:
// a mutex-guarded generic value cell and a keyed trailing-edge debouncer.
package syncx

import "sync"

// Cell holds a single value of type T behind a mutex. Every operation runs
// in one critical section, so concurrent Update calls never lose writes.
// Stored values are immutable by convention: callers must not mutate a value
// after handing it to Set or returning it from an Update function.
type Cell[T any] struct {
	mu  sync.Mutex
	val T
}

// NewCell returns a Cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{val: initial}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

// Set replaces the current value.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.val = v
	c.mu.Unlock()
}

// Update applies f to the current value and stores the result, all in one
// critical section. Returns the stored value.
func (c *Cell[T]) Update(f func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = f(c.val)
	return c.val
}

// View runs a read-only projection against the current value under the
// Cell's lock. No write can interleave while f executes; f must not call
// back into the Cell.
func (c *Cell[T]) View(f func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c.val)
}

// Read applies a read-only projection to the value held by c and returns
// the projected result. A free function because Go methods cannot introduce
// a second type parameter.
func Read[T, R any](c *Cell[T], f func(T) R) R {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f(c.val)
}
