// Package telemetry counts filtered requests and produces periodic memory
// diagnostics.
package telemetry

import "sync/atomic"

// DefaultEvery is the snapshot interval used when NewCounter is given 0.
const DefaultEvery = 100

// Counter is a lock-free request counter. Every time the count reaches a
// multiple of the interval the snapshot callback runs once, on the goroutine
// whose increment produced that value.
type Counter struct {
	n          atomic.Uint64
	every      uint64
	onSnapshot func(count uint64)
}

// NewCounter returns a Counter firing onSnapshot every `every` increments.
// A nil callback disables snapshots. Wrap slow callbacks with Async.
func NewCounter(every uint64, onSnapshot func(count uint64)) *Counter {
	if every == 0 {
		every = DefaultEvery
	}
	return &Counter{every: every, onSnapshot: onSnapshot}
}

// Increment adds one and returns the new count.
func (c *Counter) Increment() uint64 {
	v := c.n.Add(1)
	if c.onSnapshot != nil && v%c.every == 0 {
		c.onSnapshot(v)
	}
	return v
}

// Load returns the current count. Concurrent increments may not be visible yet.
func (c *Counter) Load() uint64 { return c.n.Load() }

// Every returns the snapshot interval.
func (c *Counter) Every() uint64 { return c.every }

// Async returns a callback that runs fn on a new goroutine and returns
// immediately, keeping snapshots off the request path.
func Async(fn func(count uint64)) func(count uint64) {
	if fn == nil {
		return nil
	}
	return func(count uint64) { go fn(count) }
}
