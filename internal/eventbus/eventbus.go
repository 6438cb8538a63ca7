// Package eventbus provides the bounded single-producer single-consumer
// channels that decouple the acquisition worker from the capture core.
//
// Publishing never blocks: when a channel is full the new item is dropped
// and counted. The producer must never stall on a slow consumer, and the
// consumer must never see stale bursts grow without bound.
package eventbus

import "sync/atomic"

// Stats is a point-in-time snapshot of channel counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
}

// Chan is a bounded non-blocking channel for one record type.
type Chan[T any] struct {
	name string
	ch   chan T

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a channel with a fixed capacity. Capacity must be positive.
func New[T any](name string, capacity int) *Chan[T] {
	if capacity <= 0 {
		panic("eventbus: capacity must be positive")
	}
	return &Chan[T]{name: name, ch: make(chan T, capacity)}
}

// Name returns the channel's label, used in log fields and metrics.
func (c *Chan[T]) Name() string { return c.name }

// TryPublish enqueues v if there is room and reports whether it was
// accepted. On a full channel the item is dropped, not the oldest one:
// the backlog already queued keeps its order.
func (c *Chan[T]) TryPublish(v T) bool {
	select {
	case c.ch <- v:
		c.published.Add(1)
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// TryReceive dequeues one item without blocking.
func (c *Chan[T]) TryReceive() (T, bool) {
	select {
	case v := <-c.ch:
		c.delivered.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Drain dequeues up to max items, calling fn for each, and returns the
// number delivered. It stops early when the channel empties or fn
// returns false.
func (c *Chan[T]) Drain(max int, fn func(T) bool) int {
	n := 0
	for n < max {
		v, ok := c.TryReceive()
		if !ok {
			return n
		}
		n++
		if !fn(v) {
			return n
		}
	}
	return n
}

// Len returns the number of queued items.
func (c *Chan[T]) Len() int { return len(c.ch) }

// Cap returns the channel capacity.
func (c *Chan[T]) Cap() int { return cap(c.ch) }

// Stats snapshots the counters. Published + Dropped equals the number of
// TryPublish calls; Published - Delivered equals Len when the producer
// is quiescent.
func (c *Chan[T]) Stats() Stats {
	return Stats{
		Published: c.published.Load(),
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
	}
}
