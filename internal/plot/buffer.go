// Package plot maintains the rolling telemetry series and timeline
// markers behind the live voltage/current chart.
package plot

import (
	"sync"
	"time"
)

// DefaultCapacity bounds the rolling series. At full device rate this
// covers several minutes of samples.
const DefaultCapacity = 60000

// Buffer is a fixed-capacity ring of (time, voltage, current) triples.
// Times are seconds relative to a baseline armed lazily on the first
// append after creation or reset, so a paused session does not stretch
// the axis.
type Buffer struct {
	mu sync.RWMutex

	times   []float64
	voltage []float64
	current []float64
	head    int
	size    int

	baseline time.Time
	armed    bool
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		times:   make([]float64, capacity),
		voltage: make([]float64, capacity),
		current: make([]float64, capacity),
	}
}

// Append adds one sample. The first append after creation or Reset arms
// the relative-time baseline.
func (b *Buffer) Append(at time.Time, voltage, current float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.armed {
		b.baseline = at
		b.armed = true
	}

	idx := (b.head + b.size) % len(b.times)
	b.times[idx] = at.Sub(b.baseline).Seconds()
	b.voltage[idx] = voltage
	b.current[idx] = current

	if b.size < len(b.times) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.times)
	}
}

// RelTime maps a wall-clock time onto the buffer's relative axis. It
// reports false while the baseline is unarmed.
func (b *Buffer) RelTime(at time.Time) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.armed {
		return 0, false
	}
	return at.Sub(b.baseline).Seconds(), true
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Reset drops all samples and disarms the baseline. The next append
// starts a fresh timeline at zero.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.head = 0
	b.size = 0
	b.armed = false
	b.mu.Unlock()
}

// Series is a dense copy of the buffer contents in append order.
type Series struct {
	Times   []float64
	Voltage []float64
	Current []float64
}

// Snapshot copies the series out of the ring.
func (b *Buffer) Snapshot() Series {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Series{
		Times:   make([]float64, b.size),
		Voltage: make([]float64, b.size),
		Current: make([]float64, b.size),
	}
	for i := 0; i < b.size; i++ {
		idx := (b.head + i) % len(b.times)
		s.Times[i] = b.times[idx]
		s.Voltage[i] = b.voltage[idx]
		s.Current[i] = b.current[idx]
	}
	return s
}
