package plot

import (
	"sync"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

// DefaultMarkerCapacity bounds the marker timeline, roughly an hour of
// one-per-second protocol milestones.
const DefaultMarkerCapacity = 3600

// MarkerLog is a bounded ring of capability/request markers on the
// plot's relative timeline.
type MarkerLog struct {
	mu      sync.RWMutex
	markers []types.MarkerEvent
	head    int
	size    int
}

func NewMarkerLog(capacity int) *MarkerLog {
	if capacity <= 0 {
		capacity = DefaultMarkerCapacity
	}
	return &MarkerLog{markers: make([]types.MarkerEvent, capacity)}
}

// Append records a marker. When full, the oldest marker is overwritten.
func (m *MarkerLog) Append(relTime float64, kind types.MarkerKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := (m.head + m.size) % len(m.markers)
	m.markers[idx] = types.MarkerEvent{RelTime: relTime, Kind: kind}
	if m.size < len(m.markers) {
		m.size++
	} else {
		m.head = (m.head + 1) % len(m.markers)
	}
}

// Len returns the number of stored markers.
func (m *MarkerLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Snapshot returns the markers in append order. With keepHistory unset,
// only markers inside the trailing window (relative seconds, measured
// from the newest plotted time) are returned.
func (m *MarkerLog) Snapshot(keepHistory bool, newest, windowSeconds float64) []types.MarkerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.MarkerEvent, 0, m.size)
	for i := 0; i < m.size; i++ {
		mk := m.markers[(m.head+i)%len(m.markers)]
		if !keepHistory && mk.RelTime < newest-windowSeconds {
			continue
		}
		out = append(out, mk)
	}
	return out
}

// Reset drops all markers.
func (m *MarkerLog) Reset() {
	m.mu.Lock()
	m.head = 0
	m.size = 0
	m.mu.Unlock()
}
