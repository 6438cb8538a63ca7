// Package eventlog is the append-only store of captured protocol events.
package eventlog

import (
	"strings"
	"sync"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

// Log assigns each appended event a 1-based index and keeps the full
// session history. Appends come from the consumer loop only; snapshots
// are taken by the refresh scheduler and exporters.
type Log struct {
	mu     sync.RWMutex
	events []*types.ProtocolEvent
}

func New() *Log {
	return &Log{}
}

// Append stores ev, assigning its index. Indices are strictly increasing
// with no gaps for the lifetime of the log.
func (l *Log) Append(ev *types.ProtocolEvent) {
	l.mu.Lock()
	ev.Index = len(l.events) + 1
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Len returns the number of stored events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Get returns the event with the given 1-based index.
func (l *Log) Get(index int) (*types.ProtocolEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 1 || index > len(l.events) {
		return nil, false
	}
	return l.events[index-1], true
}

// Snapshot returns the events in append order. The returned slice is a
// copy; the events themselves are shared and treated as immutable after
// append.
func (l *Log) Snapshot() []*types.ProtocolEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.ProtocolEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Since returns the events appended after the given index.
func (l *Log) Since(index int) []*types.ProtocolEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 {
		index = 0
	}
	if index >= len(l.events) {
		return nil
	}
	out := make([]*types.ProtocolEvent, len(l.events)-index)
	copy(out, l.events[index:])
	return out
}

// Clear drops all events. The next append gets index 1 again.
func (l *Log) Clear() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}

// Visible applies the GoodCRC display filter to events. With hide set,
// acknowledgment-only traffic is removed from the view while the log
// itself keeps everything.
func Visible(events []*types.ProtocolEvent, hideGoodCRC bool) []*types.ProtocolEvent {
	if !hideGoodCRC {
		return events
	}
	out := make([]*types.ProtocolEvent, 0, len(events))
	for _, ev := range events {
		if strings.EqualFold(ev.MsgType, "GoodCRC") {
			continue
		}
		out = append(out, ev)
	}
	return out
}
