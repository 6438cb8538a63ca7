package view

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

// LogView is the headless frontend used by the daemon and in tests: it
// tracks render state like a real list widget would and reports
// transitions through the logger.
type LogView struct {
	mu    sync.Mutex
	log   zerolog.Logger
	state RenderState

	rebuilds int
	appends  int
	lastPlot PlotSnapshot
	lastSumm SummarySnapshot
	notices  []ConnectionEvent
}

func NewLogView(log zerolog.Logger) *LogView {
	return &LogView{log: log}
}

func (v *LogView) Append(events []*types.ProtocolEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.appends++
	v.state.VisibleCount += len(events)
	for _, ev := range events {
		v.log.Debug().
			Int("index", ev.Index).
			Str("sop", ev.SOP).
			Str("msg_type", ev.MsgType).
			Msg("event")
	}
}

func (v *LogView) Rebuild(events []*types.ProtocolEvent, restore RenderState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rebuilds++
	v.state = restore
	v.state.VisibleCount = len(events)
	if restore.SelectedIndex > 0 {
		found := false
		for _, ev := range events {
			if ev.Index == restore.SelectedIndex {
				found = true
				break
			}
		}
		if !found {
			v.state.SelectedIndex = 0
		}
	}
	v.log.Debug().Int("count", len(events)).Msg("list rebuilt")
}

func (v *LogView) RenderState() RenderState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetRenderState simulates user scrolling and selection. Test hook.
func (v *LogView) SetRenderState(s RenderState) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

func (v *LogView) Follow() {
	v.mu.Lock()
	v.state.ScrollFraction = 1.0
	v.mu.Unlock()
}

func (v *LogView) Notify(ev ConnectionEvent) {
	v.mu.Lock()
	v.notices = append(v.notices, ev)
	v.mu.Unlock()
	v.log.Info().
		Stringer("state", ev.State).
		Str("notice", ev.Notice).
		Msg("connection")
}

func (v *LogView) UpdatePlot(snap PlotSnapshot) {
	v.mu.Lock()
	v.lastPlot = snap
	v.mu.Unlock()
}

func (v *LogView) UpdateSummary(snap SummarySnapshot) {
	v.mu.Lock()
	v.lastSumm = snap
	v.mu.Unlock()
}

// Counters exposes refresh accounting for tests.
func (v *LogView) Counters() (rebuilds, appends int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rebuilds, v.appends
}

// Notices returns the connection events seen so far.
func (v *LogView) Notices() []ConnectionEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ConnectionEvent, len(v.notices))
	copy(out, v.notices)
	return out
}

// LastSummary returns the most recent summary snapshot.
func (v *LogView) LastSummary() SummarySnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSumm
}

// LastPlot returns the most recent plot snapshot.
func (v *LogView) LastPlot() PlotSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastPlot
}
