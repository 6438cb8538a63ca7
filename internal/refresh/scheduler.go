// Package refresh drives the event list and plot redraw cadence. The
// capture core appends records at device rate; the scheduler batches
// presentation work so a busy capture cannot saturate the frontend.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/eventlog"
	"github.com/LauH1987/witrn-pd-sniffer/internal/plot"
	"github.com/LauH1987/witrn-pd-sniffer/internal/view"
)

// PlotInterval is the fixed chart redraw cadence. The chart tolerates
// staleness better than the list, so it is not load-scaled.
const PlotInterval = 500 * time.Millisecond

// followThreshold: a viewport scrolled into the last tenth keeps
// following new rows.
const followThreshold = 0.9

// Observer receives refresh accounting. Implemented by the metrics
// registry; nil disables it.
type Observer interface {
	ObserveRefresh(mode string)
}

// Options tune the scheduler.
type Options struct {
	// WindowSeconds is the marker visibility window when history is off.
	WindowSeconds float64
	// KeepMarkerHistory keeps markers older than the window on the plot.
	KeepMarkerHistory bool
}

// Scheduler owns the refresh decisions: when to touch the list, whether
// to rebuild it or append to it, and the fixed plot cadence.
type Scheduler struct {
	log      zerolog.Logger
	events   *eventlog.Log
	buffer   *plot.Buffer
	markers  *plot.MarkerLog
	view     view.View
	observer Observer
	opts     Options

	// renderMu serializes refreshNow: the immediate kick path, the
	// deferred timer and the check tick can otherwise overlap and
	// render the same rows twice.
	renderMu sync.Mutex

	mu           sync.Mutex
	lastRendered int
	lastRefresh  time.Time
	pending      bool
	timer        *time.Timer
	hideGoodCRC  bool
	relativeTime bool
	modeChanged  bool
	forceFull    bool
}

func NewScheduler(log zerolog.Logger, events *eventlog.Log, buffer *plot.Buffer, markers *plot.MarkerLog, v view.View, obs Observer, opts Options) *Scheduler {
	if opts.WindowSeconds <= 0 {
		opts.WindowSeconds = 60
	}
	return &Scheduler{
		log:      log,
		events:   events,
		buffer:   buffer,
		markers:  markers,
		view:     v,
		observer: obs,
		opts:     opts,
	}
}

// refreshDelay scales the list refresh interval with the log size. Small
// sessions refresh near-live; large ones trade latency for throughput.
func refreshDelay(count int) time.Duration {
	switch {
	case count < 1000:
		return 100 * time.Millisecond
	case count < 5000:
		return 300 * time.Millisecond
	case count < 10000:
		return 500 * time.Millisecond
	case count < 20000:
		return time.Second
	default:
		return 2 * time.Second
	}
}

// checkInterval scales how often the scheduler looks for new events.
func checkInterval(count int) time.Duration {
	switch {
	case count < 5000:
		return 100 * time.Millisecond
	case count < 20000:
		return 200 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// SetHideGoodCRC toggles the acknowledgment filter. The next refresh is
// a full rebuild.
func (s *Scheduler) SetHideGoodCRC(hide bool) {
	s.mu.Lock()
	if s.hideGoodCRC != hide {
		s.hideGoodCRC = hide
		s.modeChanged = true
	}
	s.mu.Unlock()
	s.Kick()
}

// SetRelativeTime toggles relative timestamps. The next refresh is a
// full rebuild.
func (s *Scheduler) SetRelativeTime(rel bool) {
	s.mu.Lock()
	if s.relativeTime != rel {
		s.relativeTime = rel
		s.modeChanged = true
	}
	s.mu.Unlock()
	s.Kick()
}

// HideGoodCRC reports the current filter setting.
func (s *Scheduler) HideGoodCRC() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hideGoodCRC
}

// RelativeTime reports the current timestamp mode.
func (s *Scheduler) RelativeTime() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relativeTime
}

// ForceRebuild makes the next refresh a full rebuild regardless of
// counts. Used after imports and clears.
func (s *Scheduler) ForceRebuild() {
	s.mu.Lock()
	s.forceFull = true
	s.mu.Unlock()
	s.Kick()
}

// Kick requests a refresh. If the minimum interval for the current log
// size has already elapsed the refresh runs immediately; otherwise a
// single deferred refresh covers the remaining wait, and further kicks
// coalesce into it.
func (s *Scheduler) Kick() {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}
	remaining := refreshDelay(s.events.Len()) - time.Since(s.lastRefresh)
	if remaining <= 0 {
		s.mu.Unlock()
		s.refreshNow()
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(remaining, func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
		s.refreshNow()
	})
	s.mu.Unlock()
}

// Run polls for log growth and keeps the plot redrawn until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	plotTick := time.NewTicker(PlotInterval)
	defer plotTick.Stop()

	check := time.NewTimer(checkInterval(0))
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.timer != nil {
				s.timer.Stop()
				s.pending = false
			}
			s.mu.Unlock()
			return

		case <-plotTick.C:
			s.RedrawPlot()

		case <-check.C:
			count := s.events.Len()
			s.mu.Lock()
			changed := count != s.lastRendered || s.modeChanged || s.forceFull
			s.mu.Unlock()
			if changed {
				s.Kick()
			}
			check.Reset(checkInterval(count))
		}
	}
}

// refreshNow performs one list refresh. A shrunk or emptied log, a mode
// toggle, or an explicit force means rebuild; otherwise new rows are
// appended. The GoodCRC filter also forces rebuilds, since filtered
// appends cannot be reconciled against filtered rows already rendered.
func (s *Scheduler) refreshNow() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	hide := s.hideGoodCRC
	full := s.forceFull || s.modeChanged || hide
	last := s.lastRendered
	s.forceFull = false
	s.modeChanged = false
	s.mu.Unlock()

	state := s.view.RenderState()

	if !full {
		full = s.events.Len() < last || state.VisibleCount == 0
	}

	rendered := last
	if full {
		snap := s.events.Snapshot()
		rendered = len(snap)
		s.view.Rebuild(eventlog.Visible(snap, hide), state)
		if s.observer != nil {
			s.observer.ObserveRefresh("full")
		}
		s.log.Debug().Int("count", rendered).Msg("list rebuilt")
	} else {
		fresh := s.events.Since(last)
		if len(fresh) > 0 {
			s.view.Append(fresh)
			rendered = last + len(fresh)
			if s.observer != nil {
				s.observer.ObserveRefresh("incremental")
			}
			// only incremental growth follows; a rebuild restores the
			// viewport the user had
			if state.ScrollFraction > followThreshold {
				s.view.Follow()
			}
		}
	}

	s.mu.Lock()
	s.lastRendered = rendered
	s.lastRefresh = time.Now()
	s.mu.Unlock()
}

// RedrawPlot pushes the current series and markers to the view.
func (s *Scheduler) RedrawPlot() {
	series := s.buffer.Snapshot()
	newest := 0.0
	if n := len(series.Times); n > 0 {
		newest = series.Times[n-1]
	}
	markers := s.markers.Snapshot(s.opts.KeepMarkerHistory, newest, s.opts.WindowSeconds)
	s.view.UpdatePlot(view.NewPlotSnapshot(series.Times, series.Voltage, series.Current, markers))
}
