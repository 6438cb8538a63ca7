// Package view defines the presentation boundary of the capture core.
// The core pushes snapshots and deltas through the View interface and
// reads scroll/selection state back when deciding how to refresh.
package view

import (
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

// RenderState is what the core needs to know about the rendered event
// list to rebuild it without losing the user's place.
type RenderState struct {
	// SelectedIndex is the log index of the selected row, 0 for none.
	SelectedIndex int
	// ScrollFraction is the bottom edge of the viewport in [0,1].
	ScrollFraction float64
	// VisibleCount is the number of rows currently rendered.
	VisibleCount int
}

// ConnectionEvent notifies the presentation layer of a session
// transition.
type ConnectionEvent struct {
	State  types.ConnectionState
	Notice string
}

// PlotSnapshot is one redraw payload for the chart.
type PlotSnapshot struct {
	Series  plotSeries
	Markers []types.MarkerEvent
}

type plotSeries struct {
	Times   []float64
	Voltage []float64
	Current []float64
}

// NewPlotSnapshot builds a redraw payload from dense series data.
func NewPlotSnapshot(times, voltage, current []float64, markers []types.MarkerEvent) PlotSnapshot {
	return PlotSnapshot{
		Series:  plotSeries{Times: times, Voltage: voltage, Current: current},
		Markers: markers,
	}
}

// SummarySnapshot carries the formatted live readout.
type SummarySnapshot struct {
	Voltage string
	Current string
	Power   string
	CC1     string
	CC2     string
	DPlus   string
	DMinus  string

	LastCapability string
	LastRequest    string
}

// View is implemented by presentation frontends. All methods are called
// from the core's goroutines; implementations synchronize internally.
type View interface {
	// Append adds newly captured events to the rendered list.
	Append(events []*types.ProtocolEvent)
	// Rebuild replaces the rendered list, restoring the given state as
	// closely as possible.
	Rebuild(events []*types.ProtocolEvent, restore RenderState)
	// RenderState reports the current scroll and selection.
	RenderState() RenderState
	// Follow scrolls to the newest row.
	Follow()
	// Notify surfaces a connection transition to the user.
	Notify(ev ConnectionEvent)
	UpdatePlot(snap PlotSnapshot)
	UpdateSummary(snap SummarySnapshot)
}
