// Package core orchestrates a capture session: it owns the session
// state machine, consumes the bounded channels, maintains the event log
// and plot buffers, and exposes the operations the control surfaces
// call into.
package core

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/acquire"
	"github.com/LauH1987/witrn-pd-sniffer/internal/config"
	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
	"github.com/LauH1987/witrn-pd-sniffer/internal/emitter"
	"github.com/LauH1987/witrn-pd-sniffer/internal/eventbus"
	"github.com/LauH1987/witrn-pd-sniffer/internal/eventlog"
	"github.com/LauH1987/witrn-pd-sniffer/internal/exchange"
	"github.com/LauH1987/witrn-pd-sniffer/internal/metric"
	"github.com/LauH1987/witrn-pd-sniffer/internal/plot"
	"github.com/LauH1987/witrn-pd-sniffer/internal/refresh"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
	"github.com/LauH1987/witrn-pd-sniffer/internal/view"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

// Capture is one capture session. All state transitions happen on the
// consumer goroutine or under mu; the rest of the system observes them
// through notifications and Status.
type Capture struct {
	log     zerolog.Logger
	cfg     *config.Config
	metrics *metric.Metrics
	view    view.View
	emit    *emitter.MQTTEmitter

	telemetry *eventbus.Chan[types.TelemetrySample]
	protocol  *eventbus.Chan[wire.Record]

	events  *eventlog.Log
	buffer  *plot.Buffer
	markers *plot.MarkerLog
	sched   *refresh.Scheduler
	decoder decode.Decoder

	mu          sync.Mutex
	state       types.ConnectionState
	awaitingAck bool
	autoStart   bool
	importMode  bool
	sup         *acquire.Supervisor
	// session counts connections; records drained under an older
	// session id are stale and discarded.
	session uint64

	lastCapability *decode.Node
	lastRequest    *decode.Node
	summary        view.SummarySnapshot
}

// New assembles a session from its configuration.
func New(log zerolog.Logger, cfg *config.Config, v view.View, m *metric.Metrics, emit *emitter.MQTTEmitter) *Capture {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "witrn-" + uuid.NewString()[:8]
	}

	c := &Capture{
		log:       log.With().Str("component", "core").Logger(),
		cfg:       cfg,
		metrics:   m,
		view:      v,
		emit:      emit,
		telemetry: eventbus.New[types.TelemetrySample]("telemetry", cfg.Channels.TelemetryCapacity),
		protocol:  eventbus.New[wire.Record]("protocol", cfg.Channels.ProtocolCapacity),
		events:    eventlog.New(),
		buffer:    plot.NewBuffer(cfg.Buffers.PlotCapacity),
		markers:   plot.NewMarkerLog(cfg.Buffers.MarkerCapacity),
		decoder:   decode.NewWITRN(),
		state:     types.StateClosed,
	}

	// a nil *Metrics must stay an untyped nil inside the interface,
	// otherwise the scheduler's nil check passes and observing panics
	var obs refresh.Observer
	if m != nil {
		obs = m
		m.WatchChannel(c.telemetry)
		m.WatchChannel(c.protocol)
	}

	keep := cfg.Buffers.KeepMarkerHistory == nil || *cfg.Buffers.KeepMarkerHistory
	c.sched = refresh.NewScheduler(log, c.events, c.buffer, c.markers, v, obs, refresh.Options{
		WindowSeconds:     cfg.Buffers.WindowSeconds,
		KeepMarkerHistory: keep,
	})
	c.sched.SetHideGoodCRC(cfg.Display.HideGoodCRC)
	c.sched.SetRelativeTime(cfg.Display.RelativeTime)
	return c
}

// sessionChannels builds the bounded channels for one connection. Each
// session gets its own pair so nothing queued by a previous worker can
// reach the next one.
func (c *Capture) sessionChannels() (*eventbus.Chan[types.TelemetrySample], *eventbus.Chan[wire.Record]) {
	tel := eventbus.New[types.TelemetrySample]("telemetry", c.cfg.Channels.TelemetryCapacity)
	pd := eventbus.New[wire.Record]("protocol", c.cfg.Channels.ProtocolCapacity)
	return tel, pd
}

// Scheduler exposes the refresh scheduler for display toggles.
func (c *Capture) Scheduler() *refresh.Scheduler { return c.sched }

// State reports the current session state.
func (c *Capture) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect launches the acquisition worker. The session moves to opening
// and stays there until the first record arrives; with autoStart the
// acknowledged session begins collecting immediately, otherwise it
// parks in paused.
func (c *Capture) Connect(autoStart bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.StateClosed {
		return fmt.Errorf("already connected (state %s)", c.state)
	}

	tel, pd := c.sessionChannels()
	sup := acquire.NewSupervisor(c.log, c.cfg.Worker.Binary, c.cfg.Device.Path, tel, pd)
	if err := sup.Start(); err != nil {
		return err
	}

	c.sup = sup
	c.beginSessionLocked(tel, pd, autoStart)
	return nil
}

// beginSessionLocked arms a fresh session on the given channels. The
// event log, plot series, markers and relative-time baseline all start
// over; bumping the session id retires any record still in flight from
// the previous worker. Caller holds mu.
func (c *Capture) beginSessionLocked(tel *eventbus.Chan[types.TelemetrySample], pd *eventbus.Chan[wire.Record], autoStart bool) {
	c.telemetry = tel
	c.protocol = pd
	c.session++
	if c.metrics != nil {
		c.metrics.WatchChannel(tel)
		c.metrics.WatchChannel(pd)
	}

	c.events.Clear()
	c.buffer.Reset()
	c.markers.Reset()
	c.importMode = false
	c.lastCapability = nil
	c.lastRequest = nil
	c.summary = view.SummarySnapshot{}

	c.autoStart = autoStart
	c.awaitingAck = true
	c.sched.ForceRebuild()
	c.setStateLocked(types.StateOpening, "connecting to device")
}

// Disconnect stops the worker and closes the session.
func (c *Capture) Disconnect() error {
	c.mu.Lock()
	sup := c.sup
	c.mu.Unlock()

	if sup != nil {
		sup.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == types.StateClosed {
		return nil
	}
	c.teardownLocked("disconnected")
	return nil
}

// Start resumes protocol capture on a paused session.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case types.StatePaused:
		if err := c.sup.Resume(); err != nil {
			return err
		}
		c.setStateLocked(types.StateCollecting, "capture started")
		return nil
	case types.StateCollecting:
		return nil
	default:
		return fmt.Errorf("cannot start in state %s", c.state)
	}
}

// Pause suppresses protocol capture. Telemetry keeps flowing.
func (c *Capture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case types.StateCollecting:
		if err := c.sup.Pause(); err != nil {
			return err
		}
		c.setStateLocked(types.StatePaused, "capture paused")
		return nil
	case types.StatePaused:
		return nil
	default:
		return fmt.Errorf("cannot pause in state %s", c.state)
	}
}

// Clear wipes the session: event log, plot series and markers. The plot
// timeline restarts at zero on the next sample.
func (c *Capture) Clear() error {
	c.mu.Lock()
	c.importMode = false
	c.lastCapability = nil
	c.lastRequest = nil
	c.summary = view.SummarySnapshot{}
	c.mu.Unlock()

	c.events.Clear()
	c.buffer.Reset()
	c.markers.Reset()
	c.sched.ForceRebuild()
	c.log.Info().Msg("session cleared")
	return nil
}

// ExportCSV writes the full event log to path and returns the number of
// events written.
func (c *Capture) ExportCSV(path string) (int, error) {
	snap := c.events.Snapshot()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	if err := exchange.Export(f, snap); err != nil {
		return 0, err
	}
	c.log.Info().Str("path", path).Int("events", len(snap)).Msg("session exported")
	return len(snap), nil
}

// ImportCSV replaces the session log with a previously exported one.
// Only allowed while no device is connected.
func (c *Capture) ImportCSV(path string) (imported, failed int, err error) {
	c.mu.Lock()
	if c.state != types.StateClosed {
		c.mu.Unlock()
		return 0, 0, fmt.Errorf("cannot import while connected (state %s)", c.state)
	}
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open import: %w", err)
	}
	defer f.Close()

	events, stats, err := exchange.Import(f, c.decoder)
	if err != nil {
		return stats.Imported, stats.Failed, err
	}

	c.events.Clear()
	for _, ev := range events {
		c.events.Append(ev)
	}

	c.mu.Lock()
	c.importMode = true
	if n := len(events); n > 0 {
		c.lastCapability = events[n-1].LastCapability
		c.lastRequest = events[n-1].LastRequest
	}
	c.mu.Unlock()

	c.sched.ForceRebuild()
	c.log.Info().Str("path", path).Int("imported", stats.Imported).Int("failed", stats.Failed).Msg("session imported")
	return stats.Imported, stats.Failed, nil
}

// Status summarizes the session for the control plane.
func (c *Capture) Status() map[string]any {
	c.mu.Lock()
	state := c.state
	importMode := c.importMode
	tel, pd := c.telemetry, c.protocol
	c.mu.Unlock()

	pdStats := pd.Stats()
	telStats := tel.Stats()

	return map[string]any{
		"instance_id":   c.cfg.InstanceID,
		"state":         state.String(),
		"import_mode":   importMode,
		"events":        c.events.Len(),
		"plot_samples":  c.buffer.Len(),
		"markers":       c.markers.Len(),
		"hide_goodcrc":  c.sched.HideGoodCRC(),
		"relative_time": c.sched.RelativeTime(),
		"protocol_channel": map[string]any{
			"published": pdStats.Published,
			"dropped":   pdStats.Dropped,
			"queued":    pd.Len(),
		},
		"telemetry_channel": map[string]any{
			"published": telStats.Published,
			"dropped":   telStats.Dropped,
			"queued":    tel.Len(),
		},
	}
}

// setStateLocked transitions the session and fans the notice out to the
// view, the broker and the metrics gauge. Caller holds mu.
func (c *Capture) setStateLocked(state types.ConnectionState, notice string) {
	c.state = state
	if c.metrics != nil {
		c.metrics.ConnState.Set(float64(state))
	}
	c.log.Info().Stringer("state", state).Str("notice", notice).Msg("session state")

	ev := view.ConnectionEvent{State: state, Notice: notice}
	go func() {
		c.view.Notify(ev)
		if c.emit != nil {
			if err := c.emit.PublishNotice(state.String(), notice); err != nil {
				c.log.Debug().Err(err).Msg("notice not published")
			}
		}
	}()
}

// teardownLocked closes the session after a disconnect, a connection
// failure or an explicit stop. Caller holds mu.
func (c *Capture) teardownLocked(notice string) {
	c.sup = nil
	c.awaitingAck = false
	c.lastCapability = nil
	c.lastRequest = nil
	c.summary = view.SummarySnapshot{}
	c.setStateLocked(types.StateClosed, notice)
}
