package core

import (
	"context"
	"fmt"
	"time"

	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
	"github.com/LauH1987/witrn-pd-sniffer/internal/view"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

// Run drives the session until ctx is cancelled: the consumer loop, the
// refresh scheduler, and final worker teardown.
func (c *Capture) Run(ctx context.Context) error {
	go c.sched.Run(ctx)
	c.consume(ctx)

	// session ends with the context: make sure the worker is reaped
	c.mu.Lock()
	sup := c.sup
	c.mu.Unlock()
	if sup != nil {
		sup.Stop()
	}
	return ctx.Err()
}

// consume drains both channels on a fixed tick. Protocol records are
// drained first so sentinels and acks are observed before the telemetry
// that followed them.
func (c *Capture) consume(ctx context.Context) {
	tick := time.NewTicker(time.Duration(c.cfg.Consumer.TickMillis) * time.Millisecond)
	defer tick.Stop()

	burst := c.cfg.Consumer.Burst
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			// a reconnect swaps the channels; pin this tick to one session
			c.mu.Lock()
			gen, pd, tel := c.session, c.protocol, c.telemetry
			c.mu.Unlock()

			pd.Drain(burst, func(rec wire.Record) bool { return c.handleProtocol(gen, rec) })
			tel.Drain(burst*2, func(s types.TelemetrySample) bool { return c.handleTelemetry(gen, s) })
		}
	}
}

// handleProtocol processes one protocol record. Returning false stops
// the current burst, which recovery does so no stale records are
// processed against the torn-down session. Records carried over from a
// session other than gen are discarded.
func (c *Capture) handleProtocol(gen uint64, rec wire.Record) bool {
	if rec.Err() {
		c.recover(gen, rec)
		return false
	}
	if rec.Protocol == nil {
		return true
	}
	ev := rec.Protocol

	c.mu.Lock()
	if gen != c.session {
		c.mu.Unlock()
		return false
	}
	if c.awaitingAck {
		c.ackLocked()
	}
	collecting := c.state == types.StateCollecting
	if collecting {
		c.lastCapability = ev.LastCapability
		c.lastRequest = ev.LastRequest
	}
	c.mu.Unlock()

	if !collecting {
		return true
	}

	c.events.Append(ev)
	if c.metrics != nil {
		c.metrics.EventsTotal.Inc()
	}

	if ev.IsCapability || ev.IsRequest {
		if rel, ok := c.buffer.RelTime(ev.CapturedAt); ok {
			kind := types.MarkerRequest
			if ev.IsCapability {
				kind = types.MarkerCapability
			}
			c.markers.Append(rel, kind)
		}
	}

	c.sched.Kick()
	return true
}

// handleTelemetry processes one sample. Telemetry is never suppressed:
// it flows in every connected state, and its arrival also acknowledges
// a pending connection.
func (c *Capture) handleTelemetry(gen uint64, s types.TelemetrySample) bool {
	c.mu.Lock()
	if gen != c.session {
		c.mu.Unlock()
		return false
	}
	if c.awaitingAck {
		c.ackLocked()
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SamplesTotal.Inc()
	}

	if s.UpdatePlot {
		c.buffer.Append(s.CapturedAt, s.Voltage, s.Current)
	}
	if s.UpdateSummary {
		c.publishSummary(s)
	}
	return true
}

// ackLocked completes the connection handshake exactly once: the first
// successful record from either channel moves the session out of
// opening. Caller holds mu.
func (c *Capture) ackLocked() {
	c.awaitingAck = false
	if c.autoStart {
		c.setStateLocked(types.StateCollecting, "device connected, collecting")
		return
	}
	if c.sup != nil {
		if err := c.sup.Pause(); err != nil {
			c.log.Warn().Err(err).Msg("pause after connect failed")
		}
	}
	c.setStateLocked(types.StatePaused, "device connected, paused")
}

// recover tears the session down after an error sentinel. The two
// sentinels produce distinct notices; neither leaves the session in an
// opening state. A sentinel from a retired session is ignored so a dying
// worker cannot tear down its successor.
func (c *Capture) recover(gen uint64, rec wire.Record) {
	notice := "device disconnected"
	if rec.Kind == wire.KindConnectFailed {
		notice = fmt.Sprintf("connection failed: %s", rec.Diag)
	}

	c.mu.Lock()
	if gen != c.session {
		c.mu.Unlock()
		return
	}
	sup := c.sup
	c.teardownLocked(notice)
	c.mu.Unlock()

	// the worker already exited or is exiting; reap it off the consumer
	if sup != nil {
		go sup.Stop()
	}
}

func (c *Capture) publishSummary(s types.TelemetrySample) {
	c.mu.Lock()
	snap := view.SummarySnapshot{
		Voltage: fmt.Sprintf("%.3f V", s.Voltage),
		Current: fmt.Sprintf("%.3f A", s.Current),
		Power:   fmt.Sprintf("%.3f W", s.Power),
		CC1:     fmt.Sprintf("%.2f V", s.CC1),
		CC2:     fmt.Sprintf("%.2f V", s.CC2),
		DPlus:   fmt.Sprintf("%.2f V", s.DPlus),
		DMinus:  fmt.Sprintf("%.2f V", s.DMinus),
	}
	if c.lastCapability != nil {
		snap.LastCapability = decode.Render(c.lastCapability)
	}
	if c.lastRequest != nil {
		snap.LastRequest = decode.Render(c.lastRequest)
	}
	c.summary = snap
	emit := c.emit
	c.mu.Unlock()

	c.view.UpdateSummary(snap)
	if emit != nil {
		// a slow broker must not stall the consumer tick
		go func() {
			if err := emit.PublishSummary(snap); err != nil {
				c.log.Debug().Err(err).Msg("summary not published")
			}
		}()
	}
}

// Summary returns the latest formatted readout.
func (c *Capture) Summary() view.SummarySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}
