// Package acquire implements the device-facing half of the pipeline:
// the read/decode/publish loop that runs inside the worker process, and
// the supervisor that owns that process from the capture side.
package acquire

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
	"github.com/LauH1987/witrn-pd-sniffer/internal/device"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

// SummaryInterval rate-limits summary refreshes at the producer. Every
// sample still reaches the plot; only the formatted readout is
// throttled.
const SummaryInterval = 100 * time.Millisecond

// retryDelay spaces retries after a transient empty read.
const retryDelay = 10 * time.Millisecond

// Run executes the acquisition loop until the device fails, ctl stops
// it, or ctx is cancelled. Error sentinels always go out on the
// protocol stream, whatever channel the failure surfaced on.
func Run(ctx context.Context, log zerolog.Logger, dev device.Adapter, dec decode.Decoder, pub Publisher, ctl *Control) error {
	if err := dev.Open(); err != nil {
		log.Error().Err(err).Msg("device open failed")
		pub.PublishProtocol(wire.Record{
			Kind: wire.KindConnectFailed,
			Diag: err.Error(),
		})
		return err
	}
	defer dev.Close()
	log.Info().Msg("device opened")

	var lastSummary time.Time
	var lastCapability, lastRequest *decode.Node

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if ctl.Stopped() {
			return nil
		}

		rec, err := dev.ReadNext()
		if err != nil {
			if errors.Is(err, device.ErrNoData) {
				time.Sleep(retryDelay)
				continue
			}
			log.Warn().Err(err).Msg("device read failed, treating as disconnect")
			pub.PublishProtocol(wire.Record{Kind: wire.KindDisconnected})
			return err
		}

		msg, err := dec.Decode(rec.Data)
		if err != nil {
			log.Warn().Err(err).Msg("undecodable report dropped")
			continue
		}

		switch msg.Class {
		case decode.ClassTelemetry:
			sample := buildSample(msg, rec.CapturedAt)
			if since := rec.CapturedAt.Sub(lastSummary); since >= SummaryInterval || lastSummary.IsZero() {
				sample.UpdateSummary = true
				lastSummary = rec.CapturedAt
			}
			pub.PublishTelemetry(sample)

		case decode.ClassProtocol:
			if ctl.Paused() {
				continue
			}
			ev := buildEvent(msg, rec.CapturedAt)
			if ev.IsCapability {
				lastCapability = msg.Root
			}
			if ev.IsRequest {
				lastRequest = msg.Root
			}
			ev.LastCapability = lastCapability
			ev.LastRequest = lastRequest
			pub.PublishProtocol(wire.Record{Kind: wire.KindProtocol, Protocol: ev})

		default:
			// unknown report class, skip
		}
	}
}

// buildSample extracts analog values from a telemetry message. A field
// that fails to parse degrades to zero; one bad field never discards
// the sample.
func buildSample(msg *decode.Message, at time.Time) types.TelemetrySample {
	v := parseUnit(msg.Field("VBus"))
	a := parseUnit(msg.Field("Current"))
	return types.TelemetrySample{
		CapturedAt: at,
		Voltage:    v,
		Current:    a,
		Power:      math.Abs(v * a),
		CC1:        parseUnit(msg.Field("CC1")),
		CC2:        parseUnit(msg.Field("CC2")),
		DPlus:      parseUnit(msg.Field("D+")),
		DMinus:     parseUnit(msg.Field("D-")),
		UpdatePlot: true,
	}
}

// buildEvent extracts the header columns from a protocol message.
// Missing fields degrade to empty strings.
func buildEvent(msg *decode.Message, at time.Time) *types.ProtocolEvent {
	return &types.ProtocolEvent{
		Timestamp:    at.Format(types.TimestampLayout),
		CapturedAt:   at,
		SOP:          msg.Field("SOP*"),
		Rev:          msg.Field("Message Header", "Specification Revision"),
		PowerRole:    msg.Field("Message Header", "Port Power Role"),
		DataRole:     msg.Field("Message Header", "Port Data Role"),
		MsgType:      msg.Kind(),
		Payload:      msg.Root,
		Raw:          msg.Raw,
		IsCapability: decode.IsCapability(msg),
		IsRequest:    decode.IsRequest(msg),
	}
}

// parseUnit reads a decoded value like "5.032V" or "-1.250A", dropping
// the unit suffix. Unparseable input yields zero.
func parseUnit(s string) float64 {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= '0' && c <= '9') || c == '.' {
			break
		}
		i--
	}
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0
	}
	return f
}
