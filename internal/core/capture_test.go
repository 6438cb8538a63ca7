package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LauH1987/witrn-pd-sniffer/internal/config"
	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
	"github.com/LauH1987/witrn-pd-sniffer/internal/view"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

func newTestCapture(t *testing.T) (*Capture, *view.LogView) {
	t.Helper()
	cfg := config.Default()
	v := view.NewLogView(zerolog.Nop())
	c := New(zerolog.Nop(), cfg, v, nil, nil)
	return c, v
}

// opening puts the session into the awaiting-ack phase without spawning
// a worker process.
func opening(c *Capture, autoStart bool) {
	c.mu.Lock()
	c.state = types.StateOpening
	c.awaitingAck = true
	c.autoStart = autoStart
	c.mu.Unlock()
}

// beginSession arms a real session, fresh channels included, without
// spawning a worker process.
func beginSession(c *Capture, autoStart bool) {
	c.mu.Lock()
	tel, pd := c.sessionChannels()
	c.beginSessionLocked(tel, pd, autoStart)
	c.mu.Unlock()
}

func sess(c *Capture) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func protoEvent(msgType string, at time.Time) *types.ProtocolEvent {
	return &types.ProtocolEvent{
		Timestamp:  at.Format(types.TimestampLayout),
		CapturedAt: at,
		MsgType:    msgType,
		Payload:    &decode.Node{Field: "pd"},
	}
}

func sample(at time.Time, plotFlag, summaryFlag bool) types.TelemetrySample {
	return types.TelemetrySample{
		CapturedAt:    at,
		Voltage:       5.0,
		Current:       1.0,
		Power:         5.0,
		UpdatePlot:    plotFlag,
		UpdateSummary: summaryFlag,
	}
}

func TestAckOnFirstProtocolRecord(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, true)

	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: protoEvent("GoodCRC", time.Now())})
	assert.Equal(t, types.StateCollecting, c.State())
	assert.Equal(t, 1, c.events.Len(), "first record acks and is recorded")

	// the ack fires exactly once
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: protoEvent("Ping", time.Now())})
	assert.Equal(t, types.StateCollecting, c.State())
	assert.Equal(t, 2, c.events.Len())
}

func TestAckOnFirstTelemetrySample(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, true)

	c.handleTelemetry(sess(c), sample(time.Now(), true, false))
	assert.Equal(t, types.StateCollecting, c.State())
	assert.Equal(t, 1, c.buffer.Len())
}

func TestAckWithoutAutoStartParks(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, false)

	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: protoEvent("GoodCRC", time.Now())})
	assert.Equal(t, types.StatePaused, c.State())
	assert.Equal(t, 0, c.events.Len(), "paused session must not record")
}

func TestTelemetryFlowsWhilePaused(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, false)

	c.handleTelemetry(sess(c), sample(time.Now(), true, true))
	require.Equal(t, types.StatePaused, c.State())
	assert.Equal(t, 1, c.buffer.Len())
	assert.Equal(t, "5.000 V", c.Summary().Voltage)
}

func TestDisconnectSentinelTearsDown(t *testing.T) {
	c, v := newTestCapture(t)
	opening(c, true)
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: protoEvent("GoodCRC", time.Now())})
	require.Equal(t, types.StateCollecting, c.State())

	cont := c.handleProtocol(sess(c), wire.Record{Kind: wire.KindDisconnected})
	assert.False(t, cont, "sentinel must stop the burst")
	assert.Equal(t, types.StateClosed, c.State())

	c.mu.Lock()
	assert.Nil(t, c.lastCapability)
	assert.Nil(t, c.lastRequest)
	assert.False(t, c.awaitingAck)
	c.mu.Unlock()

	require.Eventually(t, func() bool {
		for _, n := range v.Notices() {
			if n.State == types.StateClosed && n.Notice == "device disconnected" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestConnectFailedSentinelCarriesDiagnostic(t *testing.T) {
	c, v := newTestCapture(t)
	opening(c, true)

	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindConnectFailed, Diag: "open /dev/hidraw3: permission denied"})
	assert.Equal(t, types.StateClosed, c.State())

	require.Eventually(t, func() bool {
		for _, n := range v.Notices() {
			if n.State == types.StateClosed {
				return n.Notice == "connection failed: open /dev/hidraw3: permission denied"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestMarkersNeedArmedBaseline(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, true)

	t0 := time.Now()
	cap := protoEvent("Source_Capabilities", t0)
	cap.IsCapability = true
	cap.LastCapability = cap.Payload

	// no telemetry yet: baseline unarmed, marker has no timeline to pin to
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: cap})
	assert.Equal(t, 0, c.markers.Len())

	c.handleTelemetry(sess(c), sample(t0, true, false))
	req := protoEvent("Request", t0.Add(time.Second))
	req.IsRequest = true
	req.LastRequest = req.Payload
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: req})

	require.Equal(t, 1, c.markers.Len())
	mk := c.markers.Snapshot(true, 0, 0)
	assert.Equal(t, types.MarkerRequest, mk[0].Kind)
	assert.InDelta(t, 1.0, mk[0].RelTime, 1e-6)
}

func TestSummaryCarriesNegotiationContext(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, true)

	t0 := time.Now()
	cap := protoEvent("Source_Capabilities", t0)
	cap.IsCapability = true
	cap.Payload = &decode.Node{Field: "pd", Children: []*decode.Node{
		{Field: "Message Header", Value: "caps", BitLo: 0, BitHi: 15},
	}}
	cap.LastCapability = cap.Payload
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: cap})

	c.handleTelemetry(sess(c), sample(t0, true, true))
	summ := c.Summary()
	assert.Contains(t, summ.LastCapability, "Message Header")
	assert.Empty(t, summ.LastRequest)
}

func TestClearResetsSession(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, true)

	t0 := time.Now()
	c.handleTelemetry(sess(c), sample(t0, true, false))
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: protoEvent("Ping", t0)})
	require.Equal(t, 1, c.events.Len())

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.events.Len())
	assert.Equal(t, 0, c.buffer.Len())
	assert.Equal(t, 0, c.markers.Len())

	// timeline restarts at zero
	c.handleTelemetry(sess(c), sample(t0.Add(time.Hour), true, false))
	s := c.buffer.Snapshot()
	require.Len(t, s.Times, 1)
	assert.Equal(t, 0.0, s.Times[0])
}

// A session without a metrics registry must still drive the refresh
// scheduler: the display toggles kick refreshes that would touch the
// observer hook.
func TestDisplayTogglesWithoutMetrics(t *testing.T) {
	c, _ := newTestCapture(t)

	c.Scheduler().SetHideGoodCRC(true)
	c.Scheduler().SetRelativeTime(true)
	time.Sleep(150 * time.Millisecond)

	assert.True(t, c.Scheduler().HideGoodCRC())
	assert.True(t, c.Scheduler().RelativeTime())
}

// A reconnect starts the session over: log, plot series, markers, and
// the relative-time baseline, which re-arms on the first sample of the
// new connection.
func TestReconnectReArmsBaseline(t *testing.T) {
	c, _ := newTestCapture(t)
	beginSession(c, true)

	t0 := time.Now()
	c.handleTelemetry(sess(c), sample(t0, true, false))
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: protoEvent("Ping", t0)})
	require.Equal(t, 1, c.buffer.Len())
	require.Equal(t, 1, c.events.Len())

	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindDisconnected})
	require.Equal(t, types.StateClosed, c.State())

	beginSession(c, true)
	assert.Equal(t, 0, c.buffer.Len())
	assert.Equal(t, 0, c.events.Len())
	assert.Equal(t, 0, c.markers.Len())

	// an hour later, the new session's timeline still starts at zero
	c.handleTelemetry(sess(c), sample(t0.Add(time.Hour), true, false))
	s := c.buffer.Snapshot()
	require.Len(t, s.Times, 1)
	assert.Equal(t, 0.0, s.Times[0])
}

// Records a dying worker left queued must not acknowledge the next
// session's handshake: each connection gets fresh channels, and records
// drained under the old session id are discarded.
func TestStaleRecordsCannotAckNextSession(t *testing.T) {
	c, _ := newTestCapture(t)
	beginSession(c, true)
	oldGen := sess(c)
	oldTel := c.telemetry

	// the worker queues a sample, then dies
	oldTel.TryPublish(sample(time.Now(), true, false))
	c.handleProtocol(oldGen, wire.Record{Kind: wire.KindDisconnected})
	require.Equal(t, types.StateClosed, c.State())

	beginSession(c, true)
	require.Equal(t, types.StateOpening, c.State())
	assert.NotSame(t, oldTel, c.telemetry, "reconnect must not reuse channels")
	assert.Equal(t, 0, c.telemetry.Len())

	// even if the stale sample were drained, it cannot ack
	stale, ok := oldTel.TryReceive()
	require.True(t, ok)
	assert.False(t, c.handleTelemetry(oldGen, stale))
	assert.Equal(t, types.StateOpening, c.State(), "stale sample acked the new session")

	// a stale sentinel cannot tear the new session down either
	c.handleProtocol(oldGen, wire.Record{Kind: wire.KindDisconnected})
	assert.Equal(t, types.StateOpening, c.State())
}

func TestExportImportSession(t *testing.T) {
	c, _ := newTestCapture(t)
	opening(c, true)

	raw := make([]byte, decode.ReportSize)
	raw[0] = 0x02
	raw[6] = 0x81 // GoodCRC header, low byte
	msg, err := decode.NewWITRN().Decode(raw)
	require.NoError(t, err)

	ev := protoEvent(msg.Kind(), time.Now())
	ev.Payload = msg.Root
	ev.Raw = raw
	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindProtocol, Protocol: ev})

	path := filepath.Join(t.TempDir(), "session.csv")
	n, err := c.ExportCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// import requires a closed session
	_, _, err = c.ImportCSV(path)
	require.Error(t, err)

	c.handleProtocol(sess(c), wire.Record{Kind: wire.KindDisconnected})
	imported, failed, err := c.ImportCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, c.events.Len())

	st := c.Status()
	assert.Equal(t, true, st["import_mode"])
	assert.Equal(t, "closed", st["state"])
}

func TestConsumeDrainsProtocolBeforeTelemetry(t *testing.T) {
	c, _ := newTestCapture(t)
	c.cfg.Consumer.TickMillis = 5
	opening(c, true)

	t0 := time.Now()
	c.telemetry.TryPublish(sample(t0, true, false))
	c.protocol.TryPublish(wire.Record{Kind: wire.KindConnectFailed, Diag: "no device"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.consume(ctx)

	require.Eventually(t, func() bool {
		return c.State() == types.StateClosed
	}, time.Second, 5*time.Millisecond)

	// the sentinel closed the session before this tick's telemetry
	// could ack it back open
	assert.Equal(t, types.StateClosed, c.State())
	assert.Equal(t, 0, c.protocol.Len())
}

func TestHealthCheck(t *testing.T) {
	c, _ := newTestCapture(t)

	hs := c.HealthCheck()
	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "closed", hs.State)
	assert.False(t, hs.WorkerUp)

	opening(c, true)
	hs = c.HealthCheck()
	assert.Equal(t, "unhealthy", hs.Status, "opening with no worker process")
}
