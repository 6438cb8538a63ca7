package acquire

import (
	"github.com/LauH1987/witrn-pd-sniffer/internal/eventbus"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
	"github.com/LauH1987/witrn-pd-sniffer/internal/wire"
)

// Publisher receives the acquisition loop's output. The worker binary
// writes frames to its stdout; in-process setups publish straight onto
// the bounded channels.
type Publisher interface {
	// PublishTelemetry hands off one sample; false means dropped.
	PublishTelemetry(s types.TelemetrySample) bool
	// PublishProtocol hands off one protocol record or error sentinel;
	// false means dropped.
	PublishProtocol(r wire.Record) bool
}

// BusPublisher fans records onto the two bounded channels, dropping on
// overflow.
type BusPublisher struct {
	Telemetry *eventbus.Chan[types.TelemetrySample]
	Protocol  *eventbus.Chan[wire.Record]
}

func (p *BusPublisher) PublishTelemetry(s types.TelemetrySample) bool {
	return p.Telemetry.TryPublish(s)
}

func (p *BusPublisher) PublishProtocol(r wire.Record) bool {
	return p.Protocol.TryPublish(r)
}

// StreamPublisher writes records as wire frames, used by the worker
// binary talking to its parent over stdout.
type StreamPublisher struct {
	Enc *wire.Encoder
}

func (p *StreamPublisher) PublishTelemetry(s types.TelemetrySample) bool {
	return p.Enc.Encode(&wire.Record{Kind: wire.KindTelemetry, Telemetry: &s}) == nil
}

func (p *StreamPublisher) PublishProtocol(r wire.Record) bool {
	return p.Enc.Encode(&r) == nil
}
