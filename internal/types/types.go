// Package types holds the record types shared between the acquisition
// worker, the capture core and the emitters.
package types

import (
	"time"

	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
)

// TelemetrySample is one analog reading from the device.
type TelemetrySample struct {
	CapturedAt time.Time `msgpack:"captured_at" json:"captured_at"`

	Voltage float64 `msgpack:"voltage" json:"voltage"`
	Current float64 `msgpack:"current" json:"current"`
	Power   float64 `msgpack:"power" json:"power"`
	CC1     float64 `msgpack:"cc1" json:"cc1"`
	CC2     float64 `msgpack:"cc2" json:"cc2"`
	DPlus   float64 `msgpack:"dplus" json:"dplus"`
	DMinus  float64 `msgpack:"dminus" json:"dminus"`

	// UpdatePlot and UpdateSummary are set by the producer: every sample
	// feeds the plot, summary refreshes are rate limited at the source.
	UpdatePlot    bool `msgpack:"update_plot" json:"-"`
	UpdateSummary bool `msgpack:"update_summary" json:"-"`
}

// ProtocolEvent is one sniffed PD message, decoded and annotated with the
// capability/request context that was current when it was captured.
type ProtocolEvent struct {
	// Index is assigned by the event log on append, never by the producer.
	Index int `msgpack:"-" json:"index"`

	Timestamp  string    `msgpack:"timestamp" json:"timestamp"`
	CapturedAt time.Time `msgpack:"captured_at" json:"captured_at"`

	SOP       string `msgpack:"sop" json:"sop"`
	Rev       string `msgpack:"rev" json:"rev"`
	PowerRole string `msgpack:"power_role" json:"power_role"`
	DataRole  string `msgpack:"data_role" json:"data_role"`
	MsgType   string `msgpack:"msg_type" json:"msg_type"`

	Payload *decode.Node `msgpack:"payload" json:"payload"`
	Raw     []byte       `msgpack:"raw" json:"raw"`

	IsCapability bool `msgpack:"is_capability" json:"is_capability"`
	IsRequest    bool `msgpack:"is_request" json:"is_request"`

	// Snapshot of the most recent capability and request payloads at the
	// time this event was produced. Nil when none seen yet.
	LastCapability *decode.Node `msgpack:"last_capability" json:"-"`
	LastRequest    *decode.Node `msgpack:"last_request" json:"-"`
}

// TimestampLayout formats event wall-clock times for display and export.
const TimestampLayout = "15:04:05.000"

// MarkerKind tags a marker on the plot timeline.
type MarkerKind string

const (
	MarkerCapability MarkerKind = "capability"
	MarkerRequest    MarkerKind = "request"
)

// MarkerEvent pins a protocol milestone to the plot's relative timeline.
type MarkerEvent struct {
	RelTime float64    `json:"rel_time"`
	Kind    MarkerKind `json:"kind"`
}

// ConnectionState tracks the capture session lifecycle. Transitions are
// owned by the consumer loop alone.
type ConnectionState int

const (
	// StateClosed: no worker running.
	StateClosed ConnectionState = iota
	// StateOpening: worker launched, waiting for its first record.
	StateOpening
	// StatePaused: device connected, protocol capture suppressed.
	StatePaused
	// StateCollecting: device connected, capturing.
	StateCollecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StatePaused:
		return "paused"
	case StateCollecting:
		return "collecting"
	default:
		return "invalid"
	}
}
