// Package wire frames the records exchanged between the capture process
// and the acquisition worker over its stdio pipes. Each frame is a 4-byte
// big-endian length followed by a msgpack body.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

// Kind discriminates worker-to-core records.
type Kind uint8

const (
	// KindTelemetry carries a TelemetrySample.
	KindTelemetry Kind = iota + 1
	// KindProtocol carries a ProtocolEvent.
	KindProtocol
	// KindDisconnected is the terminal record after a device read failure.
	KindDisconnected
	// KindConnectFailed is the terminal record when the device could not
	// be opened; Diag carries the reason.
	KindConnectFailed
)

// Record is one worker-to-core frame.
type Record struct {
	Kind      Kind                   `msgpack:"kind"`
	Telemetry *types.TelemetrySample `msgpack:"telemetry,omitempty"`
	Protocol  *types.ProtocolEvent   `msgpack:"protocol,omitempty"`
	Diag      string                 `msgpack:"diag,omitempty"`
}

// Err reports whether the record is one of the terminal error sentinels.
func (r *Record) Err() bool {
	return r.Kind == KindDisconnected || r.Kind == KindConnectFailed
}

// Command is a core-to-worker control frame.
type Command struct {
	Op string `msgpack:"op"`
}

const (
	OpPause  = "pause"
	OpResume = "resume"
	OpStop   = "stop"
)

// maxFrame bounds a single frame so a corrupt length prefix cannot make
// the reader allocate unbounded memory.
const maxFrame = 16 << 20

// Encoder writes length-prefixed msgpack frames.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := e.w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// Decoder reads length-prefixed msgpack frames.
type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) Decode(v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return fmt.Errorf("frame too large: %d bytes", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
