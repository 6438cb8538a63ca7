// Package exchange moves captured sessions in and out of CSV files.
package exchange

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

var exportHeader = []string{"Index", "Time", "SOP", "Rev", "PPR", "PDR", "Msg Type", "Detail", "Raw"}

// Export writes the events as CSV. The Detail column carries the full
// rendered payload tree, so an export is readable without the tool.
func Export(w io.Writer, events []*types.ProtocolEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, ev := range events {
		row := []string{
			strconv.Itoa(ev.Index),
			ev.Timestamp,
			ev.SOP,
			ev.Rev,
			ev.PowerRole,
			ev.DataRole,
			ev.MsgType,
			decode.Render(ev.Payload),
			hex.EncodeToString(ev.Raw),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", ev.Index, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ImportStats reports how an import went.
type ImportStats struct {
	Imported int
	Failed   int
}

// Import reads a previously exported CSV and re-decodes each row from
// its raw bytes. Only the Time and Raw columns are trusted; everything
// else is rebuilt by the decoder, so imports survive format drift in
// the derived columns. Non-protocol and undecodable rows are counted
// as failed and skipped.
func Import(r io.Reader, dec decode.Decoder) ([]*types.ProtocolEvent, ImportStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, ImportStats{}, fmt.Errorf("read csv header: %w", err)
	}
	timeCol, rawCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Time":
			timeCol = i
		case "Raw":
			rawCol = i
		}
	}
	if rawCol < 0 {
		return nil, ImportStats{}, fmt.Errorf("csv has no Raw column")
	}

	var events []*types.ProtocolEvent
	var stats ImportStats
	var lastCapability, lastRequest *decode.Node

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read csv row: %w", err)
		}
		if rawCol >= len(row) {
			stats.Failed++
			continue
		}

		raw, err := normalizeHex(row[rawCol])
		if err != nil {
			stats.Failed++
			continue
		}

		msg, err := dec.Decode(raw)
		if err != nil || msg.Class != decode.ClassProtocol {
			stats.Failed++
			continue
		}

		ev := &types.ProtocolEvent{
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
		if timeCol >= 0 && timeCol < len(row) {
			ev.Timestamp = strings.TrimSpace(row[timeCol])
			if at, perr := time.Parse(types.TimestampLayout, ev.Timestamp); perr == nil {
				ev.CapturedAt = at
			}
		}
		if ev.IsCapability {
			lastCapability = msg.Root
		}
		if ev.IsRequest {
			lastRequest = msg.Root
		}
		ev.LastCapability = lastCapability
		ev.LastRequest = lastRequest

		events = append(events, ev)
		stats.Imported++
	}

	return events, stats, nil
}

// normalizeHex accepts the raw column in the forms seen in the wild:
// optional 0x prefix, embedded spaces, odd nibble counts. The result is
// padded or truncated to the fixed report size.
func normalizeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("empty raw value")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex: %w", err)
	}

	if len(b) > decode.ReportSize {
		b = b[:decode.ReportSize]
	} else if len(b) < decode.ReportSize {
		padded := make([]byte, decode.ReportSize)
		copy(padded, b)
		b = padded
	}
	return b, nil
}
