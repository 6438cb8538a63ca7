// Package decode turns raw WITRN HID reports into a structured value tree.
//
// Only the report envelope and the PD message header are interpreted here.
// Everything past the header (power data objects, extended payloads) is kept
// as opaque raw leaves: field-level semantics belong to downstream tooling,
// the capture pipeline only needs classification and header accessors.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ReportSize is the fixed HID report length produced by the device.
const ReportSize = 64

// Class separates the two record streams multiplexed on the HID endpoint.
type Class int

const (
	ClassUnknown Class = iota
	// ClassTelemetry is a high-rate analog sample report ("general").
	ClassTelemetry
	// ClassProtocol is a sniffed PD wire message report ("pd").
	ClassProtocol
)

func (c Class) String() string {
	switch c {
	case ClassTelemetry:
		return "telemetry"
	case ClassProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Message is one decoded report: a classification plus the value tree.
type Message struct {
	Class Class
	Raw   []byte
	Root  *Node
}

// Field returns the leaf value at the given path, or "" when any segment
// of the path is missing. Callers treat an empty value as "not present".
func (m *Message) Field(path ...string) string {
	if m == nil || m.Root == nil {
		return ""
	}
	v, _ := m.Root.Lookup(path...)
	return v
}

// Kind returns the flat classifier for the message: the PD message type
// name for protocol records, "general" for telemetry.
func (m *Message) Kind() string {
	if m.Class == ClassTelemetry {
		return "general"
	}
	return m.Field("Message Header", "Message Type")
}

// Decoder produces Messages from raw device reports.
type Decoder interface {
	Decode(data []byte) (*Message, error)
}

// ErrShortReport is returned for reports below the fixed HID size.
var ErrShortReport = errors.New("decode: short report")

// report class markers, first payload byte
const (
	markTelemetry = 0x01
	markProtocol  = 0x02
)

// telemetry field offsets inside the report
const (
	offVBus    = 4  // uint32 LE, microvolts
	offCurrent = 8  // int32 LE, microamps
	offCC1     = 12 // uint16 LE, millivolts
	offCC2     = 14
	offDPlus   = 16
	offDMinus  = 18
)

// protocol field offsets
const (
	offSOP       = 4 // uint8 SOP* ordinal
	offHeader    = 6 // uint16 LE PD message header
	offObjects   = 8 // data objects, 4 bytes each
	maxObjectCnt = 7
)

type witrnDecoder struct{}

// NewWITRN returns the reference decoder for WITRN HID reports.
func NewWITRN() Decoder {
	return witrnDecoder{}
}

func (witrnDecoder) Decode(data []byte) (*Message, error) {
	if len(data) < ReportSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortReport, len(data))
	}

	switch data[0] {
	case markTelemetry:
		return decodeTelemetry(data), nil
	case markProtocol:
		return decodeProtocol(data), nil
	default:
		return &Message{Class: ClassUnknown, Raw: data}, nil
	}
}

func decodeTelemetry(data []byte) *Message {
	uv := binary.LittleEndian.Uint32(data[offVBus:])
	ua := int32(binary.LittleEndian.Uint32(data[offCurrent:]))

	root := &Node{
		Field: "general",
		Raw:   data,
		BitLo: 0,
		BitHi: ReportSize*8 - 1,
		Children: []*Node{
			leaf("VBus", fmt.Sprintf("%.3fV", float64(uv)/1e6), offVBus*8, offVBus*8+31),
			leaf("Current", fmt.Sprintf("%.3fA", float64(ua)/1e6), offCurrent*8, offCurrent*8+31),
			leaf("CC1", millivoltLeaf(data, offCC1), offCC1*8, offCC1*8+15),
			leaf("CC2", millivoltLeaf(data, offCC2), offCC2*8, offCC2*8+15),
			leaf("D+", millivoltLeaf(data, offDPlus), offDPlus*8, offDPlus*8+15),
			leaf("D-", millivoltLeaf(data, offDMinus), offDMinus*8, offDMinus*8+15),
		},
	}
	return &Message{Class: ClassTelemetry, Raw: data, Root: root}
}

func millivoltLeaf(data []byte, off int) string {
	mv := binary.LittleEndian.Uint16(data[off:])
	return fmt.Sprintf("%.2fV", float64(mv)/1e3)
}

func decodeProtocol(data []byte) *Message {
	header := binary.LittleEndian.Uint16(data[offHeader:])

	msgType := int(header & 0x1f)
	dataRole := (header >> 5) & 0x1
	rev := (header >> 6) & 0x3
	powerRole := (header >> 8) & 0x1
	msgID := (header >> 9) & 0x7
	ndo := int((header >> 12) & 0x7)
	extended := (header >> 15) & 0x1

	headerNode := &Node{
		Field: "Message Header",
		Raw:   data[offHeader : offHeader+2],
		BitLo: 0,
		BitHi: 15,
		Children: []*Node{
			leaf("Message Type", typeName(msgType, ndo), 0, 4),
			leaf("Port Data Role", dataRoleName(dataRole), 5, 5),
			leaf("Specification Revision", revName(rev), 6, 7),
			leaf("Port Power Role", powerRoleName(powerRole), 8, 8),
			leaf("Message ID", fmt.Sprintf("%d", msgID), 9, 11),
			leaf("Number of Data Objects", fmt.Sprintf("%d", ndo), 12, 14),
			leaf("Extended", fmt.Sprintf("%d", extended), 15, 15),
		},
	}

	root := &Node{
		Field: "pd",
		Raw:   data,
		BitLo: 0,
		BitHi: ReportSize*8 - 1,
		Children: []*Node{
			leaf("SOP*", sopName(data[offSOP]), offSOP*8, offSOP*8+7),
			headerNode,
		},
	}

	// Data objects stay opaque: raw hex leaves only.
	if ndo > 0 && extended == 0 {
		objects := &Node{Field: "Data Objects", BitLo: offObjects * 8}
		n := ndo
		if n > maxObjectCnt {
			n = maxObjectCnt
		}
		for i := 0; i < n; i++ {
			off := offObjects + i*4
			if off+4 > len(data) {
				break
			}
			obj := &Node{
				Field: fmt.Sprintf("Object %d", i+1),
				Raw:   data[off : off+4],
				BitLo: off * 8,
				BitHi: off*8 + 31,
			}
			obj.Value = "0x" + obj.HexRaw()
			objects.Children = append(objects.Children, obj)
		}
		objects.BitHi = objects.BitLo + n*32 - 1
		root.Children = append(root.Children, objects)
	}

	return &Message{Class: ClassProtocol, Raw: data, Root: root}
}

func leaf(field, value string, lo, hi int) *Node {
	return &Node{Field: field, Value: value, BitLo: lo, BitHi: hi}
}

func sopName(code byte) string {
	switch code {
	case 0:
		return "SOP"
	case 1:
		return "SOP'"
	case 2:
		return "SOP''"
	default:
		return fmt.Sprintf("SOP?(%d)", code)
	}
}

func revName(rev uint16) string {
	switch rev {
	case 0:
		return "Rev 1.0"
	case 1:
		return "Rev 2.0"
	case 2:
		return "Rev 3.0"
	default:
		return ""
	}
}

func powerRoleName(r uint16) string {
	if r == 1 {
		return "Source"
	}
	return "Sink"
}

func dataRoleName(r uint16) string {
	if r == 1 {
		return "DFP"
	}
	return "UFP"
}
