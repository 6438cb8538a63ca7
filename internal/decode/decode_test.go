package decode

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func telemetryReport(uv uint32, ua int32, cc1, cc2, dp, dm uint16) []byte {
	b := make([]byte, ReportSize)
	b[0] = markTelemetry
	binary.LittleEndian.PutUint32(b[offVBus:], uv)
	binary.LittleEndian.PutUint32(b[offCurrent:], uint32(ua))
	binary.LittleEndian.PutUint16(b[offCC1:], cc1)
	binary.LittleEndian.PutUint16(b[offCC2:], cc2)
	binary.LittleEndian.PutUint16(b[offDPlus:], dp)
	binary.LittleEndian.PutUint16(b[offDMinus:], dm)
	return b
}

func protocolReport(sop byte, header uint16, objects ...uint32) []byte {
	b := make([]byte, ReportSize)
	b[0] = markProtocol
	b[offSOP] = sop
	binary.LittleEndian.PutUint16(b[offHeader:], header)
	for i, obj := range objects {
		binary.LittleEndian.PutUint32(b[offObjects+i*4:], obj)
	}
	return b
}

// header builds a PD message header word from its fields.
func header(msgType, ndo int, rev, powerRole, dataRole, msgID uint16) uint16 {
	return uint16(msgType&0x1f) |
		dataRole<<5 |
		rev<<6 |
		powerRole<<8 |
		msgID<<9 |
		uint16(ndo&0x7)<<12
}

func TestDecodeTelemetry(t *testing.T) {
	dec := NewWITRN()

	m, err := dec.Decode(telemetryReport(5_032_000, -1_250_000, 1650, 0, 600, 0))
	require.NoError(t, err)
	require.Equal(t, ClassTelemetry, m.Class)

	assert.Equal(t, "general", m.Kind())
	assert.Equal(t, "5.032V", m.Field("VBus"))
	assert.Equal(t, "-1.250A", m.Field("Current"))
	assert.Equal(t, "1.65V", m.Field("CC1"))
	assert.Equal(t, "0.00V", m.Field("CC2"))
	assert.Equal(t, "0.60V", m.Field("D+"))
}

func TestDecodeControlMessage(t *testing.T) {
	dec := NewWITRN()

	m, err := dec.Decode(protocolReport(0, header(1, 0, 2, 1, 1, 3)))
	require.NoError(t, err)
	require.Equal(t, ClassProtocol, m.Class)

	assert.Equal(t, "GoodCRC", m.Kind())
	assert.Equal(t, "SOP", m.Field("SOP*"))
	assert.Equal(t, "Rev 3.0", m.Field("Message Header", "Specification Revision"))
	assert.Equal(t, "Source", m.Field("Message Header", "Port Power Role"))
	assert.Equal(t, "DFP", m.Field("Message Header", "Port Data Role"))
	assert.Equal(t, "3", m.Field("Message Header", "Message ID"))
	assert.False(t, IsCapability(m))
	assert.False(t, IsRequest(m))
}

func TestDecodeSourceCapabilities(t *testing.T) {
	dec := NewWITRN()

	m, err := dec.Decode(protocolReport(0, header(1, 2, 2, 1, 1, 0),
		0x0a01912c, 0x0002d12c))
	require.NoError(t, err)

	assert.Equal(t, "Source_Capabilities", m.Kind())
	assert.True(t, IsCapability(m))
	assert.False(t, IsRequest(m))

	objs := m.Root.Child("Data Objects")
	require.NotNil(t, objs)
	require.Len(t, objs.Children, 2)
	assert.Equal(t, "0x2C91010A", objs.Children[0].Value)
}

func TestDecodeRequest(t *testing.T) {
	dec := NewWITRN()

	m, err := dec.Decode(protocolReport(0, header(2, 1, 2, 0, 0, 1), 0x1304b12c))
	require.NoError(t, err)

	assert.Equal(t, "Request", m.Kind())
	assert.True(t, IsRequest(m))
	assert.Equal(t, "Sink", m.Field("Message Header", "Port Power Role"))
	assert.Equal(t, "UFP", m.Field("Message Header", "Port Data Role"))
}

func TestDecodeReservedTypes(t *testing.T) {
	dec := NewWITRN()

	m, err := dec.Decode(protocolReport(0, header(25, 0, 2, 0, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, "Ctrl_Reserved", m.Kind())

	m, err = dec.Decode(protocolReport(0, header(13, 1, 2, 0, 0, 0), 0))
	require.NoError(t, err)
	assert.Equal(t, "Data_Reserved", m.Kind())
}

func TestDecodeShortReport(t *testing.T) {
	dec := NewWITRN()

	_, err := dec.Decode(make([]byte, 12))
	assert.ErrorIs(t, err, ErrShortReport)
}

func TestDecodeUnknownMark(t *testing.T) {
	dec := NewWITRN()

	b := make([]byte, ReportSize)
	b[0] = 0x7f
	m, err := dec.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, ClassUnknown, m.Class)
	assert.Equal(t, "", m.Field("anything"))
}

func TestRender(t *testing.T) {
	dec := NewWITRN()

	m, err := dec.Decode(protocolReport(0, header(6, 0, 2, 1, 1, 0)))
	require.NoError(t, err)

	out := Render(m.Root)
	assert.Contains(t, out, "[b0-b4] Message Type: PS_RDY")
	assert.Contains(t, out, "Specification Revision: Rev 3.0")
	// nested fields are indented under the header node
	assert.True(t, strings.Contains(out, "\n  [b0-b15] Message Header"))
}

func TestNodeLookupMissing(t *testing.T) {
	var m *Message
	assert.Equal(t, "", m.Field("x"))

	m = &Message{Root: &Node{Field: "root"}}
	_, ok := m.Root.Lookup("nope")
	assert.False(t, ok)
}
