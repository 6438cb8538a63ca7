package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

func TestRoundTripTelemetry(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	in := Record{
		Kind: KindTelemetry,
		Telemetry: &types.TelemetrySample{
			CapturedAt:    time.Now().UTC().Truncate(time.Millisecond),
			Voltage:       5.032,
			Current:       1.25,
			Power:         6.29,
			UpdatePlot:    true,
			UpdateSummary: true,
		},
	}
	require.NoError(t, enc.Encode(&in))

	var out Record
	require.NoError(t, dec.Decode(&out))
	assert.Equal(t, KindTelemetry, out.Kind)
	require.NotNil(t, out.Telemetry)
	assert.Equal(t, in.Telemetry.Voltage, out.Telemetry.Voltage)
	assert.True(t, out.Telemetry.UpdateSummary)
	assert.False(t, out.Err())
}

func TestErrorSentinels(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	require.NoError(t, enc.Encode(&Record{Kind: KindConnectFailed, Diag: "open /dev/hidraw3: permission denied"}))
	require.NoError(t, enc.Encode(&Record{Kind: KindDisconnected}))

	var r Record
	require.NoError(t, dec.Decode(&r))
	assert.True(t, r.Err())
	assert.Equal(t, KindConnectFailed, r.Kind)
	assert.Contains(t, r.Diag, "permission denied")

	require.NoError(t, dec.Decode(&r))
	assert.Equal(t, KindDisconnected, r.Kind)
}

func TestCommands(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	for _, op := range []string{OpPause, OpResume, OpStop} {
		require.NoError(t, enc.Encode(&Command{Op: op}))
	}
	for _, want := range []string{OpPause, OpResume, OpStop} {
		var c Command
		require.NoError(t, dec.Decode(&c))
		assert.Equal(t, want, c.Op)
	}
}

func TestDecodeEOF(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	var r Record
	assert.ErrorIs(t, dec.Decode(&r), io.EOF)
}

func TestDecodeOversizeFrame(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], maxFrame+1)
	dec := NewDecoder(bytes.NewReader(hdr[:]))

	var r Record
	err := dec.Decode(&r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame too large")
}
