package plot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

func TestBufferLazyBaseline(t *testing.T) {
	b := NewBuffer(16)
	_, ok := b.RelTime(time.Now())
	assert.False(t, ok, "baseline armed before first append")

	t0 := time.Now()
	b.Append(t0, 5.0, 1.0)
	b.Append(t0.Add(250*time.Millisecond), 5.1, 1.1)

	s := b.Snapshot()
	require.Len(t, s.Times, 2)
	assert.Equal(t, 0.0, s.Times[0])
	assert.InDelta(t, 0.25, s.Times[1], 1e-9)
}

func TestBufferWrap(t *testing.T) {
	b := NewBuffer(4)
	t0 := time.Now()
	for i := 0; i < 6; i++ {
		b.Append(t0.Add(time.Duration(i)*time.Second), float64(i), 0)
	}

	require.Equal(t, 4, b.Len())
	s := b.Snapshot()
	// oldest two samples rolled off
	assert.Equal(t, []float64{2, 3, 4, 5}, s.Voltage)
	assert.Equal(t, 2.0, s.Times[0])
}

// After Reset the timeline restarts at zero on the next append, not at
// the old session's offset.
func TestBufferResetRearmsBaseline(t *testing.T) {
	b := NewBuffer(16)
	t0 := time.Now()
	b.Append(t0, 5.0, 1.0)
	b.Append(t0.Add(10*time.Second), 5.0, 1.0)

	b.Reset()
	assert.Equal(t, 0, b.Len())
	_, ok := b.RelTime(t0)
	assert.False(t, ok)

	b.Append(t0.Add(time.Minute), 9.0, 3.0)
	s := b.Snapshot()
	require.Len(t, s.Times, 1)
	assert.Equal(t, 0.0, s.Times[0], "baseline not re-armed on reset")
}

func TestMarkerWindow(t *testing.T) {
	m := NewMarkerLog(8)
	m.Append(1.0, types.MarkerCapability)
	m.Append(50.0, types.MarkerRequest)
	m.Append(90.0, types.MarkerCapability)

	all := m.Snapshot(true, 100, 60)
	assert.Len(t, all, 3)

	windowed := m.Snapshot(false, 100, 60)
	require.Len(t, windowed, 2)
	assert.Equal(t, 50.0, windowed[0].RelTime)
}

func TestMarkerOverwriteOldest(t *testing.T) {
	m := NewMarkerLog(3)
	for i := 0; i < 5; i++ {
		m.Append(float64(i), types.MarkerRequest)
	}

	assert.Equal(t, 3, m.Len())
	got := m.Snapshot(true, 0, 0)
	require.Len(t, got, 3)
	assert.Equal(t, 2.0, got[0].RelTime)
	assert.Equal(t, 4.0, got[2].RelTime)
}
