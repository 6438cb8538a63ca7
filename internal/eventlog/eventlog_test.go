package eventlog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

func event(msgType string) *types.ProtocolEvent {
	return &types.ProtocolEvent{MsgType: msgType}
}

func TestIndicesStrictlyIncreasing(t *testing.T) {
	l := New()

	for i := 0; i < 100; i++ {
		l.Append(event(fmt.Sprintf("msg-%d", i)))
	}
	require.Equal(t, 100, l.Len())

	snap := l.Snapshot()
	for i, ev := range snap {
		assert.Equal(t, i+1, ev.Index, "index gap at position %d", i)
	}
}

func TestGet(t *testing.T) {
	l := New()
	l.Append(event("GoodCRC"))
	l.Append(event("Request"))

	ev, ok := l.Get(2)
	require.True(t, ok)
	assert.Equal(t, "Request", ev.MsgType)

	_, ok = l.Get(0)
	assert.False(t, ok)
	_, ok = l.Get(3)
	assert.False(t, ok)
}

func TestSince(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		l.Append(event("Ping"))
	}

	assert.Len(t, l.Since(3), 2)
	assert.Nil(t, l.Since(5))
	assert.Len(t, l.Since(0), 5)
}

func TestClearResetsIndices(t *testing.T) {
	l := New()
	l.Append(event("Ping"))
	l.Append(event("Ping"))
	l.Clear()
	assert.Equal(t, 0, l.Len())

	l.Append(event("Accept"))
	ev, ok := l.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Index)
}

func TestVisibleFilter(t *testing.T) {
	events := []*types.ProtocolEvent{
		event("Source_Capabilities"),
		event("GoodCRC"),
		event("Request"),
		event("goodcrc"),
	}

	assert.Len(t, Visible(events, false), 4)

	vis := Visible(events, true)
	require.Len(t, vis, 2)
	assert.Equal(t, "Source_Capabilities", vis[0].MsgType)
	assert.Equal(t, "Request", vis[1].MsgType)
}
