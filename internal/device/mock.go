package device

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
)

// Mock synthesizes a plausible report stream: a telemetry sample every
// tick, with a short PD contract negotiation replayed periodically. It
// lets the whole pipeline run without hardware.
type Mock struct {
	mu       sync.Mutex
	id       string
	opened   bool
	interval time.Duration
	start    time.Time
	n        uint64
	failAt   uint64 // 0 means never fail
}

func NewMock(interval time.Duration) *Mock {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Mock{
		id:       uuid.NewString(),
		interval: interval,
	}
}

// FailAfter makes ReadNext return ErrReadFailure after n successful
// reads, simulating a cable pull. Test hook.
func (m *Mock) FailAfter(n uint64) {
	m.mu.Lock()
	m.failAt = n
	m.mu.Unlock()
}

// ID identifies this synthetic device instance.
func (m *Mock) ID() string { return m.id }

func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	m.start = time.Now()
	m.n = 0
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

func (m *Mock) ReadNext() (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return Record{}, ErrReadFailure
	}
	if m.failAt > 0 && m.n >= m.failAt {
		return Record{}, ErrReadFailure
	}

	time.Sleep(m.interval)
	seq := m.n
	m.n++

	// One protocol report per 10 reads, walking the negotiation replay.
	if seq%10 == 0 {
		return Record{CapturedAt: time.Now(), Data: m.protocolReport(int(seq / 10))}, nil
	}
	return Record{CapturedAt: time.Now(), Data: m.telemetryReport()}, nil
}

func (m *Mock) telemetryReport() []byte {
	b := make([]byte, decode.ReportSize)
	b[0] = 0x01

	t := time.Since(m.start).Seconds()
	uv := 5_000_000 + uint32(30_000*math.Sin(t)) + uint32(rand.Intn(5_000))
	ua := int32(900_000 + rand.Intn(50_000))

	binary.LittleEndian.PutUint32(b[4:], uv)
	binary.LittleEndian.PutUint32(b[8:], uint32(ua))
	binary.LittleEndian.PutUint16(b[12:], 1650) // CC1
	binary.LittleEndian.PutUint16(b[14:], 0)    // CC2
	binary.LittleEndian.PutUint16(b[16:], 600)  // D+
	binary.LittleEndian.PutUint16(b[18:], 0)    // D-
	return b
}

// negotiation steps: header word plus data objects
var mockNegotiation = []struct {
	header  uint16
	objects []uint32
}{
	{0x21a1, []uint32{0x0a01912c, 0x0002d12c}}, // Source_Capabilities
	{0x1082, []uint32{0x1304b12c}},             // Request
	{0x0081, nil},                              // GoodCRC
	{0x01a3, nil},                              // Accept
	{0x01a6, nil},                              // PS_RDY
}

func (m *Mock) protocolReport(step int) []byte {
	b := make([]byte, decode.ReportSize)
	b[0] = 0x02
	b[4] = 0 // SOP

	neg := mockNegotiation[step%len(mockNegotiation)]
	binary.LittleEndian.PutUint16(b[6:], neg.header)
	for i, obj := range neg.objects {
		binary.LittleEndian.PutUint32(b[8+i*4:], obj)
	}
	return b
}
