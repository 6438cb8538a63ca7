package device

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/LauH1987/witrn-pd-sniffer/internal/decode"
)

// readTimeout bounds a single poll on the hidraw node so the loop can
// observe stop requests between reads.
const readTimeout = 200 * time.Millisecond

// HIDRaw reads fixed-size reports from a /dev/hidrawN character device.
type HIDRaw struct {
	path string
	f    *os.File
}

func NewHIDRaw(path string) *HIDRaw {
	return &HIDRaw{path: path}
}

func (h *HIDRaw) Open() error {
	f, err := os.OpenFile(h.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", h.path, err)
	}
	h.f = f
	return nil
}

func (h *HIDRaw) ReadNext() (Record, error) {
	if h.f == nil {
		return Record{}, ErrReadFailure
	}
	if err := h.f.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return Record{}, fmt.Errorf("%w: set deadline: %v", ErrReadFailure, err)
	}

	buf := make([]byte, decode.ReportSize)
	n, err := io.ReadFull(h.f, buf)
	if err != nil {
		if os.IsTimeout(err) {
			return Record{}, ErrNoData
		}
		return Record{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return Record{CapturedAt: time.Now(), Data: buf[:n]}, nil
}

func (h *HIDRaw) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return err
}
