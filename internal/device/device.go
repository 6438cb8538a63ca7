// Package device abstracts the WITRN HID transport. The acquisition loop
// only sees Adapter; the concrete implementations are the hidraw character
// device and a synthetic generator used when no hardware is present.
package device

import (
	"errors"
	"time"
)

// Record is one raw report with its capture time.
type Record struct {
	CapturedAt time.Time
	Data       []byte
}

// ErrReadFailure marks a fatal transport error. The acquisition loop
// treats it as a device disconnect; any other read error is transient
// and retried.
var ErrReadFailure = errors.New("device: read failure")

// ErrNoData is a transient condition: nothing arrived within the poll
// window. Callers retry.
var ErrNoData = errors.New("device: no data")

// Adapter is a blocking single-reader device handle.
type Adapter interface {
	// Open claims the device. An error here is a connection failure with
	// diagnostic text, not a disconnect.
	Open() error
	// ReadNext returns the next report. ErrNoData means retry,
	// ErrReadFailure (possibly wrapped) means the device is gone.
	ReadNext() (Record, error)
	Close() error
}
