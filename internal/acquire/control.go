package acquire

import "sync/atomic"

// Control carries the pause and stop flags shared between the
// acquisition loop and whoever drives it. Both flags are sticky until
// explicitly changed; the loop polls them between reads.
type Control struct {
	paused  atomic.Bool
	stopped atomic.Bool
}

func NewControl() *Control {
	return &Control{}
}

func (c *Control) Pause()  { c.paused.Store(true) }
func (c *Control) Resume() { c.paused.Store(false) }
func (c *Control) Stop()   { c.stopped.Store(true) }

func (c *Control) Paused() bool  { return c.paused.Load() }
func (c *Control) Stopped() bool { return c.stopped.Load() }
