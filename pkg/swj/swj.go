// Package swj configures the debug port for one of its transports.
//
// Exactly one port.Mode is active at any time. Every change between modes
// first passes through Off, which releases all lines, so two configurations
// never drive the same line at the same time.
package swj

import (
	"sync/atomic"

	"github.com/micromint/Simple-DAP/pkg/port"

	"github.com/womat/debug"
)

// Pins is the part of the pin driver used to set up the port.
type Pins interface {
	Setup()
	Configure(s port.Signal, drive port.Drive, level port.StateType)
	Float(s port.Signal)
}

// Controller owns the port mode of a pin driver.
type Controller struct {
	pins Pins
	// mode is the active port.Mode, read by status reporters
	mode atomic.Int32
}

// New returns a controller for pins. Call Setup before the first Configure.
func New(pins Pins) *Controller {
	return &Controller{pins: pins}
}

// Setup initializes the pins once at boot and leaves the port Off.
func (c *Controller) Setup() {
	c.pins.Setup()
	c.off()
	c.mode.Store(int32(port.Off))
	debug.DebugLog.Print("debug port setup, mode off")
}

// Mode returns the active port mode.
func (c *Controller) Mode() port.Mode {
	return port.Mode(c.mode.Load())
}

// Configure switches the port to mode.
// Calling it with the active mode does nothing.
func (c *Controller) Configure(mode port.Mode) {
	if mode == c.Mode() {
		return
	}

	// quiesce before the new configuration
	c.off()

	switch mode {
	case port.JTAG:
		c.pins.Configure(port.Clock, port.PushPull, port.High)
		c.pins.Configure(port.Data, port.PushPull, port.High)
		c.pins.Configure(port.SecondaryOut, port.PushPull, port.High)
		c.pins.Configure(port.SecondaryIn, port.HighZ, port.Low)
		c.pins.Configure(port.Reset, port.OpenDrain, port.High)
	case port.SWD:
		c.pins.Configure(port.Clock, port.PushPull, port.High)
		c.pins.Configure(port.Data, port.PushPull, port.High)
		c.pins.Configure(port.Reset, port.OpenDrain, port.High)
	default:
		mode = port.Off
	}

	debug.DebugLog.Printf("debug port mode %v -> %v", c.Mode(), mode)
	c.mode.Store(int32(mode))
}

// off releases every line of the port.
func (c *Controller) off() {
	for _, s := range port.Signals {
		c.pins.Float(s)
	}
}
