// Package led drives the Connected and Running status indicators of the probe.
package led

import (
	"github.com/micromint/Simple-DAP/pkg/raspberry"

	"github.com/womat/debug"
)

// Output is a single binary indicator output.
type Output interface {
	Set(on bool)
}

// Indicator holds the two status outputs.
type Indicator struct {
	connected Output
	running   Output
}

// New returns an indicator, nil outputs are ignored.
func New(connected, running Output) *Indicator {
	return &Indicator{connected: connected, running: running}
}

// SetConnected switches the connected indicator.
func (i *Indicator) SetConnected(on bool) {
	if i.connected != nil {
		i.connected.Set(on)
	}
}

// SetRunning switches the running indicator.
func (i *Indicator) SetRunning(on bool) {
	if i.running != nil {
		i.running.Set(on)
	}
}

// Aliased reports whether the board table maps both indicators to the same line.
func Aliased(connected, running int) bool {
	if connected < 0 || running < 0 {
		return false
	}
	if connected == running {
		debug.ErrorLog.Printf("connected and running indicators share line %v", connected)
		return true
	}
	return false
}

// PinOutput drives an indicator from a register level gpio pin.
type PinOutput struct {
	pin raspberry.Pin
}

// NewPinOutput configures p as output, initially off.
func NewPinOutput(p raspberry.Pin) *PinOutput {
	p.Low()
	p.Output()
	return &PinOutput{pin: p}
}

// Set drives the pin high (on) or low (off).
func (o *PinOutput) Set(on bool) {
	if on {
		o.pin.High()
		return
	}
	o.pin.Low()
}
