// Package pins implements the primitive signal operations of the debug port.
//
// A Driver owns one gpio line per logical signal (port.Signal) and offers
// read, write and direction operations without any knowledge of the SWD or
// JTAG protocols. Level writes always go to the output latch of the line:
// while a signal is released (high impedance) the level is buffered and
// becomes visible on the line as soon as the output is enabled again, so
// direction changes never glitch.
//
// The Reset signal is open drain. Writing Low drives the line low, writing
// High releases it to the pull-up. Its latch is kept low at all times, so it
// is never driven to a high level.
//
// Unmapped signals (pin number < 0) read low and ignore writes.
package pins

import (
	"fmt"

	"github.com/micromint/Simple-DAP/pkg/port"
	"github.com/micromint/Simple-DAP/pkg/raspberry"

	"github.com/womat/debug"
)

// Unmapped marks a signal without physical line.
const Unmapped = -1

// Board is the signal to gpio pin table of a probe.
type Board struct {
	Clock        int
	Data         int
	SecondaryOut int
	SecondaryIn  int
	Reset        int
	// PullUp enables the pull ups of the debug lines, Reset is always pulled up.
	PullUp bool
}

// Pin returns the gpio number of the signal.
func (b Board) Pin(s port.Signal) int {
	switch s {
	case port.Clock:
		return b.Clock
	case port.Data:
		return b.Data
	case port.SecondaryOut:
		return b.SecondaryOut
	case port.SecondaryIn:
		return b.SecondaryIn
	case port.Reset:
		return b.Reset
	default:
		return Unmapped
	}
}

type line struct {
	pin   raspberry.Pin
	drive port.Drive
	latch port.StateType
}

// Driver drives the debug port signals.
// It performs no arbitration, the caller owns the port.
type Driver struct {
	board Board
	lines [port.NumSignals]line
}

// New requests the gpio lines of the board table.
func New(g raspberry.GPIO, b Board) (*Driver, error) {
	d := &Driver{board: b}

	for _, s := range port.Signals {
		n := b.Pin(s)
		if n < 0 {
			debug.InfoLog.Printf("signal %v is not mapped", s)
			continue
		}

		p, err := g.NewPin(n)
		if err != nil {
			return nil, fmt.Errorf("signal %v: %w", s, err)
		}
		d.lines[s] = line{pin: p, drive: port.HighZ, latch: port.Low}
	}

	return d, nil
}

// Board returns the pin table of the driver.
func (d *Driver) Board() Board {
	return d.board
}

// Setup initializes the lines once at boot:
// pull ups enabled, latches of the output signals high, Reset latch low,
// all lines released.
func (d *Driver) Setup() {
	for _, s := range port.Signals {
		l := &d.lines[s]
		if l.pin == nil {
			continue
		}

		if d.board.PullUp || s == port.Reset {
			l.pin.PullUp()
		} else {
			l.pin.PullNone()
		}

		l.pin.Input()
		l.drive = port.HighZ

		switch s {
		case port.Reset:
			l.pin.Low()
			l.latch = port.High
		case port.SecondaryIn:
			l.pin.Low()
			l.latch = port.Low
		default:
			l.pin.High()
			l.latch = port.High
		}
	}
}

// Read returns the instantaneous level of the line.
func (d *Driver) Read(s port.Signal) port.StateType {
	l := d.line(s)
	if l == nil {
		return port.Low
	}
	return port.Level(l.pin.Read())
}

// High writes a high level, see Write.
func (d *Driver) High(s port.Signal) {
	d.Write(s, port.High)
}

// Low writes a low level, see Write.
func (d *Driver) Low(s port.Signal) {
	d.Write(s, port.Low)
}

// Write sets the level of the signal.
// For Reset, Low asserts and High releases the line.
// For other signals the level is latched and driven while the output is enabled.
func (d *Driver) Write(s port.Signal, level port.StateType) {
	l := d.line(s)
	if l == nil {
		return
	}

	if s == port.Reset {
		if level == port.Low {
			l.pin.Low()
			l.pin.Output()
			l.drive = port.OpenDrain
		} else {
			l.pin.Input()
			l.drive = port.HighZ
		}
		l.latch = level
		return
	}

	if level == port.High {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	l.latch = level
}

// EnableOutput drives the signal with the latched level.
// SecondaryIn is input only and Reset is open drain, both are left unchanged.
func (d *Driver) EnableOutput(s port.Signal) {
	l := d.line(s)
	if l == nil || s == port.SecondaryIn || s == port.Reset {
		return
	}
	l.pin.Output()
	l.drive = port.PushPull
}

// EnableInput releases the signal. The latched level is kept for the next EnableOutput.
func (d *Driver) EnableInput(s port.Signal) {
	l := d.line(s)
	if l == nil {
		return
	}
	l.pin.Input()
	l.drive = port.HighZ
}

// Configure latches level and then applies the electrical mode of the signal.
// OpenDrain is only honored for Reset, it releases the line.
func (d *Driver) Configure(s port.Signal, drive port.Drive, level port.StateType) {
	l := d.line(s)
	if l == nil {
		return
	}

	switch {
	case s == port.Reset:
		// the reset latch stays low, open drain and high-z both release the line
		l.pin.Low()
		l.pin.Input()
		l.latch = port.High
		l.drive = port.HighZ
	case drive == port.PushPull:
		d.Write(s, level)
		d.EnableOutput(s)
	default:
		d.Write(s, level)
		d.EnableInput(s)
	}
}

// Float releases the signal.
func (d *Driver) Float(s port.Signal) {
	l := d.line(s)
	if l == nil {
		return
	}
	if s == port.Reset {
		d.Configure(s, port.OpenDrain, port.High)
		return
	}
	d.EnableInput(s)
}

// Drive returns the current electrical mode of the signal.
func (d *Driver) Drive(s port.Signal) port.Drive {
	l := d.line(s)
	if l == nil {
		return port.HighZ
	}
	return l.drive
}

// Latch returns the buffered output level of the signal.
// For Reset it is the requested level, High while released.
func (d *Driver) Latch(s port.Signal) port.StateType {
	l := d.line(s)
	if l == nil {
		return port.Low
	}
	return l.latch
}

func (d *Driver) line(s port.Signal) *line {
	if s < 0 || int(s) >= len(d.lines) || d.lines[s].pin == nil {
		return nil
	}
	return &d.lines[s]
}
