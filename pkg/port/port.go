// Package port holds the definition of the physical debug port signals
package port

import (
	"fmt"
	"strings"
	"time"
)

// Signal is a logical line of the debug port.
// The same physical line serves SWD and JTAG under different names.
type Signal int

const (
	// Clock is SWCLK in SWD mode and TCK in JTAG mode.
	Clock Signal = iota
	// Data is SWDIO in SWD mode and TMS in JTAG mode.
	Data
	// SecondaryOut is TDI, unused in SWD mode.
	SecondaryOut
	// SecondaryIn is TDO, input only, unused in SWD mode.
	SecondaryIn
	// Reset is the open drain nRESET line of the target.
	Reset
)

// NumSignals is the number of logical signals.
const NumSignals = int(Reset) + 1

// Signals lists every logical signal in pin table order.
var Signals = []Signal{Clock, Data, SecondaryOut, SecondaryIn, Reset}

func (s Signal) String() string {
	switch s {
	case Clock:
		return "SWCLK/TCK"
	case Data:
		return "SWDIO/TMS"
	case SecondaryOut:
		return "TDI"
	case SecondaryIn:
		return "TDO"
	case Reset:
		return "nRESET"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Drive is the electrical mode of a line.
type Drive int

const (
	// HighZ releases the line, the pin is an input.
	HighZ Drive = iota
	// PushPull actively drives both levels.
	PushPull
	// OpenDrain only pulls the line low, a pull-up supplies the high level.
	OpenDrain
)

func (d Drive) String() string {
	switch d {
	case HighZ:
		return "high-z"
	case PushPull:
		return "push-pull"
	case OpenDrain:
		return "open-drain"
	default:
		return fmt.Sprintf("Drive(%d)", int(d))
	}
}

// EventType indicates the type of change of a physical pin.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates the output latch changed from low to high.
	RisingEdge
	// FallingEdge indicates the output latch changed from high to low.
	FallingEdge
	// OutputEnabled indicates the pin started to drive the line.
	OutputEnabled
	// OutputDisabled indicates the pin released the line (input / high impedance).
	OutputDisabled
)

func (t EventType) String() string {
	switch t {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	case OutputEnabled:
		return "output"
	case OutputDisabled:
		return "input"
	default:
		return "unknown"
	}
}

// Event is a recorded change of a physical pin.
type Event struct {
	// Timestamp indicates the time the event was recorded.
	Timestamp time.Duration
	// Pin is the physical pin number.
	Pin int
	// The type of change this structure represents.
	Type EventType
	// Output is true if the pin drives the line after the event.
	Output bool
	// Level is the output latch after the event.
	Level StateType
}

// Driven reports whether the line is actively driven to level after the event.
func (e Event) Driven(level StateType) bool {
	return e.Output && e.Level == level
}

type StateType int

const (
	// High indicates a logical 1.
	High StateType = 1
	// Low indicates a logical 0.
	Low StateType = 0
	// Invalid indicates an unknown or invalid state.
	Invalid StateType = -1
)

// Level converts a boolean pin reading to a StateType.
func Level(b bool) StateType {
	if b {
		return High
	}
	return Low
}

func (s StateType) String() string {
	switch s {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "invalid"
	}
}

// Mode is the active debug transport of the port.
type Mode int

const (
	// Off disables all debug port pins (high impedance).
	Off Mode = iota
	// SWD is Serial Wire Debug (DAP_Connect port 1).
	SWD
	// JTAG is IEEE 1149.1 (DAP_Connect port 2).
	JTAG
)

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case SWD:
		return "swd"
	case JTAG:
		return "jtag"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configuration string (off, swd, jtag) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return Off, nil
	case "swd":
		return SWD, nil
	case "jtag":
		return JTAG, nil
	default:
		return Off, fmt.Errorf("unknown port mode %q", s)
	}
}
