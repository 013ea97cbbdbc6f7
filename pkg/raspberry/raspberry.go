// Package raspberry gives register level access to the gpio lines of the debug port
package raspberry

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParam = errors.New("invalid parameters")
	ErrNotSupported = errors.New("gpio backend not supported on this platform")
)

// MaxPins is the number of lines of the BCM283x gpio block.
const MaxPins = 54

// Backend names accepted by New.
const (
	BackendRpi = "rpi"
	BackendSim = "sim"
)

// GPIO is a bank of gpio lines.
type GPIO interface {
	// NewPin creates a new pin object. The pin number is the BCM GPIO number.
	NewPin(p int) (Pin, error)
	// Close releases the bank.
	Close() error
}

// Pin is a single gpio line.
// Level writes set the output latch, they reach the line only while the pin is an output.
type Pin interface {
	// Pin returns the pin number that this Pin represents.
	Pin() int
	// Input sets the pin as input (high impedance).
	Input()
	// Output sets the pin as output driving the latched level.
	Output()
	// High sets the output latch to high.
	High()
	// Low sets the output latch to low.
	Low()
	// Read returns the current level of the line.
	Read() bool
	// PullUp enables the pull up resistor.
	PullUp()
	// PullNone disables the pull resistors.
	PullNone()
}

// New opens the gpio bank of the named backend.
func New(backend string) (GPIO, error) {
	switch backend {
	case BackendRpi, "":
		g, err := Open()
		if err != nil {
			return nil, err
		}
		return g, nil
	case BackendSim:
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("gpio backend %q: %w", backend, ErrInvalidParam)
	}
}
