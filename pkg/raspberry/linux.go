//go:build linux
// +build linux

package raspberry

import (
	"fmt"

	"github.com/warthog618/gpio"
	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

// RpiPin is a line of the BCM283x gpio register block.
type RpiPin struct {
	gpioPin *gpio.Pin
}

// RpiGPIO is the memory mapped gpio register block of the Raspberry Pi.
type RpiGPIO struct {
	// pins holds the lines handed out by NewPin
	pins map[int]*RpiPin
}

// Open GPIO memory range from /dev/gpiomem.
func Open() (*RpiGPIO, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}
	return &RpiGPIO{pins: map[int]*RpiPin{}}, nil
}

// Close switches all handed out lines back to input and unmaps GPIO memory
func (c *RpiGPIO) Close() (err error) {
	for _, p := range c.pins {
		p.gpioPin.Input()
	}
	c.pins = map[int]*RpiPin{}
	return gpio.Close()
}

// NewPin creates a new pin object.
// The pin number provided is the BCM GPIO number.
func (c *RpiGPIO) NewPin(p int) (Pin, error) {
	if p < 0 || p >= MaxPins {
		return nil, fmt.Errorf("pin %v: %w", p, ErrInvalidParam)
	}
	if _, ok := c.pins[p]; ok {
		return nil, fmt.Errorf("pin %v already used", p)
	}

	l := RpiPin{gpioPin: gpio.NewPin(p)}
	c.pins[p] = &l
	return c.pins[p], nil
}

// Input sets pin as Input.
func (p *RpiPin) Input() {
	p.gpioPin.Input()
}

// Output sets pin as Output, the line is driven with the level of the output latch.
func (p *RpiPin) Output() {
	p.gpioPin.Output()
}

// High sets the output latch (GPSET).
func (p *RpiPin) High() {
	p.gpioPin.High()
}

// Low clears the output latch (GPCLR).
func (p *RpiPin) Low() {
	p.gpioPin.Low()
}

// PullUp sets the pull state of the pin to PullUp
func (p *RpiPin) PullUp() {
	p.gpioPin.PullUp()
}

// PullNone disables the pull resistors of the pin
func (p *RpiPin) PullNone() {
	p.gpioPin.PullNone()
}

// Pin returns the pin number that this Pin represents.
func (p *RpiPin) Pin() int {
	return p.gpioPin.Pin()
}

// Read pin state (high/low)
func (p *RpiPin) Read() bool {
	return bool(p.gpioPin.Read())
}

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
}

// Line represents a single requested output line.
type Line struct {
	gpiodLine *gpiod.Line
	offset    int
}

// OpenChip opens a GPIO character device, e.g. gpiochip0.
func OpenChip(name, consumer string) (*Chip, error) {
	c, err := gpiod.NewChip(name, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, err
	}
	return &Chip{gpiodChip: c}, nil
}

// NewOutput requests control of a single line as output, initially low.
// If granted, control is maintained until the Line is closed.
func (c *Chip) NewOutput(offset int) (*Line, error) {
	l, err := c.gpiodChip.RequestLine(offset, gpiod.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request line %v: %w", offset, err)
	}
	return &Line{gpiodLine: l, offset: offset}, nil
}

// Set drives the line high (true) or low (false).
func (l *Line) Set(on bool) {
	v := 0
	if on {
		v = 1
	}
	if err := l.gpiodLine.SetValue(v); err != nil {
		debug.ErrorLog.Printf("set line %v: %v", l.offset, err)
	}
}

// Close releases the Chip.
//
// It does not release any lines which may be requested - they must be closed
// independently.
func (c *Chip) Close() error {
	return c.gpiodChip.Close()
}

// Close releases all resources held by the requested line.
func (l *Line) Close() error {
	return l.gpiodLine.Close()
}
