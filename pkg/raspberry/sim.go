package raspberry

import (
	"fmt"
	"sync"
	"time"

	"github.com/micromint/Simple-DAP/pkg/port"

	"github.com/boljen/go-bitmap"
)

// SimGPIO is an in-memory gpio register file.
// It models the direction, output latch and pull registers of a gpio block
// plus the level an external agent drives on each line, and records every
// change of a pin as port.Event.
type SimGPIO struct {
	mu sync.Mutex

	// dir is set for output pins
	dir bitmap.Bitmap
	// out is the output latch
	out bitmap.Bitmap
	// pull is set for pins with enabled pull up
	pull bitmap.Bitmap
	// ext is the level driven by an external agent, valid if extOn is set
	ext   bitmap.Bitmap
	extOn bitmap.Bitmap

	pins   map[int]*SimPin
	events []port.Event
	start  time.Time
}

// SimPin is a line of a SimGPIO.
type SimPin struct {
	sim *SimGPIO
	pin int
}

// NewSim returns a register file with all lines as inputs and latches low.
func NewSim() *SimGPIO {
	return &SimGPIO{
		dir:   bitmap.New(MaxPins),
		out:   bitmap.New(MaxPins),
		pull:  bitmap.New(MaxPins),
		ext:   bitmap.New(MaxPins),
		extOn: bitmap.New(MaxPins),
		pins:  map[int]*SimPin{},
		start: time.Now(),
	}
}

// Close switches all lines back to input.
func (s *SimGPIO) Close() error {
	for _, p := range s.pins {
		p.Input()
	}
	s.mu.Lock()
	s.pins = map[int]*SimPin{}
	s.mu.Unlock()
	return nil
}

// NewPin creates a new pin object.
func (s *SimGPIO) NewPin(p int) (Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p < 0 || p >= MaxPins {
		return nil, fmt.Errorf("pin %v: %w", p, ErrInvalidParam)
	}
	if _, ok := s.pins[p]; ok {
		return nil, fmt.Errorf("pin %v already used", p)
	}

	s.pins[p] = &SimPin{sim: s, pin: p}
	return s.pins[p], nil
}

// Drive emulates an external agent driving the line to level.
func (s *SimGPIO) Drive(pin int, level bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ext.Set(pin, level)
	s.extOn.Set(pin, true)
}

// Release stops the external agent driving the line.
func (s *SimGPIO) Release(pin int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extOn.Set(pin, false)
}

// IsOutput reports whether the pin drives the line.
func (s *SimGPIO) IsOutput(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Get(pin)
}

// Latch returns the output latch of the pin.
func (s *SimGPIO) Latch(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Get(pin)
}

// IsPulledUp reports whether the pull up of the pin is enabled.
func (s *SimGPIO) IsPulledUp(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pull.Get(pin)
}

// Events returns a copy of the recorded pin changes.
func (s *SimGPIO) Events() []port.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]port.Event(nil), s.events...)
}

// ClearEvents drops the recorded pin changes.
func (s *SimGPIO) ClearEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// record appends an event, s.mu must be held.
func (s *SimGPIO) record(pin int, t port.EventType) {
	s.events = append(s.events, port.Event{
		Timestamp: time.Since(s.start),
		Pin:       pin,
		Type:      t,
		Output:    s.dir.Get(pin),
		Level:     port.Level(s.out.Get(pin)),
	})
}

// read returns the level of the line, s.mu must be held.
// An undriven line without pull up reads low.
func (s *SimGPIO) read(pin int) bool {
	switch {
	case s.dir.Get(pin):
		return s.out.Get(pin)
	case s.extOn.Get(pin):
		return s.ext.Get(pin)
	default:
		return s.pull.Get(pin)
	}
}

func (p *SimPin) setDir(output bool) {
	s := p.sim
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir.Get(p.pin) == output {
		return
	}
	s.dir.Set(p.pin, output)
	if output {
		s.record(p.pin, port.OutputEnabled)
	} else {
		s.record(p.pin, port.OutputDisabled)
	}
}

func (p *SimPin) setLatch(level bool) {
	s := p.sim
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out.Get(p.pin) == level {
		return
	}
	s.out.Set(p.pin, level)
	if level {
		s.record(p.pin, port.RisingEdge)
	} else {
		s.record(p.pin, port.FallingEdge)
	}
}

// Pin returns the pin number that this Pin represents.
func (p *SimPin) Pin() int {
	return p.pin
}

// Input sets pin as Input.
func (p *SimPin) Input() {
	p.setDir(false)
}

// Output sets pin as Output.
func (p *SimPin) Output() {
	p.setDir(true)
}

// High sets the output latch.
func (p *SimPin) High() {
	p.setLatch(true)
}

// Low clears the output latch.
func (p *SimPin) Low() {
	p.setLatch(false)
}

// Read pin state (high/low)
func (p *SimPin) Read() bool {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.sim.read(p.pin)
}

// PullUp enables the pull up of the pin.
func (p *SimPin) PullUp() {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.sim.pull.Set(p.pin, true)
}

// PullNone disables the pull up of the pin.
func (p *SimPin) PullNone() {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.sim.pull.Set(p.pin, false)
}
