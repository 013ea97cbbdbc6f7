package swj

import (
	"os"
	"testing"

	"github.com/micromint/Simple-DAP/pkg/pins"
	"github.com/micromint/Simple-DAP/pkg/port"
	"github.com/micromint/Simple-DAP/pkg/raspberry"

	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

var testBoard = pins.Board{
	Clock:        11,
	Data:         25,
	SecondaryOut: 10,
	SecondaryIn:  9,
	Reset:        24,
	PullUp:       true,
}

func newTestController(t *testing.T) (*Controller, *pins.Driver, *raspberry.SimGPIO) {
	t.Helper()
	sim := raspberry.NewSim()
	d, err := pins.New(sim, testBoard)
	if err != nil {
		t.Fatalf("pins.New failed: %v", err)
	}
	c := New(d)
	c.Setup()
	return c, d, sim
}

func TestSetupLeavesPortOff(t *testing.T) {
	c, _, sim := newTestController(t)

	if c.Mode() != port.Off {
		t.Fatalf("expected mode off, got %v", c.Mode())
	}
	for _, s := range port.Signals {
		if sim.IsOutput(testBoard.Pin(s)) {
			t.Errorf("%v: expected floated after Setup", s)
		}
	}
}

func TestConfigureSWD(t *testing.T) {
	c, d, sim := newTestController(t)

	c.Configure(port.SWD)

	if c.Mode() != port.SWD {
		t.Fatalf("expected mode swd, got %v", c.Mode())
	}
	for _, s := range []port.Signal{port.Clock, port.Data} {
		if !sim.IsOutput(testBoard.Pin(s)) {
			t.Errorf("%v: expected output", s)
		}
		if got := d.Read(s); got != port.High {
			t.Errorf("%v: expected high, got %v", s, got)
		}
	}
	for _, s := range []port.Signal{port.SecondaryOut, port.SecondaryIn, port.Reset} {
		if sim.IsOutput(testBoard.Pin(s)) {
			t.Errorf("%v: expected floated", s)
		}
	}
}

func TestConfigureJTAG(t *testing.T) {
	c, d, sim := newTestController(t)

	c.Configure(port.JTAG)

	for _, s := range []port.Signal{port.Clock, port.Data, port.SecondaryOut} {
		if !sim.IsOutput(testBoard.Pin(s)) {
			t.Errorf("%v: expected output", s)
		}
		if got := d.Read(s); got != port.High {
			t.Errorf("%v: expected high, got %v", s, got)
		}
	}
	if sim.IsOutput(testBoard.SecondaryIn) {
		t.Error("TDO: expected input")
	}
	if sim.IsOutput(testBoard.Reset) {
		t.Error("nRESET: expected released")
	}
	if got := d.Read(port.Reset); got != port.High {
		t.Errorf("nRESET: expected pulled up, got %v", got)
	}
}

// TestTransitionsPassThroughHighZ checks, for every pair of different modes,
// that each line is released at some point between leaving the old and
// entering the new configuration.
func TestTransitionsPassThroughHighZ(t *testing.T) {
	modes := []port.Mode{port.Off, port.SWD, port.JTAG}

	for _, from := range modes {
		for _, to := range modes {
			if from == to {
				continue
			}
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				c, _, sim := newTestController(t)
				c.Configure(from)

				floated := map[int]bool{}
				for _, s := range port.Signals {
					pin := testBoard.Pin(s)
					floated[pin] = !sim.IsOutput(pin)
				}

				sim.ClearEvents()
				c.Configure(to)

				for _, e := range sim.Events() {
					switch e.Type {
					case port.OutputDisabled:
						floated[e.Pin] = true
					case port.OutputEnabled:
						if !floated[e.Pin] {
							t.Errorf("pin %v enabled without passing high-z", e.Pin)
						}
					}
				}
				// the quiesce step releases every line before any is driven again
				firstDrive := -1
				lastRelease := -1
				for i, e := range sim.Events() {
					if e.Type == port.OutputEnabled && firstDrive < 0 {
						firstDrive = i
					}
					if e.Type == port.OutputDisabled {
						lastRelease = i
					}
				}
				if firstDrive >= 0 && lastRelease > firstDrive {
					t.Errorf("line released after another was driven (release %d, drive %d)", lastRelease, firstDrive)
				}
				for pin, ok := range floated {
					if !ok {
						t.Errorf("pin %v never floated", pin)
					}
				}
			})
		}
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	for _, mode := range []port.Mode{port.Off, port.SWD, port.JTAG} {
		t.Run(mode.String(), func(t *testing.T) {
			c, _, sim := newTestController(t)

			c.Configure(mode)
			sim.ClearEvents()
			c.Configure(mode)

			if n := len(sim.Events()); n != 0 {
				t.Errorf("expected no pin transitions, got %d: %+v", n, sim.Events())
			}
		})
	}
}

func TestResetNeverDrivenHigh(t *testing.T) {
	c, d, sim := newTestController(t)

	sequence := []port.Mode{port.JTAG, port.SWD, port.Off, port.SWD, port.JTAG, port.Off}
	for _, m := range sequence {
		c.Configure(m)
		d.Low(port.Reset)
		d.High(port.Reset)
	}

	for _, e := range sim.Events() {
		if e.Pin == testBoard.Reset && e.Driven(port.High) {
			t.Fatalf("nRESET driven high: %+v", e)
		}
	}
}

func TestUnknownModeIsOff(t *testing.T) {
	c, _, sim := newTestController(t)

	c.Configure(port.SWD)
	c.Configure(port.Mode(42))

	if c.Mode() != port.Off {
		t.Fatalf("expected off, got %v", c.Mode())
	}
	for _, s := range port.Signals {
		if sim.IsOutput(testBoard.Pin(s)) {
			t.Errorf("%v: expected floated", s)
		}
	}
}
