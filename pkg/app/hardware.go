package app

import (
	"fmt"

	"github.com/micromint/Simple-DAP/pkg/led"
	"github.com/micromint/Simple-DAP/pkg/pins"
	"github.com/micromint/Simple-DAP/pkg/port"
	"github.com/micromint/Simple-DAP/pkg/raspberry"
	"github.com/micromint/Simple-DAP/pkg/swj"

	"github.com/womat/debug"
)

// openHardware requests the debug port lines and the indicator outputs.
func (app *App) openHardware() (err error) {
	cfg := app.config

	if app.gpio, err = raspberry.New(cfg.GPIO.Backend); err != nil {
		return fmt.Errorf("can't open gpio: %w", err)
	}

	if app.pins, err = pins.New(app.gpio, cfg.Board.Pins()); err != nil {
		return fmt.Errorf("can't open debug port: %w", err)
	}
	app.port = swj.New(app.pins)

	connected, running, err := app.openIndicators()
	if err != nil {
		return fmt.Errorf("can't open indicators: %w", err)
	}
	app.leds = led.New(connected, running)
	return nil
}

// openIndicators returns the outputs of the connected and running LEDs.
// The register backend drives them through the gpio character device,
// the sim backend through the simulated register file.
// Aliased indicators share one output.
func (app *App) openIndicators() (connected, running led.Output, err error) {
	b := app.config.Board
	aliased := led.Aliased(b.Connected, b.Running)

	var open func(n int) (led.Output, error)
	switch app.config.GPIO.Backend {
	case raspberry.BackendSim:
		open = func(n int) (led.Output, error) {
			p, err := app.gpio.NewPin(n)
			if err != nil {
				return nil, err
			}
			return led.NewPinOutput(p), nil
		}
	default:
		if app.chip, err = raspberry.OpenChip(app.config.GPIO.Chip, MODULE); err != nil {
			return nil, nil, err
		}
		open = func(n int) (led.Output, error) {
			l, err := app.chip.NewOutput(n)
			if err != nil {
				return nil, err
			}
			app.lines = append(app.lines, l)
			return l, nil
		}
	}

	if b.Connected >= 0 {
		if connected, err = open(b.Connected); err != nil {
			return nil, nil, err
		}
	}
	switch {
	case aliased:
		running = connected
	case b.Running >= 0:
		if running, err = open(b.Running); err != nil {
			return nil, nil, err
		}
	}

	debug.DebugLog.Printf("indicators connected %v, running %v", b.Connected, b.Running)
	return connected, running, nil
}

// closeHardware releases the port, switches the indicators off and frees all lines.
func (app *App) closeHardware() {
	if app.port != nil {
		app.port.Configure(port.Off)
	}
	if app.leds != nil {
		app.leds.SetConnected(false)
		app.leds.SetRunning(false)
	}
	for _, l := range app.lines {
		_ = l.Close()
	}
	if app.chip != nil {
		_ = app.chip.Close()
	}
	if app.gpio != nil {
		_ = app.gpio.Close()
	}
}
