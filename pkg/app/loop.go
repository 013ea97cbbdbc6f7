package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/micromint/Simple-DAP/pkg/port"

	"github.com/womat/debug"
)

// State is the phase of the dispatch loop.
type State int32

const (
	Booting State = iota
	WaitEnumeration
	StartupBlink
	Steady
	Stopped
)

func (s State) String() string {
	switch s {
	case Booting:
		return "booting"
	case WaitEnumeration:
		return "wait-enumeration"
	case StartupBlink:
		return "startup-blink"
	case Steady:
		return "steady"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// PortController is the port mode part used at boot.
type PortController interface {
	Setup()
	Configure(mode port.Mode)
}

// Indicator is the status LED pair.
type Indicator interface {
	SetConnected(on bool)
	SetRunning(on bool)
}

// USB is the device side usb stack.
type USB interface {
	Initialize(ctx context.Context) error
	Connect(on bool) error
	IsConfigured() bool
}

// Servicer runs one quantum of work and reports whether it did anything.
type Servicer interface {
	Service(ctx context.Context) (bool, error)
}

// Loop is the process lifetime control flow of the probe.
type Loop struct {
	Port      PortController
	Indicator Indicator
	USB       USB
	// BootPort is configured right after the port setup, Off leaves the port released.
	BootPort port.Mode
	// Services are invoked once per steady iteration, in order.
	Services []Servicer

	// Poll is the enumeration poll interval.
	Poll time.Duration
	// Idle is the pause after an iteration without work.
	Idle time.Duration
	// Blink is the on time of the startup blink.
	Blink time.Duration

	state      atomic.Int32
	iterations atomic.Uint64
	errors     atomic.Uint64

	// sleep waits d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

// State returns the current phase.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Iterations returns the number of steady iterations.
func (l *Loop) Iterations() uint64 {
	return l.iterations.Load()
}

// Errors returns the number of failed service quanta.
func (l *Loop) Errors() uint64 {
	return l.errors.Load()
}

// Run boots the hardware and services the transfer modes until ctx is done.
// It returns ctx.Err() after cancellation or the error of a failed boot step.
func (l *Loop) Run(ctx context.Context) error {
	if l.sleep == nil {
		l.sleep = sleepContext
	}
	defer l.setState(Stopped)

	l.setState(Booting)
	if err := l.boot(ctx); err != nil {
		return err
	}

	l.setState(WaitEnumeration)
	for !l.USB.IsConfigured() {
		if err := l.sleep(ctx, l.Poll); err != nil {
			return err
		}
	}
	debug.InfoLog.Print("usb device configured by host")

	l.setState(StartupBlink)
	l.Indicator.SetConnected(true)
	l.Indicator.SetRunning(true)
	err := l.sleep(ctx, l.Blink)
	l.Indicator.SetConnected(false)
	l.Indicator.SetRunning(false)
	if err != nil {
		return err
	}

	l.setState(Steady)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.iterations.Add(1)

		worked := false
		for _, s := range l.Services {
			ok, err := s.Service(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.errors.Add(1)
				debug.ErrorLog.Printf("service: %v", err)
			}
			worked = worked || ok
		}

		if !worked {
			if err := l.sleep(ctx, l.Idle); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) boot(ctx context.Context) error {
	l.Port.Setup()
	l.Indicator.SetConnected(false)
	l.Indicator.SetRunning(false)
	if l.BootPort != port.Off {
		l.Port.Configure(l.BootPort)
	}

	if err := l.USB.Initialize(ctx); err != nil {
		return fmt.Errorf("usb initialize: %w", err)
	}
	if err := l.USB.Connect(false); err != nil {
		return fmt.Errorf("usb disconnect: %w", err)
	}
	if err := l.USB.Connect(true); err != nil {
		return fmt.Errorf("usb connect: %w", err)
	}
	return nil
}

func (l *Loop) setState(s State) {
	if old := State(l.state.Swap(int32(s))); old != s {
		debug.DebugLog.Printf("dispatch loop %v -> %v", old, s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
