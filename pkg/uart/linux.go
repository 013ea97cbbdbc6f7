//go:build linux
// +build linux

package uart

import (
	"context"
	"fmt"

	"github.com/micromint/Simple-DAP/pkg/stream"

	"github.com/allbin/go-serial"
	"github.com/womat/debug"
)

// serialPort is the part of the serial port used by the bridge.
type serialPort interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
	WriteContext(ctx context.Context, p []byte) (int, error)
	Close() error
}

// device adapts a serial port to stream.Endpoint.
type device struct {
	port serialPort
}

func (d device) Read(ctx context.Context, p []byte) (int, error) {
	return d.port.ReadContext(ctx, p)
}

func (d device) Write(ctx context.Context, p []byte) (int, error) {
	return d.port.WriteContext(ctx, p)
}

// Open opens the serial device, 8N1 without flow control.
func Open(c Config) (*Port, error) {
	if c.Device == Loopback {
		return OpenLoopback(c), nil
	}

	sp, err := serial.Open(c.Device, serial.WithBaudRate(c.BaudRate))
	if err != nil {
		return nil, fmt.Errorf("open uart %q: %w", c.Device, err)
	}

	debug.InfoLog.Printf("uart %v opened, %v baud", c.Device, c.BaudRate)
	return &Port{
		Buffered: stream.New("uart", device{port: sp}, c.RingSize),
		closer:   sp.Close,
	}, nil
}
