// Package uart connects the serial bridge to a uart device.
package uart

import (
	"context"
	"errors"

	"github.com/micromint/Simple-DAP/pkg/stream"

	"github.com/womat/debug"
)

// ErrNotSupported is returned by Open on platforms without serial device support.
var ErrNotSupported = errors.New("uart not supported on this platform")

// Config holds the serial line settings.
type Config struct {
	Device   string
	BaudRate int
	// RingSize is the size of the receive and transmit rings.
	RingSize int
}

// Port is an open uart with non-blocking buffered access.
type Port struct {
	*stream.Buffered
	closer func() error
}

// Close closes the device. The stream goroutines stop with the context passed to Start.
func (p *Port) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Loopback is the device name of the built in echo device.
const Loopback = "loopback"

// echo returns every written byte on a later read.
type echo struct {
	c chan []byte
	// rest is the unread tail of the last chunk, only touched by Read
	rest []byte
}

func (e *echo) Read(ctx context.Context, p []byte) (int, error) {
	if len(e.rest) == 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case e.rest = <-e.c:
		}
	}
	n := copy(p, e.rest)
	e.rest = e.rest[n:]
	return n, nil
}

func (e *echo) Write(ctx context.Context, p []byte) (int, error) {
	b := append([]byte(nil), p...)
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case e.c <- b:
		return len(p), nil
	}
}

// OpenLoopback returns a port that echoes everything it transmits.
func OpenLoopback(c Config) *Port {
	debug.InfoLog.Print("uart loopback opened")
	return &Port{Buffered: stream.New("uart", &echo{c: make(chan []byte, 4)}, c.RingSize)}
}
