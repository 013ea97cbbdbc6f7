// Package bridge copies bytes between the uart and the usb serial endpoint.
//
// Each call of Pump.Service moves one bounded chunk per direction. The chunk
// is limited by the free space the destination declares, by the data the
// source holds and by the scratch buffer size, so nothing is ever queued or
// dropped inside the pump and the call never blocks.
package bridge

import (
	"context"
	"sync/atomic"
)

// DefaultBufferSize is the scratch buffer size of a pump.
const DefaultBufferSize = 64

// Side is one end of the bridge.
type Side interface {
	// Free returns the number of bytes Write accepts now.
	Free() int
	// Read takes up to len(p) bytes without blocking.
	Read(p []byte) int
	// Write hands p to the side without blocking and returns the number of bytes taken.
	Write(p []byte) int
}

// Pump moves data between a host and a peripheral side.
type Pump struct {
	host       Side
	peripheral Side
	buf        []byte

	toPeripheral atomic.Uint64
	toHost       atomic.Uint64
	iterations   atomic.Uint64
}

// Counters are the transfer statistics of a pump.
type Counters struct {
	// ToPeripheral is the number of bytes sent from the host to the uart.
	ToPeripheral uint64
	// ToHost is the number of bytes sent from the uart to the host.
	ToHost uint64
	// Iterations is the number of Service calls.
	Iterations uint64
}

// New returns a pump with a scratch buffer of size bytes.
func New(host, peripheral Side, size int) *Pump {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Pump{
		host:       host,
		peripheral: peripheral,
		buf:        make([]byte, size),
	}
}

// Service runs one iteration: host to peripheral first, then peripheral to host.
// It reports whether any byte was moved.
func (p *Pump) Service(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.iterations.Add(1)

	up := p.transfer(p.host, p.peripheral)
	p.toPeripheral.Add(uint64(up))

	down := p.transfer(p.peripheral, p.host)
	p.toHost.Add(uint64(down))

	return up+down > 0, nil
}

// Counters returns the transfer statistics.
func (p *Pump) Counters() Counters {
	return Counters{
		ToPeripheral: p.toPeripheral.Load(),
		ToHost:       p.toHost.Load(),
		Iterations:   p.iterations.Load(),
	}
}

// transfer moves min(dst free, src available, len(buf)) bytes.
func (p *Pump) transfer(src, dst Side) int {
	n := dst.Free()
	if n > len(p.buf) {
		n = len(p.buf)
	}
	if n <= 0 {
		return 0
	}

	n = src.Read(p.buf[:n])
	if n == 0 {
		return 0
	}
	return dst.Write(p.buf[:n])
}
