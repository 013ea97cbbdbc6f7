// Package stream turns a blocking byte endpoint into a non-blocking one.
//
// A Buffered stream runs the blocking reads and writes of its endpoint in
// own goroutines behind two bounded ring buffers. Callers only ever see the
// rings: Free and Available report their capacity, Read and Write never
// block and move at most what the rings can take.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/womat/debug"
)

// DefaultRingSize is the capacity of each ring if none is given.
const DefaultRingSize = 512

// retryDelay is the pause after a failed endpoint transfer.
const retryDelay = 10 * time.Millisecond

// Endpoint is a blocking byte transport, e.g. a serial port or a usb bulk pipe pair.
type Endpoint interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)
}

// Buffered is a non-blocking view of an Endpoint.
type Buffered struct {
	name string
	ep   Endpoint

	// rx holds bytes received from the endpoint
	rx *ringbuffer.RingBuffer
	// tx holds bytes waiting to be sent to the endpoint
	tx *ringbuffer.RingBuffer

	txReady chan struct{}
	rxSpace chan struct{}

	rxBytes atomic.Uint64
	txBytes atomic.Uint64
	errors  atomic.Uint64

	wg sync.WaitGroup
}

// Stats are the transfer counters of a stream.
type Stats struct {
	Received uint64
	Sent     uint64
	Errors   uint64
}

// New returns a stream over ep with rings of size bytes.
// Nothing is transferred before Start.
func New(name string, ep Endpoint, size int) *Buffered {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Buffered{
		name:    name,
		ep:      ep,
		rx:      ringbuffer.New(size),
		tx:      ringbuffer.New(size),
		txReady: make(chan struct{}, 1),
		rxSpace: make(chan struct{}, 1),
	}
}

// Start runs the endpoint goroutines until ctx is done.
func (b *Buffered) Start(ctx context.Context) {
	b.wg.Add(2)
	go b.receive(ctx)
	go b.send(ctx)
}

// Wait blocks until the goroutines started by Start have returned.
func (b *Buffered) Wait() {
	b.wg.Wait()
}

// Free returns the number of bytes Write accepts now.
func (b *Buffered) Free() int {
	return b.tx.Free()
}

// Available returns the number of bytes Read returns now.
func (b *Buffered) Available() int {
	return b.rx.Length()
}

// Read takes up to len(p) received bytes.
func (b *Buffered) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	n, err := b.rx.Read(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		debug.ErrorLog.Printf("%s: read ring: %v", b.name, err)
	}
	if n > 0 {
		signal(b.rxSpace)
	}
	return n
}

// Write queues up to len(p) bytes for the endpoint and returns the number queued.
func (b *Buffered) Write(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	// a partial write reports an error, the count is still valid
	n, _ := b.tx.Write(p)
	if n > 0 {
		signal(b.txReady)
	}
	return n
}

// Stats returns the transfer counters.
func (b *Buffered) Stats() Stats {
	return Stats{
		Received: b.rxBytes.Load(),
		Sent:     b.txBytes.Load(),
		Errors:   b.errors.Load(),
	}
}

// receive moves endpoint data into rx, it never reads more than rx can take.
func (b *Buffered) receive(ctx context.Context) {
	defer b.wg.Done()
	buf := make([]byte, b.rx.Capacity())

	for {
		free := b.rx.Free()
		if free == 0 {
			select {
			case <-ctx.Done():
				return
			case <-b.rxSpace:
				continue
			}
		}

		n, err := b.ep.Read(ctx, buf[:free])
		if n > 0 {
			// rx has a single writer, free can only have grown
			_, _ = b.rx.Write(buf[:n])
			b.rxBytes.Add(uint64(n))
		}
		if err != nil {
			if !b.pause(ctx, "read", err) {
				return
			}
		}
	}
}

// send drains tx into the endpoint.
func (b *Buffered) send(ctx context.Context) {
	defer b.wg.Done()
	buf := make([]byte, b.tx.Capacity())

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.txReady:
		}

		for {
			n, _ := b.tx.Read(buf)
			if n == 0 {
				break
			}
			if !b.writeAll(ctx, buf[:n]) {
				return
			}
		}
	}
}

func (b *Buffered) writeAll(ctx context.Context, p []byte) bool {
	for len(p) > 0 {
		n, err := b.ep.Write(ctx, p)
		if n > 0 {
			b.txBytes.Add(uint64(n))
			p = p[n:]
		}
		if err != nil {
			if !b.pause(ctx, "write", err) {
				return false
			}
		}
	}
	return true
}

// pause logs a transfer error and waits before the next attempt.
// It returns false if ctx is done.
func (b *Buffered) pause(ctx context.Context, op string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	b.errors.Add(1)
	debug.DebugLog.Printf("%s: %s: %v", b.name, op, err)

	t := time.NewTimer(retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
