package usbd

import (
	"context"
	"time"

	"github.com/womat/debug"
)

// DefaultPacketSize is the CMSIS-DAP HID report size.
const DefaultPacketSize = 64

// ReportDescriptor returns the vendor defined report descriptor with
// input, output and feature reports of size bytes.
func ReportDescriptor(size int) []byte {
	n := byte(size)
	return []byte{
		0x06, 0x00, 0xFF, // Usage Page (Vendor Defined 0xFF00)
		0x09, 0x01, // Usage (0x01)
		0xA1, 0x01, // Collection (Application)
		0x15, 0x00, //   Logical Minimum (0)
		0x26, 0xFF, 0x00, //   Logical Maximum (255)
		0x75, 0x08, //   Report Size (8)
		0x95, n, //   Report Count (size)
		0x09, 0x01, //   Usage (0x01)
		0x81, 0x02, //   Input (Data, Variable, Absolute)
		0x95, n, //   Report Count (size)
		0x09, 0x01, //   Usage (0x01)
		0x91, 0x02, //   Output (Data, Variable, Absolute)
		0x95, 0x01, //   Report Count (1)
		0x09, 0x01, //   Usage (0x01)
		0xB1, 0x02, //   Feature (Data, Variable, Absolute)
		0xC0, // End Collection
	}
}

// Reports queues HID reports between the bus and the dispatch loop.
type Reports struct {
	d    *Device
	size int
	rx   chan []byte
	tx   chan []byte
}

func newReports(d *Device, size, count int) *Reports {
	return &Reports{
		d:    d,
		size: size,
		rx:   make(chan []byte, count),
		tx:   make(chan []byte, count),
	}
}

// Size returns the report size.
func (r *Reports) Size() int {
	return r.size
}

// Receive copies the oldest pending host report into p.
// It returns false if no report is pending.
func (r *Reports) Receive(p []byte) (int, bool) {
	select {
	case b := <-r.rx:
		return copy(p, b), true
	default:
		return 0, false
	}
}

// Send queues a report for the host, padded to the report size.
// It returns false if the queue is full.
func (r *Reports) Send(p []byte) bool {
	b := make([]byte, r.size)
	copy(b, p)
	select {
	case r.tx <- b:
		return true
	default:
		return false
	}
}

// Free returns the number of reports Send accepts now.
func (r *Reports) Free() int {
	return cap(r.tx) - len(r.tx)
}

func (r *Reports) start(ctx context.Context) {
	go r.receive(ctx)
	go r.send(ctx)
}

func (r *Reports) receive(ctx context.Context) {
	buf := make([]byte, r.size)
	for {
		if err := r.d.waitConfigured(ctx); err != nil {
			return
		}
		n, err := r.d.hid.ReceiveReport(ctx, buf)
		if err != nil {
			if !retry(ctx, "receive report", err) {
				return
			}
			continue
		}

		b := append([]byte(nil), buf[:n]...)
		select {
		case <-ctx.Done():
			return
		case r.rx <- b:
		}
	}
}

func (r *Reports) send(ctx context.Context) {
	for {
		var b []byte
		select {
		case <-ctx.Done():
			return
		case b = <-r.tx:
		}

		for {
			if err := r.d.waitConfigured(ctx); err != nil {
				return
			}
			err := r.d.hid.SendReport(ctx, b)
			if err == nil {
				break
			}
			if !retry(ctx, "send report", err) {
				return
			}
		}
	}
}

func retry(ctx context.Context, op string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	debug.DebugLog.Printf("hid %s: %v", op, err)

	t := time.NewTimer(pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
