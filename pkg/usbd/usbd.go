// Package usbd is the usb device side of the probe.
//
// It builds a composite device on the softusb stack: a CDC-ACM serial port
// on interfaces 0 and 1 and the CMSIS-DAP HID interface after it. Either
// function can be left out. The serial port and the HID report pipes are
// buffered so the dispatch loop never waits on the bus.
package usbd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micromint/Simple-DAP/pkg/stream"

	"github.com/ardnew/softusb/device"
	"github.com/ardnew/softusb/device/class/cdc"
	"github.com/ardnew/softusb/device/class/hid"
	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
	"github.com/womat/debug"
)

// configValue is the only configuration of the device.
const configValue = 1

// Endpoint addresses.
const (
	epHIDIn     = 0x81
	epHIDOut    = 0x01
	epCDCData   = 0x82
	epCDCOut    = 0x02
	epCDCNotify = 0x83
)

// pollInterval is the wait between two checks of the configured state.
const pollInterval = 10 * time.Millisecond

var (
	ErrNoFunction     = errors.New("neither hid nor cdc enabled")
	ErrNotInitialized = errors.New("usb device not initialized")
)

// Config describes the usb device.
type Config struct {
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
	// HID enables the CMSIS-DAP report interface.
	HID bool
	// CDC enables the serial port.
	CDC bool
	// PacketSize is the size of a HID report.
	PacketSize int
	// PacketCount is the number of reports buffered per direction.
	PacketCount int
	// RingSize is the size of the serial port rings.
	RingSize int
}

// SetLogOutput routes the usb stack log to w, at debug level if verbose.
func SetLogOutput(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	pkg.SetLogger(pkg.NewLogger(w, &slog.HandlerOptions{Level: level}))
}

// Interfaces lists the interface numbers the device uses, -1 if absent.
type Interfaces struct {
	CDCControl int
	CDCData    int
	HID        int
}

// Device is a usb device with optional serial port and HID report pipes.
type Device struct {
	config Config
	hal    hal.DeviceHAL
	ifaces Interfaces

	// dev is published once by Initialize and read by status readers
	dev   atomic.Pointer[device.Device]
	stack *device.Stack
	acm   *cdc.ACM
	hid   *hid.HID

	serial  *stream.Buffered
	reports *Reports

	mu        sync.Mutex
	ctx       context.Context
	connected atomic.Bool
}

// New returns a device on the hal. The serial port and report pipes exist
// right away, descriptors and transfers follow with Initialize.
func New(c Config, h hal.DeviceHAL) (*Device, error) {
	if !c.HID && !c.CDC {
		return nil, ErrNoFunction
	}
	if c.PacketSize <= 0 {
		c.PacketSize = DefaultPacketSize
	}
	if c.PacketCount <= 0 {
		c.PacketCount = 1
	}

	d := &Device{
		config: c,
		hal:    h,
		ifaces: Interfaces{CDCControl: -1, CDCData: -1, HID: -1},
	}

	n := 0
	if c.CDC {
		d.ifaces.CDCControl, d.ifaces.CDCData = n, n+1
		n += 2
	}
	if c.HID {
		d.ifaces.HID = n
		d.reports = newReports(d, c.PacketSize, c.PacketCount)
	}
	if c.CDC {
		d.serial = stream.New("cdc", acmEndpoint{d}, c.RingSize)
	}
	return d, nil
}

// Interfaces returns the interface numbers of the device.
func (d *Device) Interfaces() Interfaces {
	return d.ifaces
}

// Initialize builds the descriptors, attaches the class drivers and starts
// the buffering goroutines. The device stays detached until Connect.
func (d *Device) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.config
	builder := device.NewDeviceBuilder().
		WithVendorProduct(c.VendorID, c.ProductID).
		WithStrings(c.Manufacturer, c.Product, c.Serial).
		AddConfiguration(configValue)

	if c.CDC {
		d.acm = cdc.NewACM()
		d.acm.ConfigureDevice(builder, epCDCNotify, epCDCData, epCDCOut)
	}
	if c.HID {
		d.hid = hid.New(ReportDescriptor(c.PacketSize))
		d.hid.ConfigureDeviceWithOutEP(builder, epHIDIn, epHIDOut, hid.SubclassNone, hid.ProtocolNone)
	}

	dev, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build usb device: %w", err)
	}
	d.dev.Store(dev)

	if c.CDC {
		if err = d.acm.AttachToInterfaces(dev, configValue, uint8(d.ifaces.CDCControl), uint8(d.ifaces.CDCData)); err != nil {
			return fmt.Errorf("attach cdc: %w", err)
		}
	}
	if c.HID {
		if err = d.hid.AttachToInterface(dev, configValue, uint8(d.ifaces.HID)); err != nil {
			return fmt.Errorf("attach hid: %w", err)
		}
	}

	d.stack = device.NewStack(dev, d.hal)
	if c.CDC {
		d.acm.SetStack(d.stack)
		d.serial.Start(ctx)
	}
	if c.HID {
		d.hid.SetStack(d.stack)
		d.reports.start(ctx)
	}

	d.ctx = ctx
	debug.InfoLog.Printf("usb device %04x:%04x initialized, interfaces %+v", c.VendorID, c.ProductID, d.ifaces)
	return nil
}

// Connect attaches the device to the bus (true) or detaches it (false).
func (d *Device) Connect(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stack == nil {
		return ErrNotInitialized
	}

	if !on {
		if !d.connected.Swap(false) {
			return nil
		}
		debug.DebugLog.Print("usb disconnect")
		return d.stack.Stop()
	}

	if d.connected.Load() {
		return nil
	}
	if err := d.stack.Start(d.ctx); err != nil && !errors.Is(err, pkg.ErrAlreadyRunning) {
		return fmt.Errorf("start usb stack: %w", err)
	}
	d.connected.Store(true)
	debug.DebugLog.Print("usb connect")
	return nil
}

// IsConfigured reports whether the host has selected a configuration.
func (d *Device) IsConfigured() bool {
	dev := d.dev.Load()
	return dev != nil && dev.IsConfigured()
}

// Serial returns the serial port, nil without CDC.
func (d *Device) Serial() *stream.Buffered {
	return d.serial
}

// Reports returns the HID report pipes, nil without HID.
func (d *Device) Reports() *Reports {
	return d.reports
}

// Close detaches the device and releases the class drivers.
func (d *Device) Close() error {
	err := d.Connect(false)
	if errors.Is(err, ErrNotInitialized) {
		err = nil
	}
	if dev := d.dev.Load(); dev != nil {
		if cerr := dev.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// waitConfigured blocks until the device is configured or ctx is done.
func (d *Device) waitConfigured(ctx context.Context) error {
	for !d.IsConfigured() {
		t := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// acmEndpoint adapts the CDC-ACM data interface to stream.Endpoint.
// Transfers wait for the host to configure the device.
type acmEndpoint struct {
	d *Device
}

func (e acmEndpoint) Read(ctx context.Context, p []byte) (int, error) {
	if err := e.d.waitConfigured(ctx); err != nil {
		return 0, err
	}
	return e.d.acm.Read(ctx, p)
}

func (e acmEndpoint) Write(ctx context.Context, p []byte) (int, error) {
	if err := e.d.waitConfigured(ctx); err != nil {
		return 0, err
	}
	return e.d.acm.Write(ctx, p)
}
