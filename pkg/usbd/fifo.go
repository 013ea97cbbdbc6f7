//go:build linux
// +build linux

package usbd

import (
	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/device/hal/fifo"
	"github.com/womat/debug"
)

// NewFifoHAL returns the named pipe hal in the bus directory.
// A host side process attaches to the device through the pipes.
func NewFifoHAL(bus string) (hal.DeviceHAL, error) {
	h := fifo.New(bus)
	debug.DebugLog.Printf("usb fifo hal on bus %v", bus)
	return h, nil
}
