//go:build !linux
// +build !linux

package usbd

import (
	"errors"

	"github.com/ardnew/softusb/device/hal"
)

// NewFifoHAL is not supported on this platform.
func NewFifoHAL(bus string) (hal.DeviceHAL, error) {
	return nil, errors.New("usb fifo hal not supported on this platform")
}
