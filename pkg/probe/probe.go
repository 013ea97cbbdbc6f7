// Package probe finds CMSIS-DAP probes on the usb bus of the host.
package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
	"github.com/womat/debug"
)

// ID is a usb vendor and product id pair.
type ID struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

// Known lists well known CMSIS-DAP probes.
var Known = []ID{
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x2e8a, ProductID: 0x000c, Description: "Raspberry Pi CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
	{VendorID: 0xc251, ProductID: 0xf002, Description: "Keil ULINK CMSIS-DAP"},
}

// Probe is a probe found on the bus.
type Probe struct {
	ID
	Bus     int
	Address int
}

func (p Probe) String() string {
	return fmt.Sprintf("bus %03d device %03d: %04x:%04x %s", p.Bus, p.Address, p.VendorID, p.ProductID, p.Description)
}

// Match returns the entry of ids matching desc.
func Match(desc *gousb.DeviceDesc, ids []ID) (ID, bool) {
	for _, id := range ids {
		if uint16(desc.Vendor) == id.VendorID && uint16(desc.Product) == id.ProductID {
			return id, true
		}
	}
	return ID{}, false
}

// Discover lists the probes matching ids without opening them.
func Discover(ctx context.Context, ids []ID) ([]Probe, error) {
	usb := gousb.NewContext()
	defer func() { _ = usb.Close() }()

	var probes []Probe
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		if id, ok := Match(desc, ids); ok {
			probes = append(probes, Probe{ID: id, Bus: desc.Bus, Address: desc.Address})
			debug.DebugLog.Printf("found probe %04x:%04x on bus %v", id.VendorID, id.ProductID, desc.Bus)
		}
		return false
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return probes, fmt.Errorf("enumerate usb devices: %w", err)
	}
	return probes, ctx.Err()
}
