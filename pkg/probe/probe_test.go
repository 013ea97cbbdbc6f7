package probe

import (
	"testing"

	"github.com/google/gousb"
)

func TestMatch(t *testing.T) {
	own := ID{VendorID: 0x1234, ProductID: 0x5678, Description: "configured"}
	ids := append([]ID{own}, Known...)

	tests := []struct {
		name    string
		vid     gousb.ID
		pid     gousb.ID
		want    string
		matched bool
	}{
		{"configured", 0x1234, 0x5678, "configured", true},
		{"daplink", 0x0d28, 0x0204, "DAPLink CMSIS-DAP", true},
		{"wrong product", 0x0d28, 0x0205, "", false},
		{"keyboard", 0x046d, 0xc31c, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := Match(&gousb.DeviceDesc{Vendor: tt.vid, Product: tt.pid}, ids)
			if ok != tt.matched || id.Description != tt.want {
				t.Errorf("got %+v, %v", id, ok)
			}
		})
	}
}

func TestProbeString(t *testing.T) {
	p := Probe{ID: Known[0], Bus: 1, Address: 7}
	if got, want := p.String(), "bus 001 device 007: 0d28:0204 DAPLink CMSIS-DAP"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
