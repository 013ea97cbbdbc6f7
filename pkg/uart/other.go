//go:build !linux
// +build !linux

package uart

import "fmt"

// Open is not supported on this platform.
func Open(c Config) (*Port, error) {
	if c.Device == Loopback {
		return OpenLoopback(c), nil
	}
	return nil, fmt.Errorf("open uart %q: %w", c.Device, ErrNotSupported)
}
