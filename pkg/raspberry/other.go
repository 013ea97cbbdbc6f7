//go:build !linux
// +build !linux

package raspberry

// Chip is not available without the linux gpio character device.
type Chip struct{}

// Line is not available without the linux gpio character device.
type Line struct{}

// Open is not supported on this platform, use the sim backend.
func Open() (GPIO, error) {
	return nil, ErrNotSupported
}

// OpenChip is not supported on this platform.
func OpenChip(name, consumer string) (*Chip, error) {
	return nil, ErrNotSupported
}

// NewOutput is not supported on this platform.
func (c *Chip) NewOutput(offset int) (*Line, error) {
	return nil, ErrNotSupported
}

// Set does nothing.
func (l *Line) Set(on bool) {}

// Close does nothing.
func (c *Chip) Close() error {
	return nil
}

// Close does nothing.
func (l *Line) Close() error {
	return nil
}
