//go:build !linux || (!arm && !arm64)

package gpiorelay

import "fmt"

// Relay is the unsupported-platform stand-in.
type Relay struct{}

// Open always fails on non-Linux/non-ARM platforms.
func Open(chipPath string, pin int) (*Relay, error) {
	return nil, fmt.Errorf("gpiorelay: unsupported on this platform")
}

// SetAsserted always fails.
func (r *Relay) SetAsserted(asserted bool) error {
	return fmt.Errorf("gpiorelay: unsupported")
}

// Close is a no-op.
func (r *Relay) Close() error { return nil }
