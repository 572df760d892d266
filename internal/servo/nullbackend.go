package servo

import "sync"

// NullBackend is a software-only Backend and AbortSink for bench/desk-mode
// runs with no actuator hardware attached: it accepts every command and
// simply remembers the last one for introspection.
type NullBackend struct {
	mu       sync.Mutex
	pulseUS  uint16
	asserted bool
}

func (b *NullBackend) SetPulseUS(us uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pulseUS = us
	return nil
}

func (b *NullBackend) Close() error { return nil }

func (b *NullBackend) SetAsserted(asserted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asserted = asserted
	return nil
}

// Snapshot returns the last commanded pulse width and abort-relay state.
func (b *NullBackend) Snapshot() (pulseUS uint16, asserted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulseUS, b.asserted
}
