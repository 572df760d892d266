//go:build linux && (arm || arm64)

// Package gpiorelay drives a digital GPIO line as an abort-relay output,
// adapted from the teacher's libgpiod fan-relay backend and repurposed to
// assert on ABORT_LOCKOUT entry instead of on fan demand.
package gpiorelay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Relay is a single digital output line.
type Relay struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// Open requests the named BCM GPIO line (e.g. 27) as an output on the
// given character-device chip, initially deasserted. Unlike a fan relay
// that might live on any of several header-adjacent chips depending on
// which hat is plugged in, the abort relay is wired to one known chip and
// line at board bring-up (recorded in the servo.abort_relay_chip config),
// so there is no candidate-chip scan here.
func Open(chipPath string, pin int) (*Relay, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("gpiorelay: invalid gpio pin %d", pin)
	}
	if chipPath == "" {
		return nil, fmt.Errorf("gpiorelay: no chip path configured")
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("gpiorelay: open chip %s: %w", chipPath, err)
	}
	offset, err := chip.FindLine(lineName)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpiorelay: line %q not found on %s: %w", lineName, chipPath, err)
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("airbrakefc-abort"))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpiorelay: request line %q on %s: %w", lineName, chipPath, err)
	}
	return &Relay{chip: chip, line: line}, nil
}

// SetAsserted drives the line high (asserted) or low.
func (r *Relay) SetAsserted(asserted bool) error {
	if r == nil || r.line == nil {
		return fmt.Errorf("gpiorelay: not initialized")
	}
	v := 0
	if asserted {
		v = 1
	}
	return r.line.SetValue(v)
}

// Close deasserts the line and releases the chip.
func (r *Relay) Close() error {
	if r == nil || r.line == nil {
		return nil
	}
	_ = r.line.SetValue(0)
	err := r.line.Close()
	r.line = nil
	if r.chip != nil {
		_ = r.chip.Close()
		r.chip = nil
	}
	return err
}
