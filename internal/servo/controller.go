// Package servo translates flight-controller state into an airbrake
// actuator command with a telemetry-stall watchdog, and drives the real
// PWM/GPIO backends adapted from the teacher's fan-control drivers.
package servo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"airbrakefc/internal/fc"
	"airbrakefc/internal/telemetry/wire"
)

// Backend is the minimal interface Controller needs from an actuator
// driver: a pulse width in microseconds.
type Backend interface {
	SetPulseUS(us uint16) error
	Close() error
}

// AbortSink receives an edge-triggered signal the tick the FSM first
// enters ABORT_LOCKOUT. Optional; nil is a valid no-op sink.
type AbortSink interface {
	SetAsserted(bool) error
}

// Position is the published actuator state.
type Position struct {
	Open      bool
	PulseUS   uint16
	Stalled   bool
	UpdatedAt time.Time
}

// Controller owns the open/closed decision and the real actuator backend.
type Controller struct {
	cfg Config
	drv Backend
	rel AbortSink

	mu           sync.RWMutex
	pos          Position
	lastTs       uint32
	haveLast     bool
	abortAsserted bool
}

// New returns a Controller driving drv (and optionally rel, an abort
// relay). drv must not be nil.
func New(cfg Config, drv Backend, rel AbortSink) *Controller {
	return &Controller{cfg: cfg, drv: drv, rel: rel}
}

// Snapshot returns the last published actuator position.
func (c *Controller) Snapshot() Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos
}

// Tick applies the stall watchdog, the required/disqualifier boolean logic,
// and drives the backend on a boolean edge only.
func (c *Controller) Tick(now time.Time, rec wire.Record) Position {
	stamp := rec.Header.TimestampMs

	stalled := !c.haveLast || stamp == c.lastTs
	c.haveLast = true
	c.lastTs = stamp

	var shouldOpen bool
	if !stalled {
		shouldOpen = c.decide(rec)
	}

	c.mu.Lock()
	prevOpen := c.pos.Open
	edge := shouldOpen != prevOpen || c.pos.UpdatedAt.IsZero()
	c.mu.Unlock()

	if edge {
		us := c.cfg.MinPulseUS
		if shouldOpen {
			us = c.cfg.MaxPulseUS
		}
		if c.drv != nil {
			_ = c.drv.SetPulseUS(us)
		}
		c.mu.Lock()
		c.pos = Position{Open: shouldOpen, PulseUS: us, Stalled: stalled, UpdatedAt: now}
		c.mu.Unlock()
	} else {
		c.mu.Lock()
		c.pos.Stalled = stalled
		c.pos.UpdatedAt = now
		c.mu.Unlock()
	}

	abortNow := fc.State(rec.System.FcState) == fc.AbortLockout
	c.mu.Lock()
	wasAsserted := c.abortAsserted
	c.abortAsserted = abortNow
	c.mu.Unlock()
	if c.rel != nil && abortNow != wasAsserted {
		_ = c.rel.SetAsserted(abortNow)
	}

	return c.Snapshot()
}

func (c *Controller) decide(rec wire.Record) bool {
	sys := rec.System
	state := fc.State(sys.FcState)

	requiredOK := sys.SensImuAOK != 0 && sys.SensBmpOK != 0 && sys.SensImuBOK != 0 &&
		rec.Fused.AGLReady != 0 && sys.TiltLatch == 0 &&
		!isNaN32(rec.Fused.MachConservative) && rec.Fused.MachConservative < 0.5 &&
		state != fc.Boost

	required := state == fc.Window && requiredOK

	disqualified := state == fc.AbortLockout || state == fc.Locked ||
		sys.SensImuAOK == 0 || sys.SensBmpOK == 0 || sys.SensImuBOK == 0 ||
		sys.TiltLatch != 0 ||
		(!isNaN32(sys.TToApogeeS) && sys.TToApogeeS <= 1.0)

	return required && !disqualified
}

// BootSweep runs the original firmware's hardware sanity sweep (slow, fast,
// medium, retract) once at startup, blocking until complete or ctx is done.
func (c *Controller) BootSweep(ctx context.Context) error {
	if c.drv == nil {
		return fmt.Errorf("servo: boot sweep: no backend configured")
	}
	steps := []struct {
		step  int
		delay time.Duration
	}{
		{c.cfg.SweepStepSlowUS, c.cfg.SweepStepSlowDelay},
		{c.cfg.SweepStepFastUS, c.cfg.SweepStepFastDelay},
		{c.cfg.SweepStepMedUS, c.cfg.SweepStepMedDelay},
	}
	for _, s := range steps {
		if err := c.sweepOnce(ctx, s.step, s.delay); err != nil {
			return err
		}
	}
	return c.drv.SetPulseUS(c.cfg.MinPulseUS)
}

func (c *Controller) sweepOnce(ctx context.Context, step int, delay time.Duration) error {
	for us := int(c.cfg.MinPulseUS); us <= int(c.cfg.MaxPulseUS); us += step {
		if err := c.drv.SetPulseUS(uint16(us)); err != nil {
			return err
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	for us := int(c.cfg.MaxPulseUS); us >= int(c.cfg.MinPulseUS); us -= step {
		if err := c.drv.SetPulseUS(uint16(us)); err != nil {
			return err
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the actuator backend.
func (c *Controller) Close() error {
	if c.drv == nil {
		return nil
	}
	return c.drv.Close()
}

func isNaN32(v float32) bool {
	return v != v
}
