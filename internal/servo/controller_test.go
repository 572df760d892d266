package servo

import (
	"context"
	"testing"
	"time"

	"airbrakefc/internal/fc"
	"airbrakefc/internal/telemetry/wire"
)

type fakeBackend struct {
	pulses []uint16
	closed bool
}

func (f *fakeBackend) SetPulseUS(us uint16) error {
	f.pulses = append(f.pulses, us)
	return nil
}
func (f *fakeBackend) Close() error { f.closed = true; return nil }

type fakeRelay struct {
	states []bool
}

func (f *fakeRelay) SetAsserted(asserted bool) error {
	f.states = append(f.states, asserted)
	return nil
}

func windowRecord(ts uint32) wire.Record {
	return wire.Record{
		Header: wire.Header{TimestampMs: ts},
		System: wire.System{
			FcState:    uint8(fc.Window),
			SensImuAOK: 1, SensBmpOK: 1, SensImuBOK: 1,
			TToApogeeS: 10.0,
		},
		Fused: wire.Fused{
			AGLReady:         1,
			MachConservative: 0.1,
		},
	}
}

func TestTick_OpensWhenAllRequiredConditionsMet(t *testing.T) {
	drv := &fakeBackend{}
	c := New(DefaultConfig(), drv, nil)

	now := time.Now()
	pos := c.Tick(now, windowRecord(1))
	if pos.Open {
		t.Fatalf("first tick must treat prior timestamp as stalled and stay closed")
	}

	pos = c.Tick(now, windowRecord(2))
	if !pos.Open {
		t.Fatalf("expected open once required conditions are met on a non-stalled tick")
	}
	if pos.PulseUS != DefaultConfig().MaxPulseUS {
		t.Fatalf("PulseUS=%d want MaxPulseUS", pos.PulseUS)
	}
}

func TestTick_StalledTimestampForcesClosed(t *testing.T) {
	drv := &fakeBackend{}
	c := New(DefaultConfig(), drv, nil)
	now := time.Now()

	c.Tick(now, windowRecord(1))
	pos := c.Tick(now, windowRecord(2))
	if !pos.Open {
		t.Fatalf("setup: expected open before stall test")
	}

	// Same timestamp as previous tick: stall watchdog must force retract.
	stalled := windowRecord(2)
	pos = c.Tick(now, stalled)
	if pos.Open {
		t.Fatalf("expected forced-closed on stalled timestamp")
	}
	if !pos.Stalled {
		t.Fatalf("expected Stalled=true")
	}
}

func TestTick_DisqualifiedByAbortLockout(t *testing.T) {
	drv := &fakeBackend{}
	c := New(DefaultConfig(), drv, nil)
	now := time.Now()

	c.Tick(now, windowRecord(1))
	c.Tick(now, windowRecord(2))

	rec := windowRecord(3)
	rec.System.FcState = uint8(fc.AbortLockout)
	pos := c.Tick(now, rec)
	if pos.Open {
		t.Fatalf("expected closed when FSM state is AbortLockout")
	}
}

func TestTick_DisqualifiedByImminentApogee(t *testing.T) {
	drv := &fakeBackend{}
	c := New(DefaultConfig(), drv, nil)
	now := time.Now()

	c.Tick(now, windowRecord(1))
	rec := windowRecord(2)
	rec.System.TToApogeeS = 0.5
	pos := c.Tick(now, rec)
	if pos.Open {
		t.Fatalf("expected closed when TToApogeeS <= 1.0")
	}
}

func TestTick_NotRequiredOutsideWindowState(t *testing.T) {
	drv := &fakeBackend{}
	c := New(DefaultConfig(), drv, nil)
	now := time.Now()

	c.Tick(now, windowRecord(1))
	rec := windowRecord(2)
	rec.System.FcState = uint8(fc.Boost)
	pos := c.Tick(now, rec)
	if pos.Open {
		t.Fatalf("expected closed outside Window state")
	}
}

func TestTick_AbortRelayAssertsAndDeassertsOnEdge(t *testing.T) {
	drv := &fakeBackend{}
	rel := &fakeRelay{}
	c := New(DefaultConfig(), drv, rel)
	now := time.Now()

	c.Tick(now, windowRecord(1))
	c.Tick(now, windowRecord(2))
	if len(rel.states) != 0 {
		t.Fatalf("relay must not fire while not in AbortLockout, got %v", rel.states)
	}

	rec := windowRecord(3)
	rec.System.FcState = uint8(fc.AbortLockout)
	c.Tick(now, rec)
	if len(rel.states) != 1 || rel.states[0] != true {
		t.Fatalf("expected relay asserted exactly once on entering AbortLockout, got %v", rel.states)
	}

	// Staying in AbortLockout must not re-fire the relay (edge-triggered).
	c.Tick(now, rec)
	if len(rel.states) != 1 {
		t.Fatalf("expected no additional relay calls while state is unchanged, got %v", rel.states)
	}

	// Leaving AbortLockout deasserts once.
	back := windowRecord(4)
	c.Tick(now, back)
	if len(rel.states) != 2 || rel.states[1] != false {
		t.Fatalf("expected relay deasserted once on leaving AbortLockout, got %v", rel.states)
	}
}

func TestBootSweep_EndsAtMinPulse(t *testing.T) {
	drv := &fakeBackend{}
	cfg := DefaultConfig()
	cfg.SweepStepSlowDelay = time.Millisecond
	cfg.SweepStepFastDelay = time.Millisecond
	cfg.SweepStepMedDelay = time.Millisecond
	c := New(cfg, drv, nil)

	if err := c.BootSweep(context.Background()); err != nil {
		t.Fatalf("BootSweep: %v", err)
	}
	if len(drv.pulses) == 0 {
		t.Fatalf("expected BootSweep to issue pulses")
	}
	if drv.pulses[len(drv.pulses)-1] != cfg.MinPulseUS {
		t.Fatalf("expected sweep to end at MinPulseUS, got %d", drv.pulses[len(drv.pulses)-1])
	}
}

func TestBootSweep_RequiresBackend(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	if err := c.BootSweep(context.Background()); err == nil {
		t.Fatalf("expected error with no backend configured")
	}
}

func TestClose_ClosesBackend(t *testing.T) {
	drv := &fakeBackend{}
	c := New(DefaultConfig(), drv, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !drv.closed {
		t.Fatalf("expected backend Close called")
	}
}
