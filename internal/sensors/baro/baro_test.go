package baro

import (
	"errors"
	"testing"
)

type fakeReader struct {
	tempC, pressPa float64
	err            error
}

func (f *fakeReader) Read() (float64, float64, error) {
	return f.tempC, f.pressPa, f.err
}

func TestPoll_PublishesValidReading(t *testing.T) {
	r := &fakeReader{tempC: 20, pressPa: 101325}
	p := New(Config{MaxConsecutiveErrors: 3}, r)

	p.poll()

	got, ok := p.Latest()
	if !ok || !got.Valid {
		t.Fatalf("expected a valid reading, got ok=%v valid=%v", ok, got.Valid)
	}
	if got.AltitudeMMSL < -1 || got.AltitudeMMSL > 1 {
		t.Fatalf("AltitudeMMSL=%v want ~0 at sea-level pressure", got.AltitudeMMSL)
	}
}

func TestPoll_DropsValidityAfterConsecutiveErrors(t *testing.T) {
	r := &fakeReader{err: errors.New("i2c timeout")}
	p := New(Config{MaxConsecutiveErrors: 3}, r)
	p.last.Valid = true

	p.poll()
	if !p.last.Valid {
		t.Fatalf("validity should not drop before threshold")
	}
	p.poll()
	if !p.last.Valid {
		t.Fatalf("validity should not drop before threshold")
	}
	p.poll()
	if p.last.Valid {
		t.Fatalf("expected validity dropped after MaxConsecutiveErrors")
	}
}

func TestPoll_ErrorResetsCounterOnSuccess(t *testing.T) {
	r := &fakeReader{err: errors.New("transient")}
	p := New(Config{MaxConsecutiveErrors: 2}, r)
	p.last.Valid = true

	p.poll()
	if p.consecutiveErrs != 1 {
		t.Fatalf("consecutiveErrs=%d want 1", p.consecutiveErrs)
	}

	r.err = nil
	r.tempC, r.pressPa = 20, 101325
	p.poll()
	if p.consecutiveErrs != 0 {
		t.Fatalf("expected error counter reset on success, got %d", p.consecutiveErrs)
	}
	if !p.last.Valid {
		t.Fatalf("expected valid after successful read")
	}
}

func TestAltitudeFromPressure_MonotonicWithAltitude(t *testing.T) {
	seaLevel := 101325.0
	low := altitudeFromPressure(seaLevel, seaLevel)
	high := altitudeFromPressure(80000, seaLevel)
	if !(low < high) {
		t.Fatalf("expected altitude to increase as pressure drops: low=%v high=%v", low, high)
	}
}

func TestLatest_FalseBeforeFirstPoll(t *testing.T) {
	p := New(DefaultConfig(), &fakeReader{})
	_, ok := p.Latest()
	if ok {
		t.Fatalf("expected ok=false before any poll")
	}
}
