package imub

import (
	"errors"
	"testing"

	"airbrakefc/internal/sensors/icm20948"
)

type fakeReader struct {
	sample icm20948.Sample
	err    error
}

func (f *fakeReader) Read() (icm20948.Sample, error) {
	return f.sample, f.err
}

func TestPoll_PublishesMappedFields(t *testing.T) {
	r := &fakeReader{sample: icm20948.Sample{
		Ax: 0.1, Ay: 0.2, Az: 0.9,
		Gx: 1, Gy: -1, Gz: 0.5,
		TempC: 23.5,
	}}
	p := New(Config{MaxConsecutiveErrors: 3}, r)

	p.poll()

	got, ok := p.Latest()
	if !ok || !got.Valid {
		t.Fatalf("expected valid reading, got ok=%v valid=%v", ok, got.Valid)
	}
	if got.AccelBodyG != [3]float32{0.1, 0.2, 0.9} {
		t.Fatalf("AccelBodyG=%v want [0.1 0.2 0.9]", got.AccelBodyG)
	}
	if got.GyroDps != [3]float32{1, -1, 0.5} {
		t.Fatalf("GyroDps=%v want [1 -1 0.5]", got.GyroDps)
	}
	if got.TempC != 23.5 {
		t.Fatalf("TempC=%v want 23.5", got.TempC)
	}
}

func TestPoll_DropsValidityAfterConsecutiveErrors(t *testing.T) {
	r := &fakeReader{err: errors.New("spi timeout")}
	p := New(Config{MaxConsecutiveErrors: 2}, r)
	p.last.Valid = true

	p.poll()
	if !p.last.Valid {
		t.Fatalf("validity should not drop before threshold")
	}
	p.poll()
	if p.last.Valid {
		t.Fatalf("expected validity dropped after MaxConsecutiveErrors")
	}
}

func TestLatest_FalseBeforeFirstPoll(t *testing.T) {
	p := New(DefaultConfig(), &fakeReader{})
	_, ok := p.Latest()
	if ok {
		t.Fatalf("expected ok=false before any poll")
	}
}
