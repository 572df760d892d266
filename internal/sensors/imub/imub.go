// Package imub adapts the ICM-20948 chip driver into a
// sensors.ImuBProducer: a background polling goroutine publishing
// validated raw accel/gyro/temperature readings.
package imub

import (
	"context"
	"sync"
	"time"

	"airbrakefc/internal/period"
	"airbrakefc/internal/sensors"
	"airbrakefc/internal/sensors/icm20948"
)

// Reader is the minimal interface Producer needs from an IMU-B driver.
type Reader interface {
	Read() (icm20948.Sample, error)
}

// Config controls polling cadence and the failure threshold before
// validity drops.
type Config struct {
	Period               time.Duration
	MaxConsecutiveErrors int
}

// DefaultConfig matches IMU-B's nominal ≈50 Hz cadence.
func DefaultConfig() Config {
	return Config{
		Period:               20 * time.Millisecond,
		MaxConsecutiveErrors: 3,
	}
}

// Producer polls a Reader on its own goroutine and publishes the latest
// validated sensors.ImuB reading.
type Producer struct {
	cfg Config
	dev Reader

	mu   sync.RWMutex
	last sensors.ImuB

	consecutiveErrs int
}

// New wraps dev (typically a *icm20948.Device) as a sensors.ImuBProducer.
func New(cfg Config, dev Reader) *Producer {
	return &Producer{cfg: cfg, dev: dev}
}

// Latest implements sensors.ImuBProducer.
func (p *Producer) Latest() (sensors.ImuB, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.last.Valid
}

// Run polls dev at cfg.Period until ctx is done, paced to absolute period
// boundaries so a slow read doesn't push the next one later.
func (p *Producer) Run(ctx context.Context) {
	pacer := period.NewPacer(p.cfg.Period, time.Now())
	for {
		if err := pacer.Next(ctx); err != nil {
			return
		}
		p.poll()
	}
}

func (p *Producer) poll() {
	s, err := p.dev.Read()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.consecutiveErrs++
		if p.consecutiveErrs >= p.cfg.MaxConsecutiveErrors {
			p.last.Valid = false
		}
		return
	}
	p.consecutiveErrs = 0

	p.last = sensors.ImuB{
		Time:       s.Time,
		AccelBodyG: [3]float32{float32(s.Ax), float32(s.Ay), float32(s.Az)},
		GyroDps:    [3]float32{float32(s.Gx), float32(s.Gy), float32(s.Gz)},
		TempC:      float32(s.TempC),
		Valid:      true,
	}
}

var _ sensors.ImuBProducer = (*Producer)(nil)
var _ Reader = (*icm20948.Device)(nil)
