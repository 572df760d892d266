// Package baro adapts the BMP280 chip driver into a sensors.BaroProducer:
// a background polling goroutine publishing validated Baro readings under
// a mutex-guarded snapshot, clearing validity on sustained read failure.
package baro

import (
	"context"
	"math"
	"sync"
	"time"

	"airbrakefc/internal/period"
	"airbrakefc/internal/sensors"
	"airbrakefc/internal/sensors/bmp280"
)

// Reader is the minimal interface Producer needs from a barometer driver.
type Reader interface {
	Read() (tempC float64, pressPa float64, err error)
}

// Config controls polling cadence, the sea-level reference for altitude
// derivation, and the failure threshold before validity drops.
type Config struct {
	Period        time.Duration
	SeaLevelPa    float64
	MaxConsecutiveErrors int
}

// DefaultConfig matches the external barometer's nominal ≈10 Hz cadence.
func DefaultConfig() Config {
	return Config{
		Period:               100 * time.Millisecond,
		SeaLevelPa:           101325.0,
		MaxConsecutiveErrors: 3,
	}
}

// Producer polls a Reader on its own goroutine and publishes the latest
// validated sensors.Baro reading.
type Producer struct {
	cfg Config
	dev Reader

	mu   sync.RWMutex
	last sensors.Baro

	consecutiveErrs int
}

// New wraps dev (typically a *bmp280.Device) as a sensors.BaroProducer.
func New(cfg Config, dev Reader) *Producer {
	return &Producer{cfg: cfg, dev: dev}
}

// Latest implements sensors.BaroProducer.
func (p *Producer) Latest() (sensors.Baro, bool) {
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
	tempC, pressPa, err := p.dev.Read()
	now := time.Now()

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

	altM := altitudeFromPressure(pressPa, p.cfg.SeaLevelPa)
	p.last = sensors.Baro{
		Time:         now,
		TemperatureC: float32(tempC),
		PressurePa:   float32(pressPa),
		AltitudeMMSL: float32(altM),
		Valid:        true,
	}
}

// altitudeFromPressure applies the standard barometric formula.
func altitudeFromPressure(pressPa, seaLevelPa float64) float64 {
	if pressPa <= 0 || seaLevelPa <= 0 {
		return math.NaN()
	}
	return 44330.0 * (1.0 - math.Pow(pressPa/seaLevelPa, 1.0/5.255))
}

var _ sensors.BaroProducer = (*Producer)(nil)
var _ Reader = (*bmp280.Device)(nil)
