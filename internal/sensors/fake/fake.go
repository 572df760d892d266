// Package fake provides settable, mutex-guarded sensor producers, used by
// cmd/airbrakectl for IMU-A and in place of a barometer or IMU-B that
// could not be opened.
package fake

import (
	"sync"

	"airbrakefc/internal/sensors"
)

// Baro is a settable sensors.BaroProducer.
type Baro struct {
	mu   sync.RWMutex
	v    sensors.Baro
	have bool
}

func (p *Baro) Set(v sensors.Baro) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v = v
	p.have = true
}

func (p *Baro) Latest() (sensors.Baro, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v, p.have
}

// ImuA is a settable sensors.ImuAProducer.
type ImuA struct {
	mu   sync.RWMutex
	v    sensors.ImuA
	have bool
}

func (p *ImuA) Set(v sensors.ImuA) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v = v
	p.have = true
}

func (p *ImuA) Latest() (sensors.ImuA, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v, p.have
}

// ImuB is a settable sensors.ImuBProducer.
type ImuB struct {
	mu   sync.RWMutex
	v    sensors.ImuB
	have bool
}

func (p *ImuB) Set(v sensors.ImuB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v = v
	p.have = true
}

func (p *ImuB) Latest() (sensors.ImuB, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v, p.have
}
