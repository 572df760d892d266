// Package period implements delay-until-next-period cooperative pacing:
// each tick sleeps to the next absolute period boundary rather than
// sleeping a fixed duration, so time spent inside a tick does not push
// later ticks back (no accumulated drift) as long as the tick finishes
// before the next boundary, mirroring FreeRTOS's
// vTaskDelayUntil rather than a plain ticker.
package period

import (
	"context"
	"time"
)

// Pacer paces a loop to fixed-period boundaries from a fixed start time.
type Pacer struct {
	period time.Duration
	start  time.Time
	n      uint64
}

// NewPacer returns a Pacer with its epoch at now.
func NewPacer(period time.Duration, now time.Time) *Pacer {
	return &Pacer{period: period, start: now}
}

// Next blocks until the next period boundary (start + n*period) or ctx is
// done, whichever comes first. If that boundary has already passed, it
// returns immediately and restarts the epoch at the current time, so later
// boundaries are measured from now rather than from the original start.
func (p *Pacer) Next(ctx context.Context) error {
	p.n++
	target := p.start.Add(time.Duration(p.n) * p.period)
	now := time.Now()
	if !target.After(now) {
		// Fell behind; resync epoch so future boundaries are relative to
		// now instead of drifting arbitrarily far behind.
		p.start = now
		p.n = 0
		return nil
	}
	t := time.NewTimer(target.Sub(now))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
