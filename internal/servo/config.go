package servo

import "time"

// Config holds actuator endpoints and the boot-sweep timings, adapted from
// the original firmware's actuator configuration constants.
type Config struct {
	MinPulseUS uint16
	MaxPulseUS uint16

	TaskPeriod time.Duration

	SweepStepSlowDelay time.Duration
	SweepStepFastDelay time.Duration
	SweepStepMedDelay  time.Duration
	SweepStepSlowUS    int
	SweepStepFastUS    int
	SweepStepMedUS     int
}

// DefaultConfig mirrors actuators_config.h.
func DefaultConfig() Config {
	return Config{
		MinPulseUS: 1000,
		MaxPulseUS: 1400,
		TaskPeriod: 20 * time.Millisecond,

		SweepStepSlowDelay: 15 * time.Millisecond,
		SweepStepFastDelay: 5 * time.Millisecond,
		SweepStepMedDelay:  10 * time.Millisecond,
		SweepStepSlowUS:    10,
		SweepStepFastUS:    20,
		SweepStepMedUS:     10,
	}
}
