package fusion

import "time"

// Config holds every tunable of the fusion engine. Zero-value fields are
// filled with the defaults below by NewEngine.
type Config struct {
	// ZeroAGLAfter is the one-shot warm-up delay before AGL baselines arm.
	ZeroAGLAfter time.Duration

	// WeightBMP is the external-barometer weight in fused AGL (0..1).
	WeightBMP float32

	// VzAlpha is the EMA smoothing factor for the baro-derivative vertical
	// speed estimate.
	VzAlpha float32
	// VzMaxDt caps the per-tick delta time used in the derivative to bound
	// spikes on the first sample or after a stall.
	VzMaxDt time.Duration
	// VzLeak is the per-tick leak applied to the accel-integration vertical
	// speed estimate.
	VzLeak float32
	// VzFuseBeta biases the complementary vz blend toward the baro estimate.
	VzFuseBeta float32

	// TiltAzAlpha smooths the tilt-azimuth unit vector.
	TiltAzAlpha float32
	// TiltAzMinTiltDeg is the minimum tilt required before azimuth updates.
	TiltAzMinTiltDeg float32

	// SafeTApxFactor and SafeZApxFactor bias the apogee prediction early/low.
	SafeTApxFactor float32
	SafeZApxFactor float32

	// TiltMaxDeployDeg is the worst-case tilt used by the conservative Mach
	// proxy.
	TiltMaxDeployDeg float32
	// SOS10kftDeltaK is the fixed temperature lapse used to estimate SoS at
	// +10,000 ft.
	SOS10kftDeltaK float32
	// SOSMinFloor is the absolute floor for the conservative SoS bound.
	SOSMinFloor float32
}

// DefaultConfig returns the production defaults (§6 of the configuration
// table).
func DefaultConfig() Config {
	return Config{
		ZeroAGLAfter:     10 * time.Second,
		WeightBMP:        0.70,
		VzAlpha:          0.85,
		VzMaxDt:          200 * time.Millisecond,
		VzLeak:           0.02,
		VzFuseBeta:       0.20,
		TiltAzAlpha:      0.90,
		TiltAzMinTiltDeg: 2.0,
		SafeTApxFactor:   0.7,
		SafeZApxFactor:   0.8,
		TiltMaxDeployDeg: 20.0,
		SOS10kftDeltaK:   19.8,
		SOSMinFloor:      300.0,
	}
}

// BenchConfig returns the bench/desk-mode profile: same fusion math, a much
// shorter warm-up and a tighter Δt clamp so the engine settles quickly on a
// workbench.
func BenchConfig() Config {
	c := DefaultConfig()
	c.ZeroAGLAfter = 1500 * time.Millisecond
	c.VzMaxDt = 100 * time.Millisecond
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ZeroAGLAfter <= 0 {
		c.ZeroAGLAfter = d.ZeroAGLAfter
	}
	if c.WeightBMP == 0 {
		c.WeightBMP = d.WeightBMP
	}
	if c.VzAlpha == 0 {
		c.VzAlpha = d.VzAlpha
	}
	if c.VzMaxDt <= 0 {
		c.VzMaxDt = d.VzMaxDt
	}
	if c.VzLeak == 0 {
		c.VzLeak = d.VzLeak
	}
	if c.VzFuseBeta == 0 {
		c.VzFuseBeta = d.VzFuseBeta
	}
	if c.TiltAzAlpha == 0 {
		c.TiltAzAlpha = d.TiltAzAlpha
	}
	if c.TiltAzMinTiltDeg == 0 {
		c.TiltAzMinTiltDeg = d.TiltAzMinTiltDeg
	}
	if c.SafeTApxFactor == 0 {
		c.SafeTApxFactor = d.SafeTApxFactor
	}
	if c.SafeZApxFactor == 0 {
		c.SafeZApxFactor = d.SafeZApxFactor
	}
	if c.TiltMaxDeployDeg == 0 {
		c.TiltMaxDeployDeg = d.TiltMaxDeployDeg
	}
	if c.SOS10kftDeltaK == 0 {
		c.SOS10kftDeltaK = d.SOS10kftDeltaK
	}
	if c.SOSMinFloor == 0 {
		c.SOSMinFloor = d.SOSMinFloor
	}
	return c
}
