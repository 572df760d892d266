// Package fc implements the airbrake flight-controller finite-state
// machine: debounced sensor-validity gates, tilt-abort latch, liftoff/
// burnout detection, baro-agreement gate, conservative Mach gate, and the
// monotone-progress mission FSM with its two absorbing states.
package fc

import (
	"math"
	"time"
)

// Inputs is everything Step consumes on one tick.
type Inputs struct {
	DtMs  uint32
	NowMs uint32

	TiltDeg    float32
	AGLFusedM  float32
	VzFusedMps float32
	VzMps      float32
	AzImuAMps2 float32
	TApogeeS   float32
	ApogeeAGLM float32
	AGLReady   bool

	BaroAltitudeM float32
	ImuAltitudeM  float32

	ImuAValid bool
	BaroValid bool
	ImuBValid bool
}

// Outputs is everything Step produces on one tick.
type Outputs struct {
	State           State
	Flags           Flags
	AirbrakeCmdDeg  float32
	TSinceLaunchS   float32
	TToApogeeS      float32
	MachCons        float32
	TiltDeg         float32
}

// sensorDebounce holds the good/bad accumulators for one validity-gated
// sensor. Moved here (off a function-local static) so SoftReset via a fresh
// Context fully clears it.
type sensorDebounce struct {
	ok       bool
	goodAccMs uint32
	badAccMs  uint32
}

func (d *sensorDebounce) update(sampleOK bool, dtMs uint32, invalidMs, recoveryMs uint32) {
	if sampleOK {
		d.goodAccMs += dtMs
		d.badAccMs = 0
		if !d.ok && d.goodAccMs >= recoveryMs {
			d.ok = true
		}
	} else {
		d.badAccMs += dtMs
		d.goodAccMs = 0
		if d.ok && d.badAccMs >= invalidMs {
			d.ok = false
		}
	}
}

// Context is the flight controller's persistent state across ticks. The
// source kept three of these fields as function-local statics in its gate
// helpers (mach-gate latch, baro-agreement accumulator, liftoff/burnout
// latches); here they are ordinary Context fields so a fresh Context (soft
// reset) fully clears them instead of leaking process-global state across a
// reset.
type Context struct {
	cfg Config

	state   State
	flags   Flags
	tStateMs uint32
	tLaunchMs uint32
	tBurnoutMs uint32
	tDeployMs uint32
	tiltLatched bool

	machOKAccMs  uint32
	machOKLatched bool
	tiltBadAccMs uint32
	liftoffAccMs uint32
	burnoutAccMs uint32

	liftoffLatched bool
	burnoutLatched bool

	baroAgreeAccMs uint32

	imuA sensorDebounce
	baro sensorDebounce
	imuB sensorDebounce
}

// NewContext returns a Context in its power-on state (Preflight).
func NewContext(cfg Config) *Context {
	return &Context{cfg: cfg, state: Preflight}
}

// SoftReset clears the context to power-on defaults. Mission-progress
// one-shots (liftoff/burnout) are cleared with everything else.
func (c *Context) SoftReset() {
	cfg := c.cfg
	*c = Context{cfg: cfg, state: Preflight}
}

// State returns the current FSM label.
func (c *Context) State() State { return c.state }

// Step advances the flight controller by one tick.
func Step(ctx *Context, in Inputs) Outputs {
	mach := updateFlags(ctx, in)
	updateFSM(ctx, in)

	var cmdDeg float32
	if ctx.state == Deployed {
		cmdDeg = ctx.cfg.DeployCmdDeg
	}

	var tSinceLaunch float32
	if ctx.tLaunchMs > 0 {
		tSinceLaunch = float32(in.NowMs-ctx.tLaunchMs) * 0.001
	}

	return Outputs{
		State:          ctx.state,
		Flags:          ctx.flags,
		AirbrakeCmdDeg: cmdDeg,
		TSinceLaunchS:  tSinceLaunch,
		TToApogeeS:     in.TApogeeS,
		MachCons:       mach,
		TiltDeg:        in.TiltDeg,
	}
}

func updateFlags(ctx *Context, in Inputs) float32 {
	invalidMs := uint32(ctx.cfg.SensorInvalidDwell / time.Millisecond)
	recoveryMs := uint32(ctx.cfg.SensorRecoveryDwell / time.Millisecond)
	ctx.imuA.update(in.ImuAValid, in.DtMs, invalidMs, recoveryMs)
	ctx.baro.update(in.BaroValid, in.DtMs, invalidMs, recoveryMs)
	ctx.imuB.update(in.ImuBValid, in.DtMs, invalidMs, recoveryMs)

	// Tilt latch and gate.
	tilt := in.TiltDeg
	if !isNaN(tilt) {
		if tilt >= ctx.cfg.TiltAbortDeg {
			ctx.tiltBadAccMs += in.DtMs
			if ctx.tiltBadAccMs >= uint32(ctx.cfg.TiltAbortDwell/time.Millisecond) {
				ctx.tiltLatched = true
			}
		} else {
			ctx.tiltBadAccMs = 0
		}
	}

	// Conservative Mach proxy, worst-case tilt.
	vz := in.VzFusedMps
	if isNaN(vz) {
		vz = in.VzMps
	}
	mach := nanF32()
	if !isNaN(vz) {
		cth := float32(math.Cos(float64(ctx.cfg.TiltAbortDeg) * 0.01745329252))
		if cth < 0.1 {
			cth = 0.1
		}
		vBody := absF(vz) / cth
		mach = vBody / fcSOSFixedMps

		onTh := ctx.cfg.MachMaxForDeploy
		offTh := ctx.cfg.MachMaxForDeploy + ctx.cfg.MachHyst
		dwellMs := uint32(ctx.cfg.MachDwell / time.Millisecond)
		switch {
		case mach < onTh:
			ctx.machOKAccMs += in.DtMs
			if !ctx.machOKLatched && ctx.machOKAccMs >= dwellMs {
				ctx.machOKLatched = true
			}
		case mach > offTh:
			ctx.machOKAccMs = 0
			ctx.machOKLatched = false
		}
		setFlag(&ctx.flags, FlagMachOK, ctx.machOKLatched)
	}

	// Baro-agreement gate.
	if in.BaroValid && in.ImuAValid && !isNaN(in.BaroAltitudeM) && !isNaN(in.ImuAltitudeM) {
		diff := absF(in.BaroAltitudeM - in.ImuAltitudeM)
		if diff <= ctx.cfg.BaroAgreeM {
			ctx.baroAgreeAccMs += in.DtMs
			if ctx.baroAgreeAccMs >= uint32(ctx.cfg.BaroAgreeDwell/time.Millisecond) {
				ctx.flags |= FlagBaroAgree
			}
		} else {
			ctx.baroAgreeAccMs = 0
			ctx.flags &^= FlagBaroAgree
		}
	}

	setFlag(&ctx.flags, FlagSensImuAOK, ctx.imuA.ok)
	setFlag(&ctx.flags, FlagSensBaroOK, ctx.baro.ok)
	setFlag(&ctx.flags, FlagSensImuBOK, ctx.imuB.ok)
	setFlag(&ctx.flags, FlagTiltOK, !ctx.tiltLatched && !isNaN(tilt) && tilt <= ctx.cfg.TiltAbortDeg)
	setFlag(&ctx.flags, FlagTiltLatch, ctx.tiltLatched)

	return mach
}

func updateFSM(ctx *Context, in Inputs) {
	liftoffCond := false
	if !isNaN(in.VzFusedMps) && in.VzFusedMps > ctx.cfg.VzLiftoffMps {
		liftoffCond = true
	}
	if !isNaN(in.AzImuAMps2) && in.AzImuAMps2 > ctx.cfg.AzLiftoffMps2 {
		liftoffCond = true
	}
	if !isNaN(in.AGLFusedM) && in.AGLFusedM >= ctx.cfg.LiftoffMinAGLM {
		liftoffCond = true
	}
	if !ctx.liftoffLatched {
		if liftoffCond {
			ctx.liftoffAccMs += in.DtMs
			if ctx.liftoffAccMs >= uint32(ctx.cfg.LiftoffDwell/time.Millisecond) {
				ctx.liftoffLatched = true
				ctx.tLaunchMs = in.NowMs
				ctx.flags |= FlagLiftoffDet
			}
		} else {
			ctx.liftoffAccMs = 0
		}
	}

	if ctx.liftoffLatched && !ctx.burnoutLatched {
		if !isNaN(in.AzImuAMps2) && in.AzImuAMps2 <= ctx.cfg.BurnoutAzDoneMps2 {
			ctx.burnoutAccMs += in.DtMs
			if ctx.burnoutAccMs >= uint32(ctx.cfg.BurnoutDwell/time.Millisecond) {
				ctx.burnoutLatched = true
				ctx.tBurnoutMs = in.NowMs
				ctx.flags |= FlagBurnoutDet
			}
		} else {
			ctx.burnoutAccMs = 0
		}
	}

	switch ctx.state {
	case Preflight:
		if ctx.tiltLatched {
			ctx.state = AbortLockout
			ctx.tStateMs = in.NowMs
			break
		}
		if ctx.liftoffLatched {
			ctx.state = Boost
			ctx.tStateMs = in.NowMs
		}
	case Boost:
		if ctx.tiltLatched {
			ctx.state = AbortLockout
			ctx.tStateMs = in.NowMs
			break
		}
		if ctx.burnoutLatched {
			ctx.state = PostBurnHold
			ctx.tStateMs = in.NowMs
		}
	case PostBurnHold:
		if ctx.tiltLatched {
			ctx.state = AbortLockout
			ctx.tStateMs = in.NowMs
			break
		}
		if in.NowMs-ctx.tStateMs >= uint32(ctx.cfg.BurnoutHold/time.Millisecond) {
			ctx.state = Window
			ctx.tStateMs = in.NowMs
		}
	case Window:
		if ctx.tiltLatched {
			ctx.state = AbortLockout
			ctx.tStateMs = in.NowMs
			break
		}
		gatesOK := ctx.flags&FlagSensImuAOK != 0 && ctx.flags&FlagSensBaroOK != 0 &&
			ctx.flags&FlagTiltOK != 0 && ctx.flags&FlagMachOK != 0
		if !isNaN(in.AGLFusedM) && in.AGLFusedM >= ctx.cfg.MinDeployAGLM {
			if !isNaN(in.ApogeeAGLM) && in.ApogeeAGLM >= ctx.cfg.TargetApogeeAGLM+ctx.cfg.ApogeeHighMarginM {
				if gatesOK {
					ctx.state = Deployed
					ctx.tDeployMs = in.NowMs
					ctx.tStateMs = in.NowMs
				}
			}
		}
	case Deployed:
		if ctx.tiltLatched {
			ctx.state = AbortLockout
			ctx.tStateMs = in.NowMs
			break
		}
		if !isNaN(in.TApogeeS) && in.TApogeeS <= ctx.cfg.RetractBeforeApogeeS {
			ctx.state = Retracting
			ctx.tStateMs = in.NowMs
		} else if ctx.tLaunchMs > 0 {
			tSinceLaunch := float32(in.NowMs-ctx.tLaunchMs) * 0.001
			if tSinceLaunch > ctx.cfg.ExpectedTTAS*ctx.cfg.ExpectedTTAScaleTimeout {
				ctx.state = Retracting
				ctx.tStateMs = in.NowMs
			}
		}
	case Retracting:
		if ctx.tiltLatched {
			ctx.state = AbortLockout
			ctx.tStateMs = in.NowMs
			break
		}
		ctx.state = Locked
		ctx.tStateMs = in.NowMs
	case Locked, AbortLockout:
		// absorbing
	default:
		ctx.state = Safe
		ctx.tStateMs = in.NowMs
	}
}

const fcSOSFixedMps float32 = 300.0

func setFlag(f *Flags, bit Flags, on bool) {
	if on {
		*f |= bit
	} else {
		*f &^= bit
	}
}

func isNaN(v float32) bool  { return math.IsNaN(float64(v)) }
func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
func nanF32() float32 { return float32(math.NaN()) }
