package fc

import "time"

// Config holds every gate threshold and dwell the flight controller uses.
// Zero-valued fields are filled in by NewContext's caller via
// DefaultConfig/BenchConfig.
type Config struct {
	MachMaxForDeploy float32
	MachHyst         float32
	MachDwell        time.Duration

	TiltAbortDeg   float32
	TiltAbortDwell time.Duration

	VzLiftoffMps    float32
	AzLiftoffMps2   float32
	LiftoffMinAGLM  float32
	LiftoffDwell    time.Duration

	BurnoutAzDoneMps2 float32
	BurnoutDwell      time.Duration
	BurnoutHold       time.Duration

	MinDeployAGLM       float32
	TargetApogeeAGLM    float32
	ApogeeHighMarginM   float32

	RetractBeforeApogeeS  float32
	ExpectedTTAS          float32
	ExpectedTTAScaleTimeout float32

	SensorInvalidDwell  time.Duration
	SensorRecoveryDwell time.Duration

	BaroAgreeM     float32
	BaroAgreeDwell time.Duration

	DeployCmdDeg float32
}

// DefaultConfig returns the production thresholds (§4.3/§6).
func DefaultConfig() Config {
	return Config{
		MachMaxForDeploy: 0.50,
		MachHyst:         0.02,
		MachDwell:        300 * time.Millisecond,

		TiltAbortDeg:   30.0,
		TiltAbortDwell: 200 * time.Millisecond,

		VzLiftoffMps:   8.0,
		AzLiftoffMps2:  15.0,
		LiftoffMinAGLM: 5.0,
		LiftoffDwell:   150 * time.Millisecond,

		BurnoutAzDoneMps2: 1.0,
		BurnoutDwell:      200 * time.Millisecond,
		BurnoutHold:       1500 * time.Millisecond,

		MinDeployAGLM:     200.0,
		TargetApogeeAGLM:  3048.0,
		ApogeeHighMarginM: 45.0,

		RetractBeforeApogeeS:    5.0,
		ExpectedTTAS:            18.0,
		ExpectedTTAScaleTimeout: 1.2,

		SensorInvalidDwell:  150 * time.Millisecond,
		SensorRecoveryDwell: 1500 * time.Millisecond,

		BaroAgreeM:     15.0,
		BaroAgreeDwell: 500 * time.Millisecond,

		DeployCmdDeg: 30.0,
	}
}

// BenchConfig returns the desk-mode profile: relaxed tilt/liftoff/burnout
// thresholds and tiny deploy altitudes so the whole FSM can be exercised on
// a workbench.
func BenchConfig() Config {
	return Config{
		MachMaxForDeploy: 0.50,
		MachHyst:         0.02,
		MachDwell:        50 * time.Millisecond,

		TiltAbortDeg:   75.0,
		TiltAbortDwell: 200 * time.Millisecond,

		VzLiftoffMps:   0.5,
		AzLiftoffMps2:  1.0,
		LiftoffMinAGLM: 0.20,
		LiftoffDwell:   50 * time.Millisecond,

		BurnoutAzDoneMps2: 0.3,
		BurnoutDwell:      120 * time.Millisecond,
		BurnoutHold:       400 * time.Millisecond,

		MinDeployAGLM:     0.20,
		TargetApogeeAGLM:  0.25,
		ApogeeHighMarginM: 0.05,

		RetractBeforeApogeeS:    0.5,
		ExpectedTTAS:            3.0,
		ExpectedTTAScaleTimeout: 1.1,

		SensorInvalidDwell:  80 * time.Millisecond,
		SensorRecoveryDwell: 200 * time.Millisecond,

		BaroAgreeM:     15.0,
		BaroAgreeDwell: 500 * time.Millisecond,

		DeployCmdDeg: 10.0,
	}
}
