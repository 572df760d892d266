package fusion

import "time"

// Snapshot is the published output of one fusion tick. It is always
// published by value; callers never retain references into engine state.
type Snapshot struct {
	Time    time.Time
	StampMs uint32

	AGLReady bool

	BmpAltM  float32
	ImuAltM  float32
	AGLBmpM  float32
	AGLImuM  float32
	AGLFused float32

	VzBaro  float32
	VzAcc   float32
	VzFused float32
	AzEarth float32

	TempC    float32
	PressHpa float32

	SOSDynamic    float32
	SOSGround     float32
	SOS10kft      float32
	SOSMin        float32
	MachDynamic   float32
	MachConservative float32

	Yaw, Pitch, Roll float32
	Tilt             float32
	TiltAz           float32
	TiltAz360        float32
	TiltAzUnwrapped  float32

	TToApogeeS  float32
	ApogeeAGLM  float32
}
