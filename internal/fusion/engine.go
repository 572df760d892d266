// Package fusion derives altitude-above-ground, vertical kinematics, tilt
// and atmospherics from sensor readings, and predicts apogee with an
// intentional early/low safety bias.
package fusion

import (
	"math"
	"sync"
	"time"

	"airbrakefc/internal/sensors"
)

// Engine owns all filter state for one fusion task. It is driven by calling
// Tick once per period; Snapshot and SoftReset are safe to call from other
// goroutines.
type Engine struct {
	cfg Config

	mu   sync.RWMutex
	snap Snapshot

	resetCh chan struct{}

	start time.Time

	aglArmed bool
	aglArmAt time.Time
	aglReady bool
	baseBmpM float32
	baseImuM float32

	havePrevAlt bool
	prevAlt     float32
	prevTime    time.Time
	vzFilt      float32
	vzAcc       float32

	haveTiltAz      bool
	tiltAzX         float32
	tiltAzY         float32
	haveTiltAzAcc   bool
	tiltAzPrevDeg   float32
	tiltAzUnwrapped float32

	haveSOSRefs  bool
	sosGroundMps float32
	sos10kftMps  float32
	sosMinMps    float32
}

// NewEngine returns an Engine ready to Tick. cfg is filled with defaults for
// any zero-valued field.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		resetCh:   make(chan struct{}, 1),
		baseBmpM:  float32(math.NaN()),
		baseImuM:  float32(math.NaN()),
		vzFilt:    float32(math.NaN()),
		sosMinMps: cfg.SOSMinFloor,
	}
}

// SoftReset requests an asynchronous clear of all filter state. It takes
// effect atomically at the start of the next Tick.
func (e *Engine) SoftReset() {
	select {
	case e.resetCh <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the most recently published fusion output.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

func (e *Engine) applyReset() {
	e.aglArmed = false
	e.aglArmAt = time.Time{}
	e.aglReady = false
	e.baseBmpM = float32(math.NaN())
	e.baseImuM = float32(math.NaN())

	e.havePrevAlt = false
	e.prevAlt = float32(math.NaN())
	e.prevTime = time.Time{}
	e.vzFilt = float32(math.NaN())
	e.vzAcc = 0

	e.haveTiltAz = false
	e.tiltAzX = float32(math.NaN())
	e.tiltAzY = float32(math.NaN())
	e.haveTiltAzAcc = false
	e.tiltAzPrevDeg = 0
	e.tiltAzUnwrapped = 0

	e.haveSOSRefs = false
	e.sosGroundMps = float32(math.NaN())
	e.sos10kftMps = float32(math.NaN())
	e.sosMinMps = e.cfg.SOSMinFloor

	e.mu.Lock()
	e.snap = Snapshot{Time: e.snap.Time}
	e.mu.Unlock()
}

// Tick recomputes the entire fused snapshot from the latest raw readings and
// publishes it. now must be monotonic; callers own the pacing.
func (e *Engine) Tick(now time.Time, baro sensors.Baro, imuA sensors.ImuA) Snapshot {
	select {
	case <-e.resetCh:
		e.applyReset()
	default:
	}

	if e.start.IsZero() {
		e.start = now
	}

	vb := baro.Valid
	vi := imuA.Valid
	var bmpAlt, imuAlt float32 = float32(math.NaN()), float32(math.NaN())
	if vb {
		bmpAlt = baro.AltitudeMMSL
	}
	if vi {
		imuAlt = imuA.AltitudeMMSL
	}

	if !e.aglArmed {
		e.aglArmAt = now.Add(e.cfg.ZeroAGLAfter)
		e.aglArmed = true
	}
	if !e.aglReady && !now.Before(e.aglArmAt) {
		e.aglReady = true
	}
	if e.aglReady {
		if math.IsNaN(float64(e.baseBmpM)) && isFiniteF32(bmpAlt) {
			e.baseBmpM = bmpAlt
		}
		if math.IsNaN(float64(e.baseImuM)) && isFiniteF32(imuAlt) {
			e.baseImuM = imuAlt
		}
	}

	var aglBmp, aglImu, aglFused float32 = nanF(), nanF(), nanF()
	if e.aglReady {
		if isFiniteF32(e.baseBmpM) && isFiniteF32(bmpAlt) {
			aglBmp = bmpAlt - e.baseBmpM
		}
		if isFiniteF32(e.baseImuM) && isFiniteF32(imuAlt) {
			aglImu = imuAlt - e.baseImuM
		}
		switch {
		case isFiniteF32(aglBmp) && isFiniteF32(aglImu):
			aglFused = e.cfg.WeightBMP*aglBmp + (1-e.cfg.WeightBMP)*aglImu
		case isFiniteF32(aglBmp):
			aglFused = aglBmp
		case isFiniteF32(aglImu):
			aglFused = aglImu
		}
	}

	// Vertical speed from the AGL derivative (EMA).
	var vz float32 = nanF()
	var dtForStep float32 = nanF()
	if e.aglReady && isFiniteF32(aglFused) {
		if e.havePrevAlt {
			dt := now.Sub(e.prevTime)
			if dt < time.Millisecond {
				dt = time.Millisecond
			}
			if dt > e.cfg.VzMaxDt {
				dt = e.cfg.VzMaxDt
			}
			dtForStep = float32(dt.Seconds())
			instVz := (aglFused - e.prevAlt) / dtForStep
			if math.IsNaN(float64(e.vzFilt)) {
				e.vzFilt = instVz
			}
			e.vzFilt = e.cfg.VzAlpha*e.vzFilt + (1-e.cfg.VzAlpha)*instVz
			vz = e.vzFilt
		}
		e.prevAlt = aglFused
		e.prevTime = now
		e.havePrevAlt = true
	} else {
		e.havePrevAlt = false
		e.vzFilt = nanF()
	}

	// Vertical acceleration from IMU-A, earth frame, optionally integrated.
	var azEarth float32 = nanF()
	if vi {
		vBody := [3]float32{
			imuA.AccelBodyG[0] * earthG,
			imuA.AccelBodyG[1] * earthG,
			imuA.AccelBodyG[2] * earthG,
		}
		vEarth := rotateVecByQuat(imuA.QuatWXYZ, vBody)
		azEarth = vEarth[2] - earthG

		if isFiniteF32(azEarth) && e.havePrevAlt {
			dt := dtForStep
			if math.IsNaN(float64(dt)) {
				dt = float32(e.cfg.VzMaxDt.Seconds())
			}
			e.vzAcc = (1-e.cfg.VzLeak)*e.vzAcc + azEarth*dt
		} else if !e.havePrevAlt {
			e.vzAcc = 0
		}
	}

	// Atmospherics.
	var tempC, pressHpa, sos, machVz float32 = nanF(), nanF(), nanF(), nanF()
	if vb {
		tempC = baro.TemperatureC
		pressHpa = baro.PressurePa / 100.0
	}
	if isFiniteF32(tempC) {
		sos = speedOfSound(tempC)
		if isFiniteF32(vz) {
			machVz = absF32(vz) / sos
		}
	}

	if !e.haveSOSRefs && vb {
		t0 := float64(baro.TemperatureC) + 273.15
		sosGround := float32(math.Sqrt(1.4 * 287.05 * t0))
		t10k := t0 - float64(e.cfg.SOS10kftDeltaK)
		if t10k < 150 {
			t10k = 150
		}
		sos10kft := float32(math.Sqrt(1.4 * 287.05 * t10k))
		e.sosGroundMps = sosGround
		e.sos10kftMps = sos10kft
		e.sosMinMps = maxF32(e.cfg.SOSMinFloor, minF32(sosGround, sos10kft))
		e.haveSOSRefs = true
	}

	// Apogee prediction, biased early/low.
	var tApx, zApx float32 = nanF(), nanF()
	if e.aglReady && isFiniteF32(aglFused) && isFiniteF32(vz) {
		if vz > 0 {
			tApx = e.cfg.SafeTApxFactor * (vz / earthG)
			zApx = aglFused + e.cfg.SafeZApxFactor*(vz*vz)/(2*earthG)
		} else {
			tApx = 0
			zApx = aglFused
		}
	}

	// Attitude: Euler for display, tilt/azimuth from the quaternion directly.
	var yaw, pitch, roll float32 = nanF(), nanF(), nanF()
	var tilt, tiltAz, tiltAz360, tiltAzUnwrapped float32 = nanF(), nanF(), nanF(), nanF()
	if vi {
		yaw, pitch, roll = quatToEuler(imuA.QuatWXYZ)

		xEarth := rotateVecByQuat(imuA.QuatWXYZ, [3]float32{1, 0, 0})
		cz := clampF32(xEarth[2], -1, 1)
		tilt = float32(math.Acos(float64(cz)) * 57.2957795)

		h2 := xEarth[0]*xEarth[0] + xEarth[1]*xEarth[1]
		h := float32(math.Sqrt(float64(h2)))
		if tilt >= e.cfg.TiltAzMinTiltDeg && h > 1e-4 {
			hx, hy := xEarth[0]/h, xEarth[1]/h
			if !e.haveTiltAz || math.IsNaN(float64(e.tiltAzX)) || math.IsNaN(float64(e.tiltAzY)) {
				e.tiltAzX, e.tiltAzY = hx, hy
				e.haveTiltAz = true
			} else {
				e.tiltAzX = e.cfg.TiltAzAlpha*e.tiltAzX + (1-e.cfg.TiltAzAlpha)*hx
				e.tiltAzY = e.cfg.TiltAzAlpha*e.tiltAzY + (1-e.cfg.TiltAzAlpha)*hy
				n := float32(math.Sqrt(float64(e.tiltAzX*e.tiltAzX + e.tiltAzY*e.tiltAzY)))
				if n > 1e-6 {
					e.tiltAzX /= n
					e.tiltAzY /= n
				}
			}
			tiltAz = float32(math.Atan2(float64(e.tiltAzY), float64(e.tiltAzX)) * 57.2957795)
		} else if e.haveTiltAz {
			tiltAz = float32(math.Atan2(float64(e.tiltAzY), float64(e.tiltAzX)) * 57.2957795)
		}

		if isFiniteF32(tiltAz) {
			if tiltAz < 0 {
				tiltAz360 = tiltAz + 360
			} else {
				tiltAz360 = tiltAz
			}
			if !e.haveTiltAzAcc {
				e.tiltAzPrevDeg = tiltAz
				e.tiltAzUnwrapped = tiltAz
				e.haveTiltAzAcc = true
			} else {
				delta := wrapDelta(tiltAz - e.tiltAzPrevDeg)
				e.tiltAzUnwrapped += delta
				e.tiltAzPrevDeg = tiltAz
			}
			tiltAzUnwrapped = e.tiltAzUnwrapped
		}
	}

	// Complementary vertical speed fusion.
	var vzFused float32 = nanF()
	switch {
	case isFiniteF32(vz) && isFiniteF32(e.vzAcc):
		vzFused = e.cfg.VzFuseBeta*vz + (1-e.cfg.VzFuseBeta)*e.vzAcc
	case isFiniteF32(vz):
		vzFused = vz
	case isFiniteF32(e.vzAcc):
		vzFused = e.vzAcc
	}

	var machCons float32 = nanF()
	if isFiniteF32(vzFused) && e.haveSOSRefs {
		c := float32(math.Cos(float64(e.cfg.TiltMaxDeployDeg) * 0.01745329252))
		if c < 0.1 {
			c = 0.1
		}
		vBodyProxy := absF32(vzFused) / c
		machCons = vBodyProxy / e.sosMinMps
	}

	snap := Snapshot{
		Time:     now,
		StampMs:  uint32(now.Sub(e.start).Milliseconds()),
		AGLReady: e.aglReady,

		BmpAltM: bmpAlt,
		ImuAltM: imuAlt,
		AGLBmpM: aglBmp,
		AGLImuM: aglImu,
		AGLFused: aglFused,

		VzBaro:  vz,
		VzAcc:   e.vzAcc,
		VzFused: vzFused,
		AzEarth: azEarth,

		TempC:    tempC,
		PressHpa: pressHpa,

		SOSDynamic:       sos,
		SOSGround:        e.sosGroundMps,
		SOS10kft:         e.sos10kftMps,
		SOSMin:           e.sosMinMps,
		MachDynamic:      machVz,
		MachConservative: machCons,

		Yaw: yaw, Pitch: pitch, Roll: roll,
		Tilt:            tilt,
		TiltAz:          tiltAz,
		TiltAz360:       tiltAz360,
		TiltAzUnwrapped: tiltAzUnwrapped,

		TToApogeeS: tApx,
		ApogeeAGLM: zApx,
	}

	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
	return snap
}

func nanF() float32               { return float32(math.NaN()) }
func absF32(v float32) float32    { return float32(math.Abs(float64(v))) }
func maxF32(a, b float32) float32 { return float32(math.Max(float64(a), float64(b))) }
func minF32(a, b float32) float32 { return float32(math.Min(float64(a), float64(b))) }

func speedOfSound(tempC float32) float32 {
	t := float64(tempC) + 273.15
	return float32(math.Sqrt(1.4 * 287.05 * t))
}
