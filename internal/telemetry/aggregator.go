// Package telemetry composes the per-tick telemetry wire record from the
// fusion, FC and raw sensor snapshots and publishes it under a single
// writer lock, mirroring the teacher's snapshot-copy-under-mutex idiom.
package telemetry

import (
	"sync"
	"time"

	"airbrakefc/internal/fc"
	"airbrakefc/internal/fusion"
	"airbrakefc/internal/sensors"
	"airbrakefc/internal/telemetry/wire"
)

// SinkConfig configures the optional bounded drop-oldest downstream sink.
type SinkConfig struct {
	Enable     bool
	BufferSize int
}

// Aggregator is the sole writer of the live telemetry record.
type Aggregator struct {
	mu   sync.Mutex
	seq  uint32
	last wire.Record

	withCRC bool

	sinkMu sync.Mutex
	sink   chan wire.Record
}

// New returns an Aggregator. If sinkCfg.Enable, Tick also best-effort
// enqueues a copy onto a bounded channel; on overflow the oldest queued
// copy is dropped without ever touching the live snapshot.
func New(withCRC bool, sinkCfg SinkConfig) *Aggregator {
	a := &Aggregator{withCRC: withCRC}
	if sinkCfg.Enable {
		n := sinkCfg.BufferSize
		if n <= 0 {
			n = 32
		}
		a.sink = make(chan wire.Record, n)
	}
	return a
}

// Tick composes a fresh record from the given snapshots, publishes it, and
// returns a copy.
func (a *Aggregator) Tick(now time.Time, baro sensors.Baro, imuA sensors.ImuA, imuB sensors.ImuB, st fc.Outputs, fused fusion.Snapshot, vbatMv uint16, busErr [3]uint16) wire.Record {
	a.mu.Lock()
	a.seq++
	rec := wire.Record{
		Header: wire.Header{
			Seq:          a.seq,
			TimestampMs:  uint32(now.UnixMilli()),
			PresentFlags: wire.PresentBMP | wire.PresentIMU1 | wire.PresentIMU2 | wire.PresentSYS | wire.PresentCTRL,
		},
		Bmp: wire.Bmp{
			TemperatureC: baro.TemperatureC,
			PressurePa:   baro.PressurePa,
			AltitudeMSL:  baro.AltitudeMMSL,
			Valid:        wire.BoolToU8(baro.Valid),
		},
		ImuA: wire.ImuA{
			QuatWXYZ:    imuA.QuatWXYZ,
			AccelBodyG:  imuA.AccelBodyG,
			PressurePa:  imuA.PressurePa,
			AltitudeMSL: imuA.AltitudeMMSL,
			Valid:       wire.BoolToU8(imuA.Valid),
		},
		ImuB: wire.ImuB{
			AccelBodyG: imuB.AccelBodyG,
			GyroDps:    imuB.GyroDps,
			TempC:      imuB.TempC,
			Valid:      wire.BoolToU8(imuB.Valid),
		},
		System: wire.System{
			VbatMv:        vbatMv,
			BusErrBmp:     busErr[0],
			BusErrImuA:    busErr[1],
			BusErrImuB:    busErr[2],
			FcState:       uint8(st.State),
			FcFlags:       uint32(st.Flags),
			SensImuAOK:    wire.BoolToU8(st.Flags&fc.FlagSensImuAOK != 0),
			SensBmpOK:     wire.BoolToU8(st.Flags&fc.FlagSensBaroOK != 0),
			SensImuBOK:    wire.BoolToU8(st.Flags&fc.FlagSensImuBOK != 0),
			BaroAgree:     wire.BoolToU8(st.Flags&fc.FlagBaroAgree != 0),
			MachOK:        wire.BoolToU8(st.Flags&fc.FlagMachOK != 0),
			TiltOK:        wire.BoolToU8(st.Flags&fc.FlagTiltOK != 0),
			TiltLatch:     wire.BoolToU8(st.Flags&fc.FlagTiltLatch != 0),
			LiftoffDet:    wire.BoolToU8(st.Flags&fc.FlagLiftoffDet != 0),
			BurnoutDet:    wire.BoolToU8(st.Flags&fc.FlagBurnoutDet != 0),
			TSinceLaunchS: st.TSinceLaunchS,
			TToApogeeS:    st.TToApogeeS,
		},
		Control: wire.Control{
			AirbrakeCmdDeg: st.AirbrakeCmdDeg,
			// AirbrakeActualDeg has no feedback sensor in this system (the
			// servo is open-loop bang-bang); always reported as 0.
			AirbrakeActualDeg: 0,
		},
		Fused: wire.Fused{
			AGLReady:         wire.BoolToU8(fused.AGLReady),
			BmpAltM:          fused.BmpAltM,
			ImuAltM:          fused.ImuAltM,
			AGLBmpM:          fused.AGLBmpM,
			AGLImuM:          fused.AGLImuM,
			AGLFusedM:        fused.AGLFused,
			VzBaro:           fused.VzBaro,
			VzAcc:            fused.VzAcc,
			VzFused:          fused.VzFused,
			AzEarth:          fused.AzEarth,
			TempC:            fused.TempC,
			PressHpa:         fused.PressHpa,
			SOSDynamic:       fused.SOSDynamic,
			SOSGround:        fused.SOSGround,
			SOS10kft:         fused.SOS10kft,
			SOSMin:           fused.SOSMin,
			MachDynamic:      fused.MachDynamic,
			MachConservative: fused.MachConservative,
			Yaw:              fused.Yaw,
			Pitch:            fused.Pitch,
			Roll:             fused.Roll,
			Tilt:             fused.Tilt,
			TiltAz:           fused.TiltAz,
			TiltAz360:        fused.TiltAz360,
			TiltAzUnwrapped:  fused.TiltAzUnwrapped,
			TToApogeeS:       fused.TToApogeeS,
			ApogeeAGLM:       fused.ApogeeAGLM,
		},
	}
	a.last = rec
	a.mu.Unlock()

	if a.sink != nil {
		select {
		case a.sink <- rec:
		default:
			select {
			case <-a.sink:
			default:
			}
			select {
			case a.sink <- rec:
			default:
			}
		}
	}
	return rec
}

// Latest returns a copy of the most recently published record.
func (a *Aggregator) Latest() wire.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Sink returns the optional downstream drain channel, or nil if disabled.
func (a *Aggregator) Sink() <-chan wire.Record {
	return a.sink
}
