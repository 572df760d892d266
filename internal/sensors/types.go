// Package sensors defines the reading types and producer contracts shared by
// every external sensor feeding the fusion engine. The package itself never
// touches a bus; it only describes what a producer hands to the core.
package sensors

import "time"

// Baro is a snapshot from the external barometer.
type Baro struct {
	Time          time.Time
	TemperatureC  float32
	PressurePa    float32
	AltitudeMMSL  float32
	Valid         bool
}

// ImuA is a snapshot from the quaternion-attitude IMU with its own internal
// barometer. The quaternion is the authoritative attitude source for the
// whole core.
type ImuA struct {
	Time         time.Time
	QuatWXYZ     [4]float32
	AccelBodyG   [3]float32
	PressurePa   float32
	AltitudeMMSL float32
	Valid        bool
}

// ImuB is a snapshot from the secondary raw accel/gyro IMU. AccelBodyG
// holds the chip's own X/Y/Z axes as the producer reads them; no rotation
// into the rocket body frame is applied.
type ImuB struct {
	Time       time.Time
	AccelBodyG [3]float32
	GyroDps    [3]float32
	TempC      float32
	Valid      bool
}

// BaroProducer returns the most recently captured Baro reading without
// blocking. ok is false whenever the returned reading is not valid: before
// the first reading has landed and while the producer has marked it stale.
type BaroProducer interface {
	Latest() (Baro, bool)
}

// ImuAProducer returns the most recently captured ImuA reading without
// blocking.
type ImuAProducer interface {
	Latest() (ImuA, bool)
}

// ImuBProducer returns the most recently captured ImuB reading without
// blocking.
type ImuBProducer interface {
	Latest() (ImuB, bool)
}
