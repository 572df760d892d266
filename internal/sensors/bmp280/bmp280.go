package bmp280

import (
	"encoding/binary"
	"fmt"
	"time"

	"airbrakefc/internal/i2c"
)

var sleep = time.Sleep

// BMP280 driver tuned for the flight barometer: the boost phase subjects
// the sensor to engine vibration well above the bench-test case this chip
// is normally driven under, so compensation runs the datasheet's integer
// path (32-bit temperature, 64-bit pressure; float64 only for the final
// unit conversion) and the measurement
// config enables the onboard IIR filter at its lightest tap count plus
// 4x/16x temperature/pressure oversampling, trading a few hundred
// microseconds of conversion time for rejection of motor-induced pressure
// ripple that the external barometer otherwise feeds straight into
// agl_fused.

const (
	addrDefault = 0x77

	regID        = 0xD0
	chipIDBMP280 = 0x58

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 24

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regPressMsb = 0xF7

	// config[4:2] IIR filter coefficient, filter=2 taps.
	iirFilterCoeff = 0x01
)

type Device struct {
	dev regIO

	// Calibration.
	digT1 uint16
	digT2 int16
	digT3 int16
	digP1 uint16
	digP2 int16
	digP3 int16
	digP4 int16
	digP5 int16
	digP6 int16
	digP7 int16
	digP8 int16
	digP9 int16

	tFine int32
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	d := &Device{dev: dev}

	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return nil, fmt.Errorf("bmp280: id read failed: %w", err)
	}
	if id != chipIDBMP280 {
		return nil, fmt.Errorf("bmp280: chip id=0x%02X want 0x%02X", id, chipIDBMP280)
	}

	// Soft reset so the measurement config below starts from a known state.
	// NVM calibration coefficients are recopied on reset and can take a
	// couple of milliseconds to settle; read too early and we get zeros.
	_ = d.dev.WriteReg(regReset, resetCmd)
	sleep(5 * time.Millisecond)

	// Read calibration with a couple of retries to avoid transient zero reads.
	var calibErr error
	for i := 0; i < 3; i++ {
		calibErr = d.readCalibration()
		if calibErr != nil {
			sleep(5 * time.Millisecond)
			continue
		}
		// Basic sanity: these are never expected to be 0 on a real BMP280.
		if d.digT1 != 0 && d.digP1 != 0 {
			calibErr = nil
			break
		}
		calibErr = fmt.Errorf("bmp280: calibration invalid (digT1=%d digP1=%d)", d.digT1, d.digP1)
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return nil, calibErr
	}

	// config: standby 0.5ms (t_sb=000), IIR filter on at its lightest
	// setting to knock down boost-phase vibration, spi3w_en=0.
	_ = d.dev.WriteReg(regConfig, iirFilterCoeff<<2)

	// ctrl_meas: osrs_t=x4 (011), osrs_p=x16 (101), mode=normal (11).
	// Higher pressure oversampling than the chip's default bench profile:
	// the fusion engine differentiates this reading at the telemetry rate,
	// so sample noise becomes vz noise directly.
	ctrl := byte(0x03<<5) | byte(0x05<<2) | 0x03
	if err := d.dev.WriteReg(regCtrlMeas, ctrl); err != nil {
		return nil, fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
	}

	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalib00, buf); err != nil {
		return fmt.Errorf("bmp280: read calib failed: %w", err)
	}
	// Little endian.
	d.digT1 = binary.LittleEndian.Uint16(buf[0:2])
	d.digT2 = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.digT3 = int16(binary.LittleEndian.Uint16(buf[4:6]))
	d.digP1 = binary.LittleEndian.Uint16(buf[6:8])
	d.digP2 = int16(binary.LittleEndian.Uint16(buf[8:10]))
	d.digP3 = int16(binary.LittleEndian.Uint16(buf[10:12]))
	d.digP4 = int16(binary.LittleEndian.Uint16(buf[12:14]))
	d.digP5 = int16(binary.LittleEndian.Uint16(buf[14:16]))
	d.digP6 = int16(binary.LittleEndian.Uint16(buf[16:18]))
	d.digP7 = int16(binary.LittleEndian.Uint16(buf[18:20]))
	d.digP8 = int16(binary.LittleEndian.Uint16(buf[20:22]))
	d.digP9 = int16(binary.LittleEndian.Uint16(buf[22:24]))
	return nil
}

// Read returns compensated temperature (C) and pressure (Pa), via the
// datasheet's 32-bit (temperature) and 64-bit (pressure) integer
// compensation paths.
func (d *Device) Read() (tempC float64, pressPa float64, err error) {
	buf := make([]byte, 6)
	if err := d.dev.ReadReg(regPressMsb, buf); err != nil {
		return 0, 0, fmt.Errorf("bmp280: read data failed: %w", err)
	}

	adcP := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	adcT := int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4

	tFine, t := d.compensateTempFixed(adcT)
	d.tFine = tFine
	p := d.compensatePressFixed(adcP)

	return t, p, nil
}

// compensateTempFixed is the Bosch BMP280 integer compensation formula
// (datasheet §3.11.3), returning t_fine (carried through to pressure
// compensation) and the temperature in degrees C.
func (d *Device) compensateTempFixed(adcT int32) (tFine int32, tempC float64) {
	var1 := (adcT>>3 - int32(d.digT1)<<1) * int32(d.digT2) >> 11
	var2 := ((((adcT >> 4) - int32(d.digT1)) * ((adcT >> 4) - int32(d.digT1))) >> 12) * int32(d.digT3) >> 14
	tFine = var1 + var2
	tempC = float64((tFine*5+128)>>8) / 100.0
	return tFine, tempC
}

// compensatePressFixed is the Bosch BMP280 64-bit integer compensation
// formula (datasheet §3.11.4), returning pressure in Pa as a Q24.8 fixed
// point value converted to float64 at the end.
func (d *Device) compensatePressFixed(adcP int32) float64 {
	var1 := int64(d.tFine) - 128000
	var2 := var1 * var1 * int64(d.digP6)
	var2 += (var1 * int64(d.digP5)) << 17
	var2 += int64(d.digP4) << 35
	var1 = (var1*var1*int64(d.digP3))>>8 + (var1*int64(d.digP2))<<12
	var1 = ((int64(1)<<47 + var1) * int64(d.digP1)) >> 33
	if var1 == 0 {
		return 0
	}
	p := int64(1048576) - int64(adcP)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(d.digP9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(d.digP8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + int64(d.digP7)<<4
	return float64(p) / 256.0
}
