// Package wire implements the fixed-layout packed telemetry record and its
// CRC-32 trailer, the on-the-wire contract consumed by ground tooling.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	MagicByte0 = 0xAB
	MagicByte1 = 0xCD

	PacketTypeFull = 0

	PresentBMP  uint32 = 1 << 0
	PresentIMU1 uint32 = 1 << 1
	PresentSYS  uint32 = 1 << 2
	PresentCTRL uint32 = 1 << 3
	PresentIMU2 uint32 = 1 << 4
)

// Header is the fixed leading block of every record.
type Header struct {
	Magic         [2]byte
	PacketType    uint8
	Pad           uint8
	Seq           uint32
	TimestampMs   uint32
	PresentFlags  uint32
}

// Bmp is the barometer wire section.
type Bmp struct {
	TemperatureC float32
	PressurePa   float32
	AltitudeMSL  float32
	Valid        uint8
	_            [3]byte
}

// ImuA is the IMU-A wire section.
type ImuA struct {
	QuatWXYZ     [4]float32
	AccelBodyG   [3]float32
	PressurePa   float32
	AltitudeMSL  float32
	Valid        uint8
	_            [3]byte
}

// ImuB is the IMU-B wire section.
type ImuB struct {
	AccelBodyG [3]float32
	GyroDps    [3]float32
	TempC      float32
	Valid      uint8
	_          [3]byte
}

// System is the system/status wire section, field order and names adopted
// verbatim from the original firmware's telemetry struct for wire
// compatibility with existing ground tooling.
type System struct {
	VbatMv         uint16
	BusErrBmp      uint16
	BusErrImuA     uint16
	BusErrImuB     uint16
	FcState        uint8
	_              [3]byte
	FcFlags        uint32
	SensImuAOK     uint8
	SensBmpOK      uint8
	SensImuBOK     uint8
	BaroAgree      uint8
	MachOK         uint8
	TiltOK         uint8
	TiltLatch      uint8
	LiftoffDet     uint8
	BurnoutDet     uint8
	_              [3]byte
	TSinceLaunchS  float32
	TToApogeeS     float32
}

// Control is the actuator command/feedback wire section.
type Control struct {
	AirbrakeCmdDeg    float32
	AirbrakeActualDeg float32
}

// Fused is the derived fusion-engine wire section.
type Fused struct {
	AGLReady         uint8
	_                [3]byte
	BmpAltM          float32
	ImuAltM          float32
	AGLBmpM          float32
	AGLImuM          float32
	AGLFusedM        float32
	VzBaro           float32
	VzAcc            float32
	VzFused          float32
	AzEarth          float32
	TempC            float32
	PressHpa         float32
	SOSDynamic       float32
	SOSGround        float32
	SOS10kft         float32
	SOSMin           float32
	MachDynamic      float32
	MachConservative float32
	Yaw              float32
	Pitch            float32
	Roll             float32
	Tilt             float32
	TiltAz           float32
	TiltAz360        float32
	TiltAzUnwrapped  float32
	TToApogeeS       float32
	ApogeeAGLM       float32
}

// Record is a full telemetry record plus sections and optional CRC.
type Record struct {
	Header  Header
	Bmp     Bmp
	ImuA    ImuA
	ImuB    ImuB
	System  System
	Control Control
	Fused   Fused
	CRC32   uint32
}

// BoolToU8 maps a bool to the wire's 1-byte boolean representation.
func BoolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Encode serializes rec into its fixed little-endian packed wire layout.
// If withCRC is true, the trailing CRC-32 (IEEE, reflected, polynomial
// 0xEDB88320) is computed over every preceding byte and appended;
// otherwise the trailer is four zero bytes.
func Encode(rec Record, withCRC bool) ([]byte, error) {
	var buf bytes.Buffer
	rec.Header.Magic = [2]byte{MagicByte0, MagicByte1}
	rec.Header.PacketType = PacketTypeFull

	for _, v := range []any{
		rec.Header, rec.Bmp, rec.ImuA, rec.ImuB, rec.System, rec.Control, rec.Fused,
	} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("wire: encode: %w", err)
		}
	}

	var crc uint32
	if withCRC {
		crc = crc32.Checksum(buf.Bytes(), crc32.IEEETable)
	}
	if err := binary.Write(&buf, binary.LittleEndian, crc); err != nil {
		return nil, fmt.Errorf("wire: encode crc: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a buffer produced by Encode. If checkCRC is true and the
// trailing CRC is nonzero, the CRC is verified against the preceding bytes.
func Decode(b []byte, checkCRC bool) (Record, error) {
	var rec Record
	if len(b) < 4 {
		return rec, fmt.Errorf("wire: decode: buffer too short")
	}
	body := b[:len(b)-4]
	trailer := b[len(b)-4:]

	r := bytes.NewReader(b)
	for _, v := range []any{
		&rec.Header, &rec.Bmp, &rec.ImuA, &rec.ImuB, &rec.System, &rec.Control, &rec.Fused,
	} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return rec, fmt.Errorf("wire: decode: %w", err)
		}
	}
	rec.CRC32 = binary.LittleEndian.Uint32(trailer)

	if rec.Header.Magic != [2]byte{MagicByte0, MagicByte1} {
		return rec, fmt.Errorf("wire: decode: bad magic %v", rec.Header.Magic)
	}

	if checkCRC && rec.CRC32 != 0 {
		want := crc32.Checksum(body, crc32.IEEETable)
		if want != rec.CRC32 {
			return rec, fmt.Errorf("wire: decode: crc mismatch got=%08x want=%08x", rec.CRC32, want)
		}
	}
	return rec, nil
}
