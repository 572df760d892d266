// Package monitor implements the line-oriented command surface and the
// Visualizer/Human line formatters for the serial monitoring link.
package monitor

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"airbrakefc/internal/fc"
	"airbrakefc/internal/telemetry/wire"
)

// Resetter is implemented by fusion.Engine and fc.Context.
type Resetter interface {
	SoftReset()
}

// CommandHandler reacts to a recognized command line.
type CommandHandler struct {
	FusionReset Resetter
	FCReset     Resetter
}

// Run reads newline-terminated commands from r and writes acknowledgements
// to w until r returns io.EOF or ctx-equivalent cancellation closes r.
// Recognizes "!cmd:soft_reset" and "!cmd:hard_reset" (surrounding
// whitespace trimmed, command name matched case-insensitively); any other
// line is ignored.
func Run(r io.Reader, w io.Writer, h CommandHandler, hardReset func()) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "!cmd:") {
			continue
		}
		cmd := strings.ToLower(strings.TrimPrefix(line, "!cmd:"))
		switch cmd {
		case "soft_reset":
			if h.FusionReset != nil {
				h.FusionReset.SoftReset()
			}
			if h.FCReset != nil {
				h.FCReset.SoftReset()
			}
			fmt.Fprintln(w, ">evt:soft_reset")
		case "hard_reset":
			fmt.Fprintln(w, ">evt:hard_reset")
			if hardReset != nil {
				hardReset()
			}
		}
	}
	return sc.Err()
}

func stateName(s uint8) string {
	return fc.State(s).String()
}

// FormatVisualizer renders one key:value Visualizer-mode line, matching the
// original monitor's exact field list and order, plus servo status.
// includeTS gates the leading ts_ms field per monitor.include_ts.
func FormatVisualizer(tsMs uint32, rec wire.Record, servoOpen bool, servoCmdUS, servoMinUS, servoMaxUS uint16, includeTS bool) string {
	sys := rec.System
	fu := rec.Fused
	var b strings.Builder

	if includeTS {
		kvI(&b, "ts_ms", int32(tsMs))
	}
	kvF(&b, "vbat_v", float64(sys.VbatMv)/1000.0, 3)
	kvI(&b, "i2c_errs", int32(sys.BusErrBmp)+int32(sys.BusErrImuA))
	kvI(&b, "spi_errs", int32(sys.BusErrImuB))
	kvS(&b, "fc_state_str", stateName(sys.FcState))
	kvI(&b, "fc_state", int32(sys.FcState))
	kvI(&b, "fc_flags", int32(sys.FcFlags))
	kvI(&b, "sens_imu1_ok", int32(sys.SensImuAOK))
	kvI(&b, "sens_bmp1_ok", int32(sys.SensBmpOK))
	kvI(&b, "sens_imu2_ok", int32(sys.SensImuBOK))
	kvI(&b, "baro_agree", int32(sys.BaroAgree))
	kvI(&b, "mach_ok", int32(sys.MachOK))
	kvI(&b, "tilt_ok", int32(sys.TiltOK))
	kvI(&b, "tilt_latch", int32(sys.TiltLatch))
	kvI(&b, "liftoff_det", int32(sys.LiftoffDet))
	kvI(&b, "burnout_det", int32(sys.BurnoutDet))
	lockout := int32(0)
	if fc.State(sys.FcState) == fc.AbortLockout {
		lockout = 1
	}
	kvI(&b, "lockout", lockout)
	kvF(&b, "t_since_launch_s", float64(sys.TSinceLaunchS), 2)
	kvF(&b, "t_to_apogee_s", float64(sys.TToApogeeS), 2)
	kvF(&b, "cmd_deg", float64(rec.Control.AirbrakeCmdDeg), 2)
	kvF(&b, "act_deg", float64(rec.Control.AirbrakeActualDeg), 2)
	kvI(&b, "agl_ready", int32(fu.AGLReady))
	kvF(&b, "temp_c", float64(fu.TempC), 2)
	kvF(&b, "agl_fused_m", float64(fu.AGLFusedM), 3)
	kvF(&b, "vz_fused_mps", float64(fu.VzFused), 3)
	kvF(&b, "az_imu1_mps2", float64(fu.AzEarth), 3)
	kvF(&b, "tilt_deg", float64(fu.Tilt), 2)
	kvF(&b, "tilt_az_deg360", float64(fu.TiltAz360), 1)
	kvF(&b, "mach_cons", float64(fu.MachConservative), 4)
	kvI(&b, "servo_open", boolToI32(servoOpen))
	kvI(&b, "servo_cmd_us", int32(servoCmdUS))
	kvI(&b, "servo_min_us", int32(servoMinUS))
	kvI(&b, "servo_max_us", int32(servoMaxUS))
	return b.String()
}

// FormatHuman renders one fixed-width Human-mode line. includeTS gates the
// leading ts_ms column per monitor.include_ts.
func FormatHuman(tsMs uint32, rec wire.Record, includeTS bool) string {
	sys := rec.System
	fu := rec.Fused
	machOK := boolToI32(sys.MachOK != 0)
	tiltOK := boolToI32(sys.TiltOK != 0)
	tiltLock := boolToI32(sys.TiltLatch != 0)

	line := fmt.Sprintf("%-10s M:%d T:%d L:%d cmd:%+05.1f tilt:%+06.2f mach:%0.3f vz:%+07.2f agl:%+07.2f",
		stateName(sys.FcState), machOK, tiltOK, tiltLock,
		rec.Control.AirbrakeCmdDeg, fu.Tilt, fu.MachConservative, fu.VzFused, fu.AGLFusedM)
	if !includeTS {
		return line
	}
	return fmt.Sprintf("%08d %s", tsMs, line)
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func kvSep(b *strings.Builder) {
	if b.Len() > 0 {
		b.WriteString(", ")
	}
}

func kvF(b *strings.Builder, key string, val float64, prec int) {
	kvSep(b)
	b.WriteString(key)
	b.WriteString(":")
	if math.IsNaN(val) {
		b.WriteString("nan")
		return
	}
	fmt.Fprintf(b, "%.*f", prec, val)
}

func kvI(b *strings.Builder, key string, val int32) {
	kvSep(b)
	b.WriteString(key)
	b.WriteString(":")
	fmt.Fprintf(b, "%d", val)
}

func kvS(b *strings.Builder, key string, s string) {
	kvSep(b)
	b.WriteString(key)
	b.WriteString(":")
	b.WriteString(s)
}
