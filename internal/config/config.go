// Package config loads the YAML configuration that selects the runtime
// profile (production or bench/desk-mode) and every tunable the fusion
// engine, flight controller, servo controller and telemetry aggregator
// expose.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"airbrakefc/internal/fc"
	"airbrakefc/internal/fusion"
	"airbrakefc/internal/servo"
)

// Config is the top-level configuration document.
type Config struct {
	// Profile selects "default" (flight) or "bench" (desk-mode) thresholds
	// for fusion and the flight controller. Servo/telemetry settings are
	// always taken from their own sections regardless of profile.
	Profile string `yaml:"profile"`

	Fusion    FusionConfig    `yaml:"fusion"`
	FC        FCConfig        `yaml:"fc"`
	Servo     ServoConfig     `yaml:"servo"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// FusionConfig mirrors fusion.Config's YAML-overridable fields.
type FusionConfig struct {
	ZeroAGLAfter     time.Duration `yaml:"zero_agl_after"`
	WeightBMP        float32       `yaml:"weight_bmp"`
	VzAlpha          float32       `yaml:"vz_alpha"`
	VzMaxDt          time.Duration `yaml:"vz_max_dt"`
	VzFuseBeta       float32       `yaml:"vz_fuse_beta"`
	TiltAzAlpha      float32       `yaml:"tilt_az_alpha"`
	TiltAzMinTiltDeg float32       `yaml:"tilt_az_min_tilt_deg"`
	SafeTApxFactor   float32       `yaml:"safe_t_apx_factor"`
	SafeZApxFactor   float32       `yaml:"safe_z_apx_factor"`
	TiltMaxDeployDeg float32       `yaml:"tilt_max_deploy_deg"`
	SOS10kftDeltaK   float32       `yaml:"sos_10kft_delta_k"`
	SOSMinFloor      float32       `yaml:"sos_min_floor"`
}

// FCConfig mirrors fc.Config's YAML-overridable fields.
type FCConfig struct {
	MachMaxForDeploy        float32       `yaml:"mach_max_for_deploy"`
	MachHyst                float32       `yaml:"mach_hyst"`
	MachDwell               time.Duration `yaml:"mach_dwell"`
	TiltAbortDeg             float32       `yaml:"tilt_abort_deg"`
	TiltAbortDwell           time.Duration `yaml:"tilt_abort_dwell"`
	VzLiftoffMps             float32       `yaml:"vz_liftoff_mps"`
	AzLiftoffMps2            float32       `yaml:"az_liftoff_mps2"`
	LiftoffMinAGLM           float32       `yaml:"liftoff_min_agl_m"`
	LiftoffDwell             time.Duration `yaml:"liftoff_dwell"`
	BurnoutAzDoneMps2        float32       `yaml:"burnout_az_done_mps2"`
	BurnoutDwell             time.Duration `yaml:"burnout_dwell"`
	BurnoutHold              time.Duration `yaml:"burnout_hold"`
	MinDeployAGLM            float32       `yaml:"min_deploy_agl_m"`
	TargetApogeeAGLM         float32       `yaml:"target_apogee_agl_m"`
	ApogeeHighMarginM        float32       `yaml:"apogee_high_margin_m"`
	RetractBeforeApogeeS     float32       `yaml:"retract_before_apogee_s"`
	ExpectedTTAS             float32       `yaml:"expected_tta_s"`
	ExpectedTTAScaleTimeout  float32       `yaml:"expected_tta_scale_timeout"`
	SensorInvalidDwell       time.Duration `yaml:"sensor_invalid_dwell"`
	SensorRecoveryDwell      time.Duration `yaml:"sensor_recovery_dwell"`
	BaroAgreeM               float32       `yaml:"baro_agree_m"`
	BaroAgreeDwell           time.Duration `yaml:"baro_agree_dwell"`
	DeployCmdDeg             float32       `yaml:"deploy_cmd_deg"`
}

// ServoConfig mirrors servo.Config plus the hardware backend selection.
type ServoConfig struct {
	Backend    string        `yaml:"backend"` // "pwmsysfs", "stub"
	PWMPin     int           `yaml:"pwm_pin"`
	PWMFreqHz  int           `yaml:"pwm_freq_hz"`
	MinPulseUS uint16        `yaml:"min_pulse_us"`
	MaxPulseUS uint16        `yaml:"max_pulse_us"`
	TaskPeriod time.Duration `yaml:"task_period"`

	AbortRelayEnable bool   `yaml:"abort_relay_enable"`
	AbortRelayChip   string `yaml:"abort_relay_chip"`
	AbortRelayPin    int    `yaml:"abort_relay_pin"`
}

// TelemetryConfig controls the aggregator's cadence and wire options.
type TelemetryConfig struct {
	Period     time.Duration `yaml:"period"`
	EnableCRC  bool          `yaml:"enable_crc"`
	SinkEnable bool          `yaml:"sink_enable"`
	SinkBuffer int           `yaml:"sink_buffer"`
}

// MonitorConfig controls the serial monitoring link's output mode.
type MonitorConfig struct {
	Mode        string        `yaml:"mode"` // "visualizer" or "human"
	Period      time.Duration `yaml:"period"`
	IncludeTS   bool          `yaml:"include_ts"`
}

// Load reads and validates path, applying profile-appropriate defaults for
// every zero-valued field.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config contains unknown fields: %w", err)
	}

	if cfg.Profile == "" {
		cfg.Profile = "default"
	}
	if cfg.Profile != "default" && cfg.Profile != "bench" {
		return Config{}, fmt.Errorf("profile must be 'default' or 'bench', got %q", cfg.Profile)
	}

	if cfg.Servo.Backend == "" {
		cfg.Servo.Backend = "stub"
	}
	if cfg.Servo.Backend != "stub" && cfg.Servo.Backend != "pwmsysfs" {
		return Config{}, fmt.Errorf("servo.backend must be 'stub' or 'pwmsysfs', got %q", cfg.Servo.Backend)
	}
	if cfg.Servo.AbortRelayEnable && cfg.Servo.AbortRelayPin <= 0 {
		return Config{}, fmt.Errorf("servo.abort_relay_pin is required when servo.abort_relay_enable is true")
	}
	if cfg.Servo.AbortRelayEnable && cfg.Servo.AbortRelayChip == "" {
		cfg.Servo.AbortRelayChip = "/dev/gpiochip0"
	}

	if cfg.Monitor.Mode == "" {
		cfg.Monitor.Mode = "visualizer"
	}
	if cfg.Monitor.Mode != "visualizer" && cfg.Monitor.Mode != "human" {
		return Config{}, fmt.Errorf("monitor.mode must be 'visualizer' or 'human', got %q", cfg.Monitor.Mode)
	}
	if cfg.Monitor.Period <= 0 {
		cfg.Monitor.Period = 200 * time.Millisecond
	}

	if cfg.Telemetry.Period <= 0 {
		cfg.Telemetry.Period = 20 * time.Millisecond
	}
	if cfg.Telemetry.SinkEnable && cfg.Telemetry.SinkBuffer <= 0 {
		cfg.Telemetry.SinkBuffer = 32
	}

	sc := servo.DefaultConfig()
	if cfg.Servo.MinPulseUS == 0 {
		cfg.Servo.MinPulseUS = sc.MinPulseUS
	}
	if cfg.Servo.MaxPulseUS == 0 {
		cfg.Servo.MaxPulseUS = sc.MaxPulseUS
	}
	if cfg.Servo.MinPulseUS >= cfg.Servo.MaxPulseUS {
		return Config{}, fmt.Errorf("servo.min_pulse_us must be < servo.max_pulse_us")
	}
	if cfg.Servo.TaskPeriod <= 0 {
		cfg.Servo.TaskPeriod = sc.TaskPeriod
	}
	if cfg.Servo.PWMFreqHz <= 0 {
		cfg.Servo.PWMFreqHz = 50
	}

	return cfg, nil
}

// FusionConfig returns the fusion.Config for cfg's profile with every
// explicit YAML override applied on top of the profile defaults.
func (cfg Config) FusionConfig() fusion.Config {
	base := fusion.DefaultConfig()
	if cfg.Profile == "bench" {
		base = fusion.BenchConfig()
	}
	o := cfg.Fusion
	applyDuration(&base.ZeroAGLAfter, o.ZeroAGLAfter)
	applyF32(&base.WeightBMP, o.WeightBMP)
	applyF32(&base.VzAlpha, o.VzAlpha)
	applyDuration(&base.VzMaxDt, o.VzMaxDt)
	applyF32(&base.VzFuseBeta, o.VzFuseBeta)
	applyF32(&base.TiltAzAlpha, o.TiltAzAlpha)
	applyF32(&base.TiltAzMinTiltDeg, o.TiltAzMinTiltDeg)
	applyF32(&base.SafeTApxFactor, o.SafeTApxFactor)
	applyF32(&base.SafeZApxFactor, o.SafeZApxFactor)
	applyF32(&base.TiltMaxDeployDeg, o.TiltMaxDeployDeg)
	applyF32(&base.SOS10kftDeltaK, o.SOS10kftDeltaK)
	applyF32(&base.SOSMinFloor, o.SOSMinFloor)
	return base
}

// FCConfig returns the fc.Config for cfg's profile with every explicit
// YAML override applied on top of the profile defaults.
func (cfg Config) FCConfig() fc.Config {
	base := fc.DefaultConfig()
	if cfg.Profile == "bench" {
		base = fc.BenchConfig()
	}
	o := cfg.FC
	applyF32(&base.MachMaxForDeploy, o.MachMaxForDeploy)
	applyF32(&base.MachHyst, o.MachHyst)
	applyDuration(&base.MachDwell, o.MachDwell)
	applyF32(&base.TiltAbortDeg, o.TiltAbortDeg)
	applyDuration(&base.TiltAbortDwell, o.TiltAbortDwell)
	applyF32(&base.VzLiftoffMps, o.VzLiftoffMps)
	applyF32(&base.AzLiftoffMps2, o.AzLiftoffMps2)
	applyF32(&base.LiftoffMinAGLM, o.LiftoffMinAGLM)
	applyDuration(&base.LiftoffDwell, o.LiftoffDwell)
	applyF32(&base.BurnoutAzDoneMps2, o.BurnoutAzDoneMps2)
	applyDuration(&base.BurnoutDwell, o.BurnoutDwell)
	applyDuration(&base.BurnoutHold, o.BurnoutHold)
	applyF32(&base.MinDeployAGLM, o.MinDeployAGLM)
	applyF32(&base.TargetApogeeAGLM, o.TargetApogeeAGLM)
	applyF32(&base.ApogeeHighMarginM, o.ApogeeHighMarginM)
	applyF32(&base.RetractBeforeApogeeS, o.RetractBeforeApogeeS)
	applyF32(&base.ExpectedTTAS, o.ExpectedTTAS)
	applyF32(&base.ExpectedTTAScaleTimeout, o.ExpectedTTAScaleTimeout)
	applyDuration(&base.SensorInvalidDwell, o.SensorInvalidDwell)
	applyDuration(&base.SensorRecoveryDwell, o.SensorRecoveryDwell)
	applyF32(&base.BaroAgreeM, o.BaroAgreeM)
	applyDuration(&base.BaroAgreeDwell, o.BaroAgreeDwell)
	applyF32(&base.DeployCmdDeg, o.DeployCmdDeg)
	return base
}

// ServoConfig returns the servo.Config built from cfg's servo section.
func (cfg Config) ServoConfig() servo.Config {
	base := servo.DefaultConfig()
	base.MinPulseUS = cfg.Servo.MinPulseUS
	base.MaxPulseUS = cfg.Servo.MaxPulseUS
	base.TaskPeriod = cfg.Servo.TaskPeriod
	return base
}

func applyF32(dst *float32, override float32) {
	if override != 0 {
		*dst = override
	}
}

func applyDuration(dst *time.Duration, override time.Duration) {
	if override != 0 {
		*dst = override
	}
}
