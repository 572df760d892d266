package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestLoad_EmptyFileGetsDefaults(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Profile != "default" {
		t.Fatalf("profile=%q want default", cfg.Profile)
	}
	if cfg.Servo.Backend != "stub" {
		t.Fatalf("servo.backend=%q want stub", cfg.Servo.Backend)
	}
	if cfg.Servo.MinPulseUS == 0 || cfg.Servo.MaxPulseUS == 0 {
		t.Fatalf("expected servo pulse defaults applied")
	}
	if cfg.Telemetry.Period != 20*time.Millisecond {
		t.Fatalf("telemetry.period=%s want 20ms", cfg.Telemetry.Period)
	}
	if cfg.Monitor.Mode != "visualizer" {
		t.Fatalf("monitor.mode=%q want visualizer", cfg.Monitor.Mode)
	}
}

func TestLoad_BenchProfile(t *testing.T) {
	path := writeTempConfig(t, "profile: bench\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	fc := cfg.FCConfig()
	if fc.VzLiftoffMps != 0.5 {
		t.Fatalf("bench fc.vz_liftoff_mps=%v want 0.5", fc.VzLiftoffMps)
	}
	fu := cfg.FusionConfig()
	if fu.ZeroAGLAfter != 1500*time.Millisecond {
		t.Fatalf("bench fusion.zero_agl_after=%s want 1.5s", fu.ZeroAGLAfter)
	}
}

func TestLoad_RejectsUnknownProfile(t *testing.T) {
	path := writeTempConfig(t, "profile: turbo\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "fusion:\n  weihgt_bmp: 0.5\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoad_ServoPulseOrdering(t *testing.T) {
	path := writeTempConfig(t, "servo:\n  min_pulse_us: 1500\n  max_pulse_us: 1000\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for inverted pulse endpoints")
	}
}

func TestLoad_AbortRelayRequiresPin(t *testing.T) {
	path := writeTempConfig(t, "servo:\n  abort_relay_enable: true\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for missing abort_relay_pin")
	}
}

func TestLoad_AbortRelayDefaultsChip(t *testing.T) {
	path := writeTempConfig(t, "servo:\n  abort_relay_enable: true\n  abort_relay_pin: 27\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Servo.AbortRelayChip != "/dev/gpiochip0" {
		t.Fatalf("abort_relay_chip=%q want /dev/gpiochip0 default", cfg.Servo.AbortRelayChip)
	}
}

func TestLoad_FusionOverrideAppliesOnTopOfProfile(t *testing.T) {
	path := writeTempConfig(t, "fusion:\n  weight_bmp: 0.9\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	fu := cfg.FusionConfig()
	if fu.WeightBMP != 0.9 {
		t.Fatalf("weight_bmp=%v want 0.9", fu.WeightBMP)
	}
	// Unoverridden fields still come from the profile default.
	if fu.VzAlpha != 0.85 {
		t.Fatalf("vz_alpha=%v want profile default 0.85", fu.VzAlpha)
	}
}
