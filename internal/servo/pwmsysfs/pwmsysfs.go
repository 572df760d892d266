//go:build linux && (arm || arm64)

// Package pwmsysfs drives the airbrake servo via a /sys/class/pwm hardware
// PWM channel, adapted from the teacher's fan-control sysfs backend for
// pulse-width (not duty-percent) semantics.
package pwmsysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Backend drives one PWM channel in pulse-width-microseconds terms.
type Backend struct {
	chipPath string
	pwmPath  string
	channel  int

	periodNS uint64
	enabled  bool
}

var pwmSysfsBase = "/sys/class/pwm"

// Open exports and configures the first usable PWM chip at the given
// repeat frequency (Hz), ready for SetPulseUS calls.
func Open(freqHz int) (*Backend, error) {
	chipPath, channel, err := findPWMChip()
	if err != nil {
		return nil, err
	}

	d := &Backend{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	if freqHz <= 0 {
		freqHz = 50
	}
	periodNS := uint64(1_000_000_000 / freqHz)
	if err := d.writeBool("enable", false); err == nil {
		d.enabled = false
	}
	if err := d.writeUint("period", periodNS); err != nil {
		return nil, err
	}
	d.periodNS = periodNS
	if err := d.writeBool("enable", true); err != nil {
		return nil, err
	}
	d.enabled = true
	return d, nil
}

func findPWMChip() (chipPath string, channel int, err error) {
	entries, err := os.ReadDir(pwmSysfsBase)
	if err != nil {
		return "", 0, fmt.Errorf("servo: read %s: %w", pwmSysfsBase, err)
	}
	preferred := []string{"pwmchip0", "pwmchip1", "pwmchip2"}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			seen[e.Name()] = true
		}
	}
	candidates := make([]string, 0, len(preferred))
	for _, name := range preferred {
		if seen[name] {
			candidates = append(candidates, name)
		}
	}
	for _, name := range candidates {
		chip := filepath.Join(pwmSysfsBase, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n <= 0 {
			continue
		}
		return chip, 0, nil
	}
	return "", 0, fmt.Errorf("servo: no sysfs pwmchip found (is pwm overlay enabled?)")
}

func (d *Backend) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("servo: export pwm: %w", err)
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("servo: pwm path not created after export")
}

// SetPulseUS sets the active-high pulse width in microseconds.
func (d *Backend) SetPulseUS(us uint16) error {
	if d.periodNS == 0 {
		d.periodNS = 1_000_000_000 / 50
	}
	dutyNS := uint64(us) * 1000
	if dutyNS > d.periodNS {
		dutyNS = d.periodNS
	}
	if err := d.writeUint("duty_cycle", dutyNS); err != nil {
		return err
	}
	if !d.enabled {
		if err := d.writeBool("enable", true); err != nil {
			return err
		}
		d.enabled = true
	}
	return nil
}

// Close disables the PWM channel.
func (d *Backend) Close() error {
	_ = d.writeBool("enable", false)
	d.enabled = false
	return nil
}

func (d *Backend) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *Backend) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		if werr != nil {
			lastErr = werr
		} else {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		if werr != nil {
			return werr
		}
		return cerr
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
