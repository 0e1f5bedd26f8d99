// Package config loads and merges the xdpfwd runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/frobware/xdpfwd/rules"
)

// Runtime is the effective configuration for one control-loop cycle.
// It is replaced wholesale on each successful reload; nothing mutates
// it in place between reloads.
type Runtime struct {
	// Interface is the network interface to attach to.
	Interface string `yaml:"interface"`

	// Verbose is the log verbosity level (0 = info, 1 = debug, 2+ = trace).
	Verbose int `yaml:"verbose"`

	// LogFile directs log output to a file instead of stdout.
	LogFile string `yaml:"log_file"`

	// PinMaps pins the rule and stats maps to the BPF filesystem so
	// they survive process restarts.
	PinMaps bool `yaml:"pin_maps"`

	// UpdateTime is the config reload check interval in seconds.
	// Zero disables reloading.
	UpdateTime int `yaml:"update_time"`

	// NoStats disables periodic stats output.
	NoStats bool `yaml:"no_stats"`

	// StatsPerSecond reports packet/byte rates instead of running totals.
	StatsPerSecond bool `yaml:"stats_per_second"`

	// StdoutUpdateTime is the control loop's display interval in seconds.
	StdoutUpdateTime int `yaml:"stdout_update_time"`

	// Time bounds the run in seconds. Zero runs until signalled.
	Time int `yaml:"time"`

	// Rules is the forwarding rule table pushed to the kernel program.
	Rules []rules.Rule `yaml:"rules"`
}

// Defaults returns the configuration used before any file or flag is
// consulted.
func Defaults() Runtime {
	return Runtime{
		UpdateTime:       0,
		StdoutUpdateTime: 1,
	}
}

// DisplayInterval returns the control loop sleep duration.
func (r Runtime) DisplayInterval() time.Duration {
	if r.StdoutUpdateTime <= 0 {
		return time.Second
	}
	return time.Duration(r.StdoutUpdateTime) * time.Second
}

// ReloadInterval returns the reload check interval, or zero when
// reloading is disabled.
func (r Runtime) ReloadInterval() time.Duration {
	if r.UpdateTime <= 0 {
		return 0
	}
	return time.Duration(r.UpdateTime) * time.Second
}

// RunDuration returns the bounded run duration, or zero for unbounded.
func (r Runtime) RunDuration() time.Duration {
	if r.Time <= 0 {
		return 0
	}
	return time.Duration(r.Time) * time.Second
}

// Validate checks field ranges and every forwarding rule.
func (r Runtime) Validate() error {
	if r.StdoutUpdateTime < 0 {
		return fmt.Errorf("stdout_update_time cannot be negative")
	}
	if r.UpdateTime < 0 {
		return fmt.Errorf("update_time cannot be negative")
	}
	if r.Time < 0 {
		return fmt.Errorf("time cannot be negative")
	}
	for i, rule := range r.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// Load reads path, parses it over defaults, validates, and returns the
// configuration together with the file's modification time.
func Load(path string) (Runtime, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Runtime{}, time.Time{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return Runtime{}, time.Time{}, fmt.Errorf("stat config %s: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Runtime{}, time.Time{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Runtime{}, time.Time{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, fi.ModTime(), nil
}

// Mtime returns path's modification time without parsing it.
func Mtime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
