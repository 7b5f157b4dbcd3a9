package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/mitchellh/go-homedir"
)

// Dir is the unexpanded configuration directory.
const Dir = "~/.config/gridpulse"

// Config is the persisted instrument configuration. Zero values for the
// optional fields mean "probe the environment".
type Config struct {
	SampleRate         int     `json:"sampleRate"`
	LookaheadMs        int     `json:"lookaheadMs"`
	WakeIntervalMs     int     `json:"wakeIntervalMs"`
	MasterGain         float64 `json:"masterGain"`
	BatteryPollSeconds int     `json:"batteryPollSeconds"`
	BPM                float64 `json:"bpm,omitempty"`
	DeviceMemoryGB     float64 `json:"deviceMemoryGB,omitempty"`
	ViewportWidth      int     `json:"viewportWidth,omitempty"`
	Seed               int64   `json:"seed,omitempty"`
	MIDIOut            string  `json:"midiOut,omitempty"`
	DebugLog           bool    `json:"debugLog,omitempty"`
}

// DefaultConfig returns the settings used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		SampleRate:         48000,
		LookaheadMs:        100,
		WakeIntervalMs:     25,
		MasterGain:         1.0,
		BatteryPollSeconds: 30,
	}
}

func (c *Config) Lookahead() float64 {
	return float64(c.LookaheadMs) / 1000
}

func (c *Config) WakeInterval() time.Duration {
	return time.Duration(c.WakeIntervalMs) * time.Millisecond
}

func (c *Config) BatteryPoll() time.Duration {
	return time.Duration(c.BatteryPollSeconds) * time.Second
}

// Validate reports the first out-of-range setting. The error is tagged
// InvalidArgument and carries a user-facing message.
func (c *Config) Validate() error {
	invalid := func(field string, v any, want string) error {
		return fault.New(
			fmt.Sprintf("config: %s = %v", field, v),
			fmsg.WithDesc("invalid "+field, fmt.Sprintf("%s must be %s (got %v)", field, want, v)),
			ftag.With(ftag.InvalidArgument),
		)
	}
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return invalid("sampleRate", c.SampleRate, "between 8000 and 192000")
	case c.LookaheadMs <= 0 || c.LookaheadMs > 1000:
		return invalid("lookaheadMs", c.LookaheadMs, "in (0, 1000]")
	case c.WakeIntervalMs <= 0 || c.WakeIntervalMs >= c.LookaheadMs:
		return invalid("wakeIntervalMs", c.WakeIntervalMs, "positive and shorter than lookaheadMs")
	case c.MasterGain < 0 || c.MasterGain > 4:
		return invalid("masterGain", c.MasterGain, "in [0, 4]")
	case c.BatteryPollSeconds <= 0:
		return invalid("batteryPollSeconds", c.BatteryPollSeconds, "positive")
	case c.BPM < 0 || c.BPM > 400:
		return invalid("bpm", c.BPM, "0 (follow battery) or up to 400")
	case c.DeviceMemoryGB < 0:
		return invalid("deviceMemoryGB", c.DeviceMemoryGB, "0 (probe) or positive")
	case c.ViewportWidth < 0:
		return invalid("viewportWidth", c.ViewportWidth, "0 (default) or positive")
	}
	return nil
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() (string, error) {
	dir, err := homedir.Expand(Dir)
	if err != nil {
		return "", fault.Wrap(err, fmsg.With("expand config dir"), ftag.With(ftag.Internal))
	}
	return dir, nil
}

// ConfigPath returns the full path to config.json.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DebugLogPath returns where the debug log is written.
func DebugLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "debug.log"), nil
}

// Load reads the default config file, returning defaults if it is missing.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads path on top of the defaults, so missing fields keep their
// default values. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fault.Wrap(err,
			fmsg.WithDesc("read config", "Could not read "+path),
			ftag.With(ftag.Internal))
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("parse config", "Config file "+path+" is not valid JSON"),
			ftag.With(ftag.InvalidArgument))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(err, fmsg.With(path))
	}
	return cfg, nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fault.Wrap(err, fmsg.With("create config dir"), ftag.With(ftag.Internal))
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fault.Wrap(err, fmsg.With("encode config"), ftag.With(ftag.Internal))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("write config", "Could not write "+path), ftag.With(ftag.Internal))
	}
	return nil
}
