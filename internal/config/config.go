// Package config provides configuration structures and defaults for the
// MYOstack collector
package config

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"myostack-collector/internal/dsp"
	"myostack-collector/internal/protocol"
)

// Config represents the complete application configuration
type Config struct {
	Device    DeviceConfig     `mapstructure:"device" yaml:"device"`       // Sensor link settings
	Session   SessionConfig    `mapstructure:"session" yaml:"session"`     // Tick loop and playback settings
	Filters   dsp.FilterConfig `mapstructure:"filters" yaml:"filters"`     // Signal conditioning
	Recording RecordingConfig  `mapstructure:"recording" yaml:"recording"` // Recording output
	Logging   LoggingConfig    `mapstructure:"logging" yaml:"logging"`     // Logging configuration
}

// DeviceConfig contains sensor and serial link parameters
type DeviceConfig struct {
	Protocol string    `mapstructure:"protocol" yaml:"protocol"` // Protocol version: v1.0, v1.1 or v2.0
	Port     string    `mapstructure:"port" yaml:"port"`         // Serial port (empty selects the last listed port)
	Channels int       `mapstructure:"channels" yaml:"channels"` // Active channel count (1-9)
	Gains    []float64 `mapstructure:"gains" yaml:"gains"`       // Per-channel amplifier gain
}

// SessionConfig contains tick loop and playback parameters
type SessionConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`     // Pipeline invocation period
	WindowSeconds  float64       `mapstructure:"window_seconds" yaml:"window_seconds"`   // Window length override (0 keeps the protocol value)
	ScrubThreshold int           `mapstructure:"scrub_threshold" yaml:"scrub_threshold"` // Samples a scrub must move before it seeks
	PlaybackSpeed  float64       `mapstructure:"playback_speed" yaml:"playback_speed"`   // Playback rate multiplier
	ListenerDelay  time.Duration `mapstructure:"listener_delay" yaml:"listener_delay"`   // Base pause between serial reads
	MailboxLimit   int           `mapstructure:"mailbox_limit" yaml:"mailbox_limit"`     // Bytes buffered between ticks
}

// RecordingConfig contains recording output parameters
type RecordingConfig struct {
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`   // Directory for .bin/.txt recordings
	FilePrefix string `mapstructure:"file_prefix" yaml:"file_prefix"` // Prefix for recording filenames
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // Log level (debug, info, warn, error)
	Format string `mapstructure:"format" yaml:"format"` // text or json
	File   string `mapstructure:"file" yaml:"file"`     // Log file path (empty logs to stderr)
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	gains := make([]float64, protocol.MaxChannels)
	for i := range gains {
		gains[i] = 1
	}
	return &Config{
		Device: DeviceConfig{
			Protocol: string(protocol.V11), // Current sensor firmware
			Port:     "",                   // Auto-select
			Channels: protocol.MaxChannels, // All channels active
			Gains:    gains,                // Unity gain
		},
		Session: SessionConfig{
			TickInterval:   100 * time.Millisecond, // 10 Hz refresh
			WindowSeconds:  0,                      // Protocol default
			ScrubThreshold: 10,                     // 10 samples
			PlaybackSpeed:  1,                      // Real time
			ListenerDelay:  10 * time.Millisecond,  // Base listener pacing
			MailboxLimit:   1 << 20,                // 1 MiB
		},
		Filters: dsp.DefaultFilterConfig(),
		Recording: RecordingConfig{
			OutputDir:  "./recordings", // Recordings folder in working directory
			FilePrefix: "myo",          // File prefix for output files
		},
		Logging: LoggingConfig{
			Level:  "info", // Info level logging
			Format: "text", // Human readable
			File:   "",     // stderr
		},
	}
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs error
	if _, err := protocol.Lookup(c.Device.Protocol); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Device.Channels < 1 || c.Device.Channels > protocol.MaxChannels {
		errs = multierr.Append(errs, fmt.Errorf("device.channels %d outside 1..%d", c.Device.Channels, protocol.MaxChannels))
	}
	if len(c.Device.Gains) > protocol.MaxChannels {
		errs = multierr.Append(errs, fmt.Errorf("device.gains has %d entries, at most %d allowed", len(c.Device.Gains), protocol.MaxChannels))
	}
	for i, g := range c.Device.Gains {
		if math.IsNaN(g) || g <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("device.gains[%d] = %v must be positive", i, g))
		}
	}
	if c.Session.TickInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.tick_interval must be positive, got %v", c.Session.TickInterval))
	}
	if c.Session.WindowSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.window_seconds must not be negative"))
	}
	if c.Session.PlaybackSpeed < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.playback_speed must not be negative"))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	return errs
}

// Params resolves the protocol parameters with the window override applied
func (c *Config) Params() (protocol.Params, error) {
	p, err := protocol.Lookup(c.Device.Protocol)
	if err != nil {
		return protocol.Params{}, err
	}
	if c.Session.WindowSeconds > 0 {
		p.WindowSeconds = c.Session.WindowSeconds
	}
	return p, nil
}

// Dump renders the configuration as YAML
func (c *Config) Dump() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
