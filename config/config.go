// Package config loads and validates the gatherd configuration file. A
// missing file is not an error; every field has a working default so the
// daemon runs with no config at all.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/server"
)

// Duration wraps time.Duration so config files can say "500ms" or "2s".
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON renders the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// SourceConfig locates the shared-memory gather region.
type SourceConfig struct {
	Path string `json:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// RelayConfig controls the optional NATS bus relay.
type RelayConfig struct {
	Enabled       bool     `json:"enabled"`
	URL           string   `json:"url"`
	SubjectPrefix string   `json:"subject_prefix"`
	Interval      Duration `json:"interval"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the full daemon configuration.
type Config struct {
	Server  server.Config `json:"server"`
	Source  SourceConfig  `json:"source"`
	Metrics MetricsConfig `json:"metrics"`
	Relay   RelayConfig   `json:"relay"`
	Log     LogConfig     `json:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: server.DefaultConfig(),
		Source: SourceConfig{Path: ""},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Relay: RelayConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "gather",
			Interval:      Duration(time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path, schema-validates it, and unmarshals it over the
// defaults, so a partial file only overrides what it names.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WrapFatal(err, "config", "Load", "read file")
	}

	if err := validateSchema(data); err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "config", "Load", "parse file")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks constraints the JSON schema cannot express.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("server port %d out of range", c.Server.Port),
			"config", "Validate", "server settings")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(fmt.Errorf("metrics port %d out of range", c.Metrics.Port),
			"config", "Validate", "metrics settings")
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		return errors.WrapInvalid(
			fmt.Errorf("metrics port %d collides with server port", c.Metrics.Port),
			"config", "Validate", "metrics settings")
	}
	if c.Relay.Enabled {
		if c.Relay.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "relay URL")
		}
		if time.Duration(c.Relay.Interval) <= 0 {
			return errors.WrapInvalid(fmt.Errorf("relay interval must be positive"),
				"config", "Validate", "relay settings")
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown log level %q", c.Log.Level),
			"config", "Validate", "log settings")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown log format %q", c.Log.Format),
			"config", "Validate", "log settings")
	}
	return nil
}
