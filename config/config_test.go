package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/server"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatherd.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, server.DefaultPort, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Relay.Enabled)
}

func TestLoadOverridesOnlyNamedFields(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 4000},
		"log": {"level": "debug"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Bind)
	assert.Equal(t, server.DefaultMaxSessions, cfg.Server.MaxSessions)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"bind": "127.0.0.1", "port": 2332, "max_sessions": 8},
		"source": {"path": "/dev/shm/ppmac-gather"},
		"metrics": {"enabled": true, "port": 9101, "path": "/metrics"},
		"relay": {"enabled": true, "url": "nats://bus:4222", "subject_prefix": "pmac.gather", "interval": "250ms"},
		"log": {"level": "warn", "format": "text"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Server.MaxSessions)
	assert.Equal(t, "/dev/shm/ppmac-gather", cfg.Source.Path)
	assert.Equal(t, "pmac.gather", cfg.Relay.SubjectPrefix)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Relay.Interval))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `{"server": {"prot": 2332}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "prot")
}

func TestLoadRejectsWrongType(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": "2332"}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `{"relay": {"interval": "fast"}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestValidateCrossFieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"metrics port collides with server", func(c *Config) {
			c.Metrics.Port = c.Server.Port
		}},
		{"relay enabled without URL", func(c *Config) {
			c.Relay.Enabled = true
			c.Relay.URL = ""
		}},
		{"relay interval zero", func(c *Config) {
			c.Relay.Enabled = true
			c.Relay.Interval = 0
		}},
		{"bad log level", func(c *Config) {
			c.Log.Level = "verbose"
		}},
		{"bad log format", func(c *Config) {
			c.Log.Format = "logfmt"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(data))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, d, back)
}
