package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoreclock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "scoreclock.db", cfg.Device.DBPath)
	assert.Equal(t, ":8000", cfg.Device.Listen)
	assert.Equal(t, time.Second, cfg.Device.TickInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Device.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Device.HeartbeatInterval)
	assert.Equal(t, int64(1200), cfg.Device.PeriodSeconds)
	assert.Equal(t, IsolateGoroutine, cfg.Device.Isolation)
	require.Len(t, cfg.Device.Destinations, 1)
	assert.Equal(t, Destination{Name: "cloud", Kind: KindCloud}, cfg.Device.Destinations[0])

	assert.Equal(t, "sqlite", cfg.Cloud.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.Cloud.MissingThreshold)
	assert.False(t, cfg.Cloud.Redis.Enabled())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  db_path: /var/lib/scoreclock/events.db
  poll_interval: 2s
  redis:
    addr: localhost:6379
  destinations:
    - name: cloud
      kind: cloud
    - name: backup
      kind: file
      path: /var/lib/scoreclock/backup.jsonl
    - name: stream
      kind: redis
      stream: rink-events
      max_len: 1000
cloud:
  db_driver: postgres
  dsn: postgres://localhost/scoreclock
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scoreclock/events.db", cfg.Device.DBPath)
	assert.Equal(t, 2*time.Second, cfg.Device.PollInterval)
	require.Len(t, cfg.Device.Destinations, 3)

	backup, ok := cfg.Device.Destination("backup")
	require.True(t, ok)
	assert.Equal(t, "/var/lib/scoreclock/backup.jsonl", backup.Path)

	stream, ok := cfg.Device.Destination("stream")
	require.True(t, ok)
	assert.Equal(t, int64(1000), stream.MaxLen)

	_, ok = cfg.Device.Destination("missing")
	assert.False(t, ok)

	assert.Equal(t, "postgres", cfg.Cloud.DBDriver)
	assert.Equal(t, ":8000", cfg.Device.Listen, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "device:\n  listen: \":9000\"\n")
	t.Setenv("SCORECLOCK_DEVICE_LISTEN", ":9100")
	t.Setenv("SCORECLOCK_CLOUD_MISSING_THRESHOLD", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Device.Listen)
	assert.Equal(t, time.Minute, cfg.Cloud.MissingThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad isolation", func(c *Config) { c.Device.Isolation = "thread" }, "device.isolation"},
		{"zero tick", func(c *Config) { c.Device.TickInterval = 0 }, "device.tick_interval"},
		{"duplicate destination", func(c *Config) {
			c.Device.Destinations = append(c.Device.Destinations, Destination{Name: "cloud", Kind: KindCloud})
		}, "duplicate"},
		{"file without path", func(c *Config) {
			c.Device.Destinations = []Destination{{Name: "f", Kind: KindFile}}
		}, "destinations[0].path"},
		{"redis without addr", func(c *Config) {
			c.Device.Destinations = []Destination{{Name: "r", Kind: KindRedis}}
		}, "device.redis.addr"},
		{"nats without url", func(c *Config) {
			c.Device.Destinations = []Destination{{Name: "n", Kind: KindNATS}}
		}, "device.nats.url"},
		{"unknown kind", func(c *Config) {
			c.Device.Destinations = []Destination{{Name: "x", Kind: "kafka"}}
		}, "unknown kind"},
		{"bad driver", func(c *Config) { c.Cloud.DBDriver = "mysql" }, "cloud.db_driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
