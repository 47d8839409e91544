// Package config loads scoreclock settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// SCORECLOCK_* environment variables, then command-line flags bound by the
// CLI. Nested keys map to env vars with dots replaced by underscores, so
// device.db_path is SCORECLOCK_DEVICE_DB_PATH.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "SCORECLOCK"

// Destination kinds.
const (
	KindCloud = "cloud"
	KindFile  = "file"
	KindRedis = "redis"
	KindNATS  = "nats"
)

// Isolation modes for delivery workers.
const (
	IsolateGoroutine = "goroutine"
	IsolateProcess   = "process"
)

// Config is the full configuration. Each command reads the section it needs.
type Config struct {
	Device  Device  `mapstructure:"device"`
	Cloud   Cloud   `mapstructure:"cloud"`
	Logging Logging `mapstructure:"logging"`
}

// Device holds scoreboard controller settings.
type Device struct {
	DBPath            string        `mapstructure:"db_path"`
	Listen            string        `mapstructure:"listen"`
	DeviceID          string        `mapstructure:"device_id"`
	DeviceIDPath      string        `mapstructure:"device_id_path"`
	AppVersion        string        `mapstructure:"app_version"`
	CloudURL          string        `mapstructure:"cloud_url"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout"`
	BatchSize         int           `mapstructure:"batch_size"`
	PeriodSeconds     int64         `mapstructure:"period_seconds"`
	Isolation         string        `mapstructure:"isolation"`
	Destinations      []Destination `mapstructure:"destinations"`
	Redis             Redis         `mapstructure:"redis"`
	NATS              NATS          `mapstructure:"nats"`
}

// Destination is one delivery target with its own pusher.
type Destination struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
	// Path is the output file for file destinations.
	Path string `mapstructure:"path"`
	// Stream is the Redis stream key.
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
	// Subject is the NATS subject prefix.
	Subject string `mapstructure:"subject"`
}

// Cloud holds aggregator settings.
type Cloud struct {
	Listen           string        `mapstructure:"listen"`
	DBDriver         string        `mapstructure:"db_driver"`
	DSN              string        `mapstructure:"dsn"`
	MissingThreshold time.Duration `mapstructure:"missing_threshold"`
	Redis            Redis         `mapstructure:"redis"`
}

// Redis holds connection settings. An empty Addr disables Redis.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether an address is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// NATS holds broker settings. An empty URL disables NATS.
type NATS struct {
	URL        string `mapstructure:"url"`
	ClientName string `mapstructure:"client_name"`
}

// Logging holds log settings.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment bindings.
// If path is non-empty the YAML file is read and must exist.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Unmarshal decodes v into a Config and validates it.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New followed by Unmarshal.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(v)
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error

	switch c.Device.Isolation {
	case IsolateGoroutine, IsolateProcess:
	default:
		errs = append(errs, fmt.Errorf("device.isolation: must be %q or %q, got %q",
			IsolateGoroutine, IsolateProcess, c.Device.Isolation))
	}
	if c.Device.TickInterval <= 0 {
		errs = append(errs, errors.New("device.tick_interval: must be positive"))
	}
	if c.Device.PollInterval <= 0 {
		errs = append(errs, errors.New("device.poll_interval: must be positive"))
	}

	seen := make(map[string]bool, len(c.Device.Destinations))
	for i, d := range c.Device.Destinations {
		field := fmt.Sprintf("device.destinations[%d]", i)
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name: must not be empty", field))
		} else if seen[d.Name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", field, d.Name))
		}
		seen[d.Name] = true

		switch d.Kind {
		case KindCloud:
		case KindFile:
			if d.Path == "" {
				errs = append(errs, fmt.Errorf("%s.path: required for file destinations", field))
			}
		case KindRedis:
			if !c.Device.Redis.Enabled() {
				errs = append(errs, fmt.Errorf("%s: device.redis.addr is not set", field))
			}
		case KindNATS:
			if c.Device.NATS.URL == "" {
				errs = append(errs, fmt.Errorf("%s: device.nats.url is not set", field))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.kind: unknown kind %q", field, d.Kind))
		}
	}

	switch c.Cloud.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("cloud.db_driver: must be sqlite or postgres, got %q", c.Cloud.DBDriver))
	}
	return errors.Join(errs...)
}

// Destination returns the named destination.
func (d Device) Destination(name string) (Destination, bool) {
	for _, dest := range d.Destinations {
		if dest.Name == name {
			return dest, true
		}
	}
	return Destination{}, false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.db_path", "scoreclock.db")
	v.SetDefault("device.listen", ":8000")
	v.SetDefault("device.device_id", "")
	v.SetDefault("device.device_id_path", "device_id")
	v.SetDefault("device.app_version", "dev")
	v.SetDefault("device.cloud_url", "")
	v.SetDefault("device.tick_interval", "1s")
	v.SetDefault("device.poll_interval", "500ms")
	v.SetDefault("device.heartbeat_interval", "3s")
	v.SetDefault("device.request_timeout", "10s")
	v.SetDefault("device.stop_timeout", "5s")
	v.SetDefault("device.batch_size", 100)
	v.SetDefault("device.period_seconds", 1200)
	v.SetDefault("device.isolation", IsolateGoroutine)
	v.SetDefault("device.destinations", []map[string]any{{"name": "cloud", "kind": KindCloud}})
	v.SetDefault("device.redis.addr", "")
	v.SetDefault("device.nats.url", "")
	v.SetDefault("device.nats.client_name", "scoreclock")

	v.SetDefault("cloud.listen", ":8080")
	v.SetDefault("cloud.db_driver", "sqlite")
	v.SetDefault("cloud.dsn", "scoreclock-cloud.db")
	v.SetDefault("cloud.missing_threshold", "30s")
	v.SetDefault("cloud.redis.addr", "")
	v.SetDefault("cloud.redis.prefix", "scoreclock:heartbeat:")
	v.SetDefault("cloud.redis.ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
