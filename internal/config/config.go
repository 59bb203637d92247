package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string        `mapstructure:"mode"`
	Port     int           `mapstructure:"port"`
	LogLevel string        `mapstructure:"log_level"`
	Auth     AuthConfig    `mapstructure:"auth"`
	WS       WSConfig      `mapstructure:"ws"`
	Store    StoreConfig   `mapstructure:"store"`
	Archive  ArchiveConfig `mapstructure:"archive"`
	Limits   LimitsConfig  `mapstructure:"limits"`
	History  HistoryConfig `mapstructure:"history"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	// Timeout bounds how long an upgraded connection may stay unauthenticated.
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	// Backpressure is "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	MaxConns    int    `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type ArchiveConfig struct {
	Schedule  string        `mapstructure:"schedule"`
	Retention time.Duration `mapstructure:"retention"`
	BatchSize int           `mapstructure:"batch_size"`
	// Timeout bounds one archival run, scheduled or on demand.
	Timeout time.Duration `mapstructure:"timeout"`
}

type LimitsConfig struct {
	SendPerInterval int           `mapstructure:"send_per_interval"`
	Interval        time.Duration `mapstructure:"interval"`
}

type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists, falls back to defaults otherwise,
// and applies PARLEY_* environment overrides (e.g. PARLEY_STORE_DSN).
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.timeout", "10s")

	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.write_timeout", "5s")
	v.SetDefault("ws.op_timeout", "10s")
	v.SetDefault("ws.backpressure", "kick")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.auto_migrate", true)

	v.SetDefault("archive.schedule", "0 0 * * *")
	v.SetDefault("archive.retention", "24h")
	v.SetDefault("archive.batch_size", 500)
	v.SetDefault("archive.timeout", "10m")

	v.SetDefault("limits.send_per_interval", 20)
	v.SetDefault("limits.interval", "10s")

	v.SetDefault("history.default_limit", 50)
	v.SetDefault("history.max_limit", 200)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Mode == "release" && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required in release mode"))
	}
	if c.Archive.Retention <= 0 {
		errs = append(errs, errors.New("archive.retention must be positive"))
	}
	if c.Archive.Timeout <= 0 {
		errs = append(errs, errors.New("archive.timeout must be positive"))
	}
	if c.Archive.BatchSize <= 0 {
		errs = append(errs, errors.New("archive.batch_size must be positive"))
	}
	if c.Auth.Timeout <= 0 {
		errs = append(errs, errors.New("auth.timeout must be positive"))
	}
	if c.WS.Backpressure != "kick" && c.WS.Backpressure != "drop" {
		errs = append(errs, fmt.Errorf("unknown ws.backpressure %q", c.WS.Backpressure))
	}
	if c.WS.PingPeriod <= 0 || c.WS.WriteTimeout <= 0 || c.WS.OpTimeout <= 0 {
		errs = append(errs, errors.New("ws timings must be positive"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if c.History.DefaultLimit <= 0 || c.History.MaxLimit < c.History.DefaultLimit {
		errs = append(errs, errors.New("history limits must satisfy 0 < default_limit <= max_limit"))
	}
	return errors.Join(errs...)
}
