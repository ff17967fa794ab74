// Package config loads the connect-streamd daemon configuration from a YAML
// file with CONNECT_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Offsets OffsetsConfig `mapstructure:"offsets"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AppConfig struct {
	Key          string `mapstructure:"key"`
	AccessToken  string `mapstructure:"access_token"`
	MasterSecret string `mapstructure:"master_secret"`
	Region       string `mapstructure:"region"`
	BaseURL      string `mapstructure:"base_url"`
}

type StreamConfig struct {
	Start          string        `mapstructure:"start"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Backoff        BackoffConfig `mapstructure:"backoff"`
	Filter         FilterConfig  `mapstructure:"filter"`
}

type BackoffConfig struct {
	Initial     time.Duration `mapstructure:"initial"`
	Max         time.Duration `mapstructure:"max"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type FilterConfig struct {
	Types       []string `mapstructure:"types"`
	DeviceTypes []string `mapstructure:"device_types"`
	LatencyMS   int64    `mapstructure:"latency_ms"`
}

type OffsetsConfig struct {
	Backend  string        `mapstructure:"backend"`
	File     FileOffsets   `mapstructure:"file"`
	Redis    RedisOffsets  `mapstructure:"redis"`
	Postgres PgOffsets     `mapstructure:"postgres"`
	SQLite   SQLiteOffsets `mapstructure:"sqlite"`
}

type FileOffsets struct {
	Path string `mapstructure:"path"`
}

type RedisOffsets struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type PgOffsets struct {
	DSN      string `mapstructure:"dsn"`
	Consumer string `mapstructure:"consumer"`
}

type SQLiteOffsets struct {
	Path     string `mapstructure:"path"`
	Consumer string `mapstructure:"consumer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("connect")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys it knows about, so bind the
	// keys that are commonly env-only (secrets kept out of the file).
	for _, key := range []string{
		"app.key",
		"app.access_token",
		"app.master_secret",
		"app.region",
		"app.base_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.region", "US")
	v.SetDefault("offsets.backend", "file")
	v.SetDefault("offsets.file.path", ".offset")
	v.SetDefault("offsets.redis.key", "connect-offset")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", ":9102")
}

func (c Config) Validate() error {
	if c.App.Key == "" {
		return fmt.Errorf("app.key is required")
	}
	if c.App.AccessToken == "" && c.App.MasterSecret == "" {
		return fmt.Errorf("one of app.access_token or app.master_secret is required")
	}
	if c.App.AccessToken != "" && c.App.MasterSecret != "" {
		return fmt.Errorf("app.access_token and app.master_secret are mutually exclusive")
	}
	switch c.Offsets.Backend {
	case "file", "redis", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown offsets.backend %q", c.Offsets.Backend)
	}
	return nil
}
