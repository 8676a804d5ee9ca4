// Package config loads the portal configuration from hazard.yaml, .env and
// HAZARD_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the portal configuration.
type Config struct {
	Env     string        `mapstructure:"env"`
	DataDir string        `mapstructure:"data_dir"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Query   QueryConfig   `mapstructure:"query"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Export  ExportConfig  `mapstructure:"export"`
	Session SessionConfig `mapstructure:"session"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"` // duckdb, postgres
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// Seed is a SQL script run once at startup on duckdb stores.
	Seed string `mapstructure:"seed"`
}

// QueryConfig holds dataset load settings.
type QueryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects where populate snapshots are cached.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory, redis, none
	Addrs   []string      `mapstructure:"addrs"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// AuthConfig lists the API keys of privileged callers.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// ExportConfig holds map image export settings.
type ExportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Width   int           `mapstructure:"width"`
	Height  int           `mapstructure:"height"`
	// TileMaxZoom caps the zoom of PMTiles downloads.
	TileMaxZoom int `mapstructure:"tile_max_zoom"`
}

// SessionConfig holds portal session settings.
type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("data_dir", ".data")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "duckdb")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", time.Hour)
	v.SetDefault("store.seed", "")
	v.SetDefault("query.timeout", 30*time.Second)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.addrs", []string{})
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("export.timeout", 30*time.Second)
	v.SetDefault("export.width", 1600)
	v.SetDefault("export.height", 1000)
	v.SetDefault("export.tile_max_zoom", 8)
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)
}

// Load reads the configuration. path names an explicit config file; when
// empty, hazard.yaml is looked up in the working directory and ./config and
// may be absent.
func Load(path string) (*Config, error) {
	// .env only fills variables that are not already set.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hazard")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("HAZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Auth.APIKeys = splitList(cfg.Auth.APIKeys)
	cfg.Cache.Addrs = splitList(cfg.Cache.Addrs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("env must be local, dev or prod, got %q", c.Env)
	}
	switch c.Store.Driver {
	case "duckdb":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver must be duckdb or postgres, got %q", c.Store.Driver)
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return errors.New("cache.addrs is required for redis")
		}
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got %q", c.Cache.Backend)
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive, got %s", c.Query.Timeout)
	}
	if c.Export.Timeout <= 0 {
		return fmt.Errorf("export.timeout must be positive, got %s", c.Export.Timeout)
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		return fmt.Errorf("export size must be positive, got %dx%d", c.Export.Width, c.Export.Height)
	}
	if c.Export.TileMaxZoom < 0 || c.Export.TileMaxZoom > 14 {
		return fmt.Errorf("export.tile_max_zoom must be between 0 and 14, got %d", c.Export.TileMaxZoom)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}
