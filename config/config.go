// Package config loads process configuration from a YAML file and
// SCHEDULE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SCHEDULE_STORAGE_DSN.
const EnvPrefix = "SCHEDULE"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// ZoneConfig selects the naive-instant policy.
type ZoneConfig struct {
	// AllowNaive coerces floating times instead of rejecting them.
	AllowNaive bool `mapstructure:"allow_naive"`
	// DefaultLocation is an IANA zone name. Empty means UTC.
	DefaultLocation string `mapstructure:"default_location"`
}

// EngineConfig picks a recurrence engine preset and overrides parts of it.
type EngineConfig struct {
	// Preset is one of default, high_performance, low_memory, disabled.
	Preset string `mapstructure:"preset"`
	// MaxOccurrences overrides the preset's cap when positive.
	MaxOccurrences int `mapstructure:"max_occurrences"`
	// OptimizedGeneration overrides the preset's hint fast path when set.
	OptimizedGeneration *bool `mapstructure:"optimized_generation"`
	// CacheTTL overrides the preset's cache TTL when positive.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Config is the top-level configuration.
type Config struct {
	LogLevel    string        `mapstructure:"log_level"`
	Concurrency int           `mapstructure:"concurrency"`
	Zone        ZoneConfig    `mapstructure:"zone"`
	Engine      EngineConfig  `mapstructure:"engine"`
	Storage     StorageConfig `mapstructure:"storage"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("concurrency", 8)
	v.SetDefault("zone.allow_naive", false)
	v.SetDefault("zone.default_location", "UTC")
	v.SetDefault("engine.preset", "default")
	v.SetDefault("engine.max_occurrences", 0)
	v.SetDefault("engine.cache_ttl", time.Duration(0))
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "")
}

// Load reads the YAML file at path, when path is not empty, and applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are invisible to AutomaticEnv.
	if err := v.BindEnv("engine.optimized_generation"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that is interpreted later.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ZonePolicy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RecurrenceConfig(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// ZonePolicy builds the naive-instant policy.
func (c *Config) ZonePolicy() (schedule.ZonePolicy, error) {
	name := c.Zone.DefaultLocation
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return schedule.ZonePolicy{}, fmt.Errorf("zone.default_location: %w", err)
	}
	return schedule.ZonePolicy{AllowNaive: c.Zone.AllowNaive, DefaultLocation: loc}, nil
}

var presets = map[string]recurrence.EngineConfig{
	"default":          recurrence.DefaultEngineConfig,
	"high_performance": recurrence.HighPerformanceConfig,
	"low_memory":       recurrence.LowMemoryConfig,
	"disabled":         recurrence.DisabledCacheConfig,
}

// RecurrenceConfig resolves the preset and applies overrides.
func (c *Config) RecurrenceConfig() (recurrence.EngineConfig, error) {
	preset := strings.ToLower(c.Engine.Preset)
	if preset == "" {
		preset = "default"
	}
	rc, ok := presets[preset]
	if !ok {
		return recurrence.EngineConfig{}, fmt.Errorf("engine.preset: unknown preset %q", c.Engine.Preset)
	}
	if c.Engine.MaxOccurrences > 0 {
		rc.MaxOccurrences = c.Engine.MaxOccurrences
	}
	if c.Engine.OptimizedGeneration != nil {
		rc.OptimizedGeneration = *c.Engine.OptimizedGeneration
	}
	if c.Engine.CacheTTL > 0 {
		rc.CacheConfig.TTL = c.Engine.CacheTTL
	}
	return rc, nil
}
