// Package config loads the drl command's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the top-level configuration file.
type Config struct {
	Store  StoreConfig `yaml:"store"`
	Limits []Limit     `yaml:"limits"`
}

// StoreConfig selects and configures the counter backend.
type StoreConfig struct {
	Driver string       `yaml:"driver"`
	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Limit is a named quota. Period is a Go duration string such as "1h30m".
type Limit struct {
	Name   string        `yaml:"name"`
	Scope  string        `yaml:"scope"`
	Max    int64         `yaml:"max"`
	Period time.Duration `yaml:"period"`
}

// Default returns a configuration with an in-memory store and no limits.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverMemory,
			Redis:  RedisConfig{Addr: "localhost:6379"},
			SQLite: SQLiteConfig{Path: "drl.db"},
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the store driver and every limit.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is required"))
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	seen := make(map[string]bool, len(c.Limits))
	for i, l := range c.Limits {
		switch {
		case l.Name == "":
			errs = append(errs, fmt.Errorf("limits[%d]: name is required", i))
		case seen[l.Name]:
			errs = append(errs, fmt.Errorf("limits[%d]: duplicate name %q", i, l.Name))
		}
		seen[l.Name] = true
		if l.Scope == "" {
			errs = append(errs, fmt.Errorf("limits[%d]: scope is required", i))
		}
		if l.Max <= 0 {
			errs = append(errs, fmt.Errorf("limits[%d]: max must be positive", i))
		}
		if l.Period <= 0 {
			errs = append(errs, fmt.Errorf("limits[%d]: period must be positive", i))
		}
	}
	return errors.Join(errs...)
}

// Limit returns the limit with the given name.
func (c *Config) Limit(name string) (Limit, bool) {
	for _, l := range c.Limits {
		if l.Name == name {
			return l, true
		}
	}
	return Limit{}, false
}
