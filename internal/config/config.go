package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tribe-quiz-service/internal/retry"
)

// Store drivers for session state.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Version       string `yaml:"version"`
		ScenariosPath string `yaml:"scenarios_path"`
		TTL           string `yaml:"ttl"`
	} `yaml:"quiz"`
	Retry struct {
		MaxAttempts  int      `yaml:"max_attempts"`
		InitialDelay string   `yaml:"initial_delay"`
		MaxDelay     string   `yaml:"max_delay"`
		Multiplier   float64  `yaml:"multiplier"`
		Jitter       *float64 `yaml:"jitter"` // nil keeps the default; 0 disables jitter
	} `yaml:"retry"`
	Store struct {
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
	} `yaml:"store"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StoreDriver returns the configured session store driver. Without an
// explicit driver, Redis is used when an address is configured.
func (c Config) StoreDriver() string {
	if c.Store.Driver != "" {
		return c.Store.Driver
	}
	if c.Redis.Addr != "" {
		return DriverRedis
	}
	return DriverMemory
}

// RetryPolicy overlays configured values on the default profile-save policy.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	p.InitialDelay = TTLDuration(c.Retry.InitialDelay, p.InitialDelay)
	p.MaxDelay = TTLDuration(c.Retry.MaxDelay, p.MaxDelay)
	if c.Retry.Multiplier >= 1 {
		p.Multiplier = c.Retry.Multiplier
	}
	if j := c.Retry.Jitter; j != nil && *j >= 0 && *j < 1 {
		p.Jitter = *j
	}
	return p
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
