// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"`
	JobsPath     string        `yaml:"jobs_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StreamPolicy holds the reconnect/backoff knobs for one logical connection.
type StreamPolicy struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type StreamConfig struct {
	URL       string        `yaml:"url"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Resource  StreamPolicy  `yaml:"resource"` // per-resource sessions
	Global    StreamPolicy  `yaml:"global"`   // process-wide event stream
}

type CacheConfig struct {
	Path       string        `yaml:"path"`
	MaxAge     time.Duration `yaml:"max_age"`
	MaxPerRepo int           `yaml:"max_per_repo"`
}

type AdminConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Stream  StreamConfig  `yaml:"stream"`
	Cache   CacheConfig   `yaml:"cache"`
	Admin   AdminConfig   `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Backend.JobsPath == "" {
		cfg.Backend.JobsPath = "/api/jobs"
	}
	if cfg.Backend.PollInterval <= 0 {
		cfg.Backend.PollInterval = 30 * time.Second
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 15 * time.Second
	}
	if cfg.Stream.Heartbeat <= 0 {
		cfg.Stream.Heartbeat = 30 * time.Second
	}
	cfg.Stream.Resource = normalizePolicy(cfg.Stream.Resource, 30*time.Second, 5)
	cfg.Stream.Global = normalizePolicy(cfg.Stream.Global, 60*time.Second, 10)
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "agentboard.db"
	}
	if cfg.Cache.MaxAge <= 0 {
		cfg.Cache.MaxAge = 24 * time.Hour
	}
	if cfg.Cache.MaxPerRepo <= 0 {
		cfg.Cache.MaxPerRepo = 10
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8090
	}

	// Minimal validation
	if cfg.Backend.BaseURL == "" {
		return nil, errors.New("backend.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizePolicy(p StreamPolicy, maxDelay time.Duration, attempts int) StreamPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = maxDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = attempts
	}
	return p
}
