package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Demo      DemoConfig      `yaml:"demo"`
	Trace     TraceConfig     `yaml:"trace"`
	Hub       HubConfig       `yaml:"hub"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
}

// UpstreamConfig holds summary service configuration.
type UpstreamConfig struct {
	BaseURL        string        `envconfig:"PERCH_SERVICE_URL" default:"http://localhost:9000" yaml:"base_url"`
	Timeout        time.Duration `envconfig:"PERCH_SERVICE_TIMEOUT" default:"60s" yaml:"timeout"`
	ConnectTimeout time.Duration `envconfig:"PERCH_SERVICE_CONNECT_TIMEOUT" default:"10s" yaml:"connect_timeout"`
}

// DashboardConfig holds dashboard auth configuration. An empty password
// disables authentication entirely.
type DashboardConfig struct {
	Password string `envconfig:"DASHBOARD_PASSWORD" yaml:"password"`
}

// DemoConfig holds demo data configuration.
type DemoConfig struct {
	DataPath string `envconfig:"DEMO_DATA_PATH" default:"./demo_data" yaml:"data_path"`
}

// TraceConfig holds trace history configuration. A zero history limit
// keeps the history unbounded.
type TraceConfig struct {
	HistoryLimit int `envconfig:"TRACE_HISTORY_LIMIT" default:"0" yaml:"history_limit"`
}

// HubConfig holds broadcast configuration.
type HubConfig struct {
	SendTimeout time.Duration `envconfig:"HUB_SEND_TIMEOUT" default:"5s" yaml:"send_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables, optionally
// overlaid with a YAML file named by NEST_CONFIG. File values win over
// env defaults; `${VAR}` references inside the file are expanded from the
// environment before parsing.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if path := os.Getenv("NEST_CONFIG"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadFile loads env config overlaid with the given YAML file.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := overlayFile(&cfg, path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		// Keep unresolved references intact, matching how the file looked.
		return "${" + key + "}"
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Upstream: UpstreamConfig{
			BaseURL:        "http://localhost:9000",
			Timeout:        60 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Demo: DemoConfig{
			DataPath: "./demo_data",
		},
		Hub: HubConfig{
			SendTimeout: 5 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
