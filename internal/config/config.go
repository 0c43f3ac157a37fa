// Package config loads client configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config contains client configuration parameters.
type Config struct {
	// Remote storefront API.
	BaseURL        string        `json:"base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`

	// Credential store.
	StorePath     string        `json:"store_path"`     // file backend
	RedisAddr     string        `json:"redis_addr"`     // redis backend, optional
	RedisPrefix   string        `json:"redis_prefix"`   // key namespace
	WatchInterval time.Duration `json:"watch_interval"` // poll interval for file/redis watch

	// App configuration.
	Environment string `json:"environment"` // development, production
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

// NewConfig returns configuration with defaults overridden by the
// environment. A .env file next to the binary is honored when present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BaseURL:        "http://localhost:8000/api",
		RequestTimeout: 30 * time.Second,
		RedisPrefix:    "lenscart",
		WatchInterval:  2 * time.Second,
		Environment:    "development",
		LogLevel:       "info",
	}
	cfg.loadFromEnv()
	return cfg, nil
}

// loadFromEnv overrides defaults from environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("LENSCART_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LENSCART_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("LENSCART_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("LENSCART_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("LENSCART_REDIS_PREFIX"); v != "" {
		c.RedisPrefix = v
	}
	if v := os.Getenv("LENSCART_WATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.WatchInterval = d
		}
	}
	if v := os.Getenv("LENSCART_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LENSCART_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// IsProduction reports whether the client runs with production settings.
func (c *Config) IsProduction() bool { return c.Environment == "production" }
