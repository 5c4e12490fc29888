// Package config provides configuration loading with explicit naming
//
// Available functions:
//
//	LoadFromEnvVarsOnly()              - Environment variables ONLY
//	LoadFromYamlFile(path)             - YAML file ONLY (no env overrides)
//	LoadFromYamlWithEnvOverrides(path) - YAML base + Environment overrides
//	                                     Priority: Env Vars > YAML > Defaults
//
// Environment variables supported:
//
//	NTP:
//	  - SAFETIME_HOSTS (comma-separated), SAFETIME_PORT, SAFETIME_TIMEOUT
//	  - SAFETIME_MAX_RETRY_PER_HOST, SAFETIME_MAX_RETRY_LOOP
//	  - SAFETIME_DELAY_BETWEEN_RETRY_LOOP
//	  - SAFETIME_ROOT_DELAY_MAX, SAFETIME_ROOT_DISPERSION_MAX
//	  - SAFETIME_SERVER_RESPONSE_DELAY_MAX
//
//	RATE_LIMIT:
//	  - RATE_LIMIT_ENABLED, RATE_LIMIT_GLOBAL, RATE_LIMIT_PER_HOST
//	  - RATE_LIMIT_BURST_SIZE
//
//	CIRCUIT_BREAKER:
//	  - CIRCUIT_BREAKER_ENABLED, CIRCUIT_BREAKER_MAX_REQUESTS
//	  - CIRCUIT_BREAKER_INTERVAL, CIRCUIT_BREAKER_TIMEOUT
//
//	CACHE:
//	  - CACHE_BACKEND (memory|bolt), CACHE_PATH
//
//	LOGGING:
//	  - LOG_LEVEL (debug|info|warn|error), LOG_FORMAT (json|console)
//
//	METRICS:
//	  - METRICS_NAMESPACE, METRICS_SUBSYSTEM
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/maximewewer/safetime/pkg/logger"
)

// Config represents the complete demo application configuration
type Config struct {
	NTP     NTPConfig     `yaml:"ntp"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NTPConfig contains the time service configuration
type NTPConfig struct {
	Hosts                  []string             `yaml:"hosts"`
	Port                   int                  `yaml:"port"`
	Timeout                time.Duration        `yaml:"timeout"`
	MaxRetryPerHost        int                  `yaml:"max_retry_per_host"`
	MaxRetryLoop           int                  `yaml:"max_retry_loop"`
	DelayBetweenRetryLoop  time.Duration        `yaml:"delay_between_retry_loop"`
	RootDelayMax           int64                `yaml:"root_delay_max"`
	RootDispersionMax      int64                `yaml:"root_dispersion_max"`
	ServerResponseDelayMax time.Duration        `yaml:"server_response_delay_max"`
	RateLimit              RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker         CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RateLimitConfig contains query rate limiting configuration
type RateLimitConfig struct {
	Enabled     bool    `yaml:"enabled"`
	GlobalRate  float64 `yaml:"global_rate"`
	PerHostRate float64 `yaml:"per_host_rate"`
	BurstSize   int     `yaml:"burst_size"`
}

// CircuitBreakerConfig contains circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRequests uint32        `yaml:"max_requests"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig selects the cache backend
type CacheConfig struct {
	Backend string `yaml:"backend"` // memory or bolt
	Path    string `yaml:"path"`    // bolt file path
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// LoadFromYamlFile reads configuration from a YAML file only (no env var
// overrides). Use case: local development, testing.
func LoadFromYamlFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("config", "Failed to read config file", err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Error("config", "Failed to parse config file", err)
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration", err)
		return nil, fmt.Errorf("configuration validation failed for %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromYamlWithEnvOverrides loads base config from YAML, then overrides
// with environment variables. Priority: Environment Variables > YAML File
// > Defaults.
func LoadFromYamlWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadFromYamlFile(path)
	if err != nil {
		logger.Warn("config", "Failed to load YAML config file, falling back to env vars only")
		cfg = &Config{}
		ApplyDefaults(cfg)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration after env overrides", err)
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromEnvVarsOnly loads configuration from environment variables only.
// Priority: Environment Variables > Defaults.
func LoadFromEnvVarsOnly() (*Config, error) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration from environment", err)
		return nil, fmt.Errorf("environment configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to an existing
// config
func applyEnvOverrides(cfg *Config) {
	// NTP
	if hosts := os.Getenv("SAFETIME_HOSTS"); hosts != "" {
		cfg.NTP.Hosts = parseCommaSeparated(hosts)
	}
	if port := os.Getenv("SAFETIME_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.NTP.Port = p
		}
	}
	if timeout := os.Getenv("SAFETIME_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.NTP.Timeout = t
		}
	}
	if v := os.Getenv("SAFETIME_MAX_RETRY_PER_HOST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NTP.MaxRetryPerHost = n
		}
	}
	if v := os.Getenv("SAFETIME_MAX_RETRY_LOOP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NTP.MaxRetryLoop = n
		}
	}
	if v := os.Getenv("SAFETIME_DELAY_BETWEEN_RETRY_LOOP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NTP.DelayBetweenRetryLoop = d
		}
	}
	if v := os.Getenv("SAFETIME_ROOT_DELAY_MAX"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NTP.RootDelayMax = n
		}
	}
	if v := os.Getenv("SAFETIME_ROOT_DISPERSION_MAX"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NTP.RootDispersionMax = n
		}
	}
	if v := os.Getenv("SAFETIME_SERVER_RESPONSE_DELAY_MAX"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NTP.ServerResponseDelayMax = d
		}
	}

	// RATE LIMIT
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NTP.RateLimit.Enabled = b
		}
	}
	if v := os.Getenv("RATE_LIMIT_GLOBAL"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NTP.RateLimit.GlobalRate = r
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_HOST"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NTP.RateLimit.PerHostRate = r
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NTP.RateLimit.BurstSize = n
		}
	}

	// CIRCUIT BREAKER
	if v := os.Getenv("CIRCUIT_BREAKER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NTP.CircuitBreaker.Enabled = b
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.NTP.CircuitBreaker.MaxRequests = uint32(n)
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NTP.CircuitBreaker.Interval = d
		}
	}
	if v := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NTP.CircuitBreaker.Timeout = d
		}
	}

	// CACHE
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}

	// LOGGING
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// METRICS
	if v := os.Getenv("METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("METRICS_SUBSYSTEM"); v != "" {
		cfg.Metrics.Subsystem = v
	}
}

// parseCommaSeparated splits a comma-separated string, trimming whitespace
// and dropping empty items
func parseCommaSeparated(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
