package config

import (
	"time"

	"github.com/maximewewer/safetime/pkg/safetime"
)

// ApplyDefaults fills every unset field with its default value
func ApplyDefaults(cfg *Config) {
	// NTP defaults
	if len(cfg.NTP.Hosts) == 0 {
		cfg.NTP.Hosts = append([]string(nil), safetime.DefaultHosts...)
	}
	if cfg.NTP.Port == 0 {
		cfg.NTP.Port = safetime.DefaultPort
	}
	if cfg.NTP.Timeout == 0 {
		cfg.NTP.Timeout = safetime.DefaultConnectionTimeout
	}
	if cfg.NTP.MaxRetryPerHost == 0 {
		cfg.NTP.MaxRetryPerHost = safetime.DefaultMaxRetryPerHost
	}
	if cfg.NTP.MaxRetryLoop == 0 {
		cfg.NTP.MaxRetryLoop = safetime.DefaultMaxRetryLoop
	}
	if cfg.NTP.DelayBetweenRetryLoop == 0 {
		cfg.NTP.DelayBetweenRetryLoop = safetime.DefaultDelayBetweenRetryLoop
	}
	if cfg.NTP.RootDelayMax == 0 {
		cfg.NTP.RootDelayMax = safetime.DefaultRootDelayMax
	}
	if cfg.NTP.RootDispersionMax == 0 {
		cfg.NTP.RootDispersionMax = safetime.DefaultRootDispersionMax
	}
	if cfg.NTP.ServerResponseDelayMax == 0 {
		cfg.NTP.ServerResponseDelayMax = safetime.DefaultServerResponseDelayMax
	}

	// Rate limit defaults (disabled unless enabled explicitly)
	if cfg.NTP.RateLimit.GlobalRate == 0 {
		cfg.NTP.RateLimit.GlobalRate = 10
	}
	if cfg.NTP.RateLimit.PerHostRate == 0 {
		cfg.NTP.RateLimit.PerHostRate = 2
	}
	if cfg.NTP.RateLimit.BurstSize == 0 {
		cfg.NTP.RateLimit.BurstSize = 5
	}

	// Circuit breaker defaults (disabled unless enabled explicitly)
	if cfg.NTP.CircuitBreaker.MaxRequests == 0 {
		cfg.NTP.CircuitBreaker.MaxRequests = 3
	}
	if cfg.NTP.CircuitBreaker.Interval == 0 {
		cfg.NTP.CircuitBreaker.Interval = 60 * time.Second
	}
	if cfg.NTP.CircuitBreaker.Timeout == 0 {
		cfg.NTP.CircuitBreaker.Timeout = 30 * time.Second
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "safetime-cache.db"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "safetime"
	}
}
