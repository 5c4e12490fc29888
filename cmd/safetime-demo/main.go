package main

import (
	"flag"
	"os"
	"time"

	"github.com/beevik/ntp"

	"github.com/maximewewer/safetime/internal/config"
	"github.com/maximewewer/safetime/pkg/logger"
	"github.com/maximewewer/safetime/pkg/metrics"
	"github.com/maximewewer/safetime/pkg/safetime"
	"github.com/maximewewer/safetime/pkg/store"
)

var (
	// Build information
	version = "dev"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	crosscheck := flag.String("crosscheck", "", "Reference NTP host to compare the corrected clock against")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("safetime-demo version", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		// Cannot use logger yet, write to stderr
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitLogger(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "safetime-demo",
	}); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Startup(version, cfg)

	cacheStore, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("main", "Failed to open cache store", err)
	}
	defer closeStore()

	registry := metrics.NewRegistryWithConfig(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	registry.MustRegister()

	st, err := buildService(cfg, cacheStore, registry.GetMetrics())
	if err != nil {
		logger.Fatal("main", "Failed to build time service", err)
	}

	task := st.Sync(demoListener())
	if task != nil {
		task.Wait()
	}

	now, err := st.Now()
	if err != nil {
		logger.Fatal("main", "No trusted time available", err)
	}

	local := time.Now().UnixMilli()
	logger.SafeInfo("main", "Trusted time established", map[string]interface{}{
		"corrected": time.UnixMilli(now).UTC().Format(time.RFC3339Nano),
		"local":     time.UnixMilli(local).UTC().Format(time.RFC3339Nano),
		"delta_ms":  now - local,
	})

	if *crosscheck != "" {
		runCrosscheck(st, *crosscheck)
	}

	logger.Shutdown("demo complete")
}

// loadConfig picks the load strategy based on whether a file was provided
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromYamlWithEnvOverrides(path)
	}
	return config.LoadFromEnvVarsOnly()
}

// openStore creates the configured cache backend
func openStore(cfg *config.Config) (safetime.CacheStore, func(), error) {
	if cfg.Cache.Backend == "bolt" {
		b, err := store.NewBolt(cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}
	return store.NewMemory(), func() {}, nil
}

// buildService assembles the SafeTime instance from the demo configuration
func buildService(cfg *config.Config, cacheStore safetime.CacheStore, m *metrics.SafeTimeMetrics) (*safetime.SafeTime, error) {
	builder := safetime.NewBuilder().
		Hosts(cfg.NTP.Hosts...).
		Port(cfg.NTP.Port).
		ConnectionTimeout(cfg.NTP.Timeout).
		MaxRetryPerHost(cfg.NTP.MaxRetryPerHost).
		MaxRetryLoop(cfg.NTP.MaxRetryLoop).
		DelayBetweenRetryLoop(cfg.NTP.DelayBetweenRetryLoop).
		RootDelayMax(cfg.NTP.RootDelayMax).
		RootDispersionMax(cfg.NTP.RootDispersionMax).
		ServerResponseDelayMax(cfg.NTP.ServerResponseDelayMax).
		CacheStore(cacheStore).
		Metrics(m)

	if cfg.NTP.RateLimit.Enabled {
		builder = builder.RateLimit(cfg.NTP.RateLimit.GlobalRate, cfg.NTP.RateLimit.PerHostRate, cfg.NTP.RateLimit.BurstSize)
	}
	if cfg.NTP.CircuitBreaker.Enabled {
		builder = builder.CircuitBreaker(safetime.BreakerConfig{
			MaxRequests: cfg.NTP.CircuitBreaker.MaxRequests,
			Interval:    cfg.NTP.CircuitBreaker.Interval,
			Timeout:     cfg.NTP.CircuitBreaker.Timeout,
		})
	}

	return builder.Build()
}

// demoListener logs every sync event
func demoListener() safetime.Listener {
	return safetime.ListenerFuncs{
		Successful: func(sample safetime.TimeSample) {
			logger.SafeInfo("sync", "Sync successful", map[string]interface{}{
				"offset_ms":    sample.OffsetMs,
				"corrected_ms": sample.CorrectedMs,
			})
		},
		Failed: func(err error) {
			logger.Error("sync", "Sync failed", err)
		},
		NtpResponseSuccessful: func(sample safetime.TimeSample, host string, retryCount, cycle int) {
			logger.SafeDebug("sync", "Host responded", map[string]interface{}{
				"host":  host,
				"retry": retryCount,
				"cycle": cycle,
			})
		},
		NtpResponseFailed: func(host string, retryCount, cycle int, err error) {
			logger.SafeWarn("sync", "Host attempt failed", map[string]interface{}{
				"host":  host,
				"retry": retryCount,
				"cycle": cycle,
				"error": err.Error(),
			})
		},
		RetryLoopIn: func(cycle int, delay time.Duration) {
			logger.SafeInfo("sync", "Waiting before next retry loop", map[string]interface{}{
				"cycle": cycle,
				"delay": delay.String(),
			})
		},
	}
}

// runCrosscheck compares the corrected clock against an independent NTP
// library query
func runCrosscheck(st *safetime.SafeTime, host string) {
	reference, err := ntp.Time(host)
	if err != nil {
		logger.Error("crosscheck", "Reference query failed", err)
		return
	}

	corrected, err := st.Now()
	if err != nil {
		logger.Error("crosscheck", "No corrected time to compare", err)
		return
	}

	logger.SafeInfo("crosscheck", "Reference comparison", map[string]interface{}{
		"reference": reference.UTC().Format(time.RFC3339Nano),
		"corrected": time.UnixMilli(corrected).UTC().Format(time.RFC3339Nano),
		"delta_ms":  corrected - reference.UnixMilli(),
	})
}
