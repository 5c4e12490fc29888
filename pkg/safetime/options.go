package safetime

import (
	"fmt"
	"time"

	"github.com/maximewewer/safetime/pkg/metrics"
	"github.com/maximewewer/safetime/pkg/store"
)

// Default configuration values
const (
	DefaultPort                   = 123
	DefaultConnectionTimeout      = 5 * time.Second
	DefaultMaxRetryPerHost        = 1
	DefaultMaxRetryLoop           = 1
	DefaultDelayBetweenRetryLoop  = 30 * time.Second
	DefaultRootDelayMax           = 100
	DefaultRootDispersionMax      = 100
	DefaultServerResponseDelayMax = 750 * time.Millisecond
)

// DefaultHosts is the host list used when none is configured
var DefaultHosts = []string{"time.google.com", "time.apple.com", "pool.ntp.org"}

// Options is the immutable configuration of a SafeTime instance. Build one
// through the Builder; the zero value is not usable.
type Options struct {
	hosts                  []string
	port                   int
	connectionTimeout      time.Duration
	maxRetryPerHost        int
	maxRetryLoop           int
	delayBetweenRetryLoop  time.Duration
	rootDelayMax           int64
	rootDispersionMax      int64
	serverResponseDelayMax time.Duration

	store    CacheStore
	ticks    TickSource
	listener Listener

	syncExecutor     Executor
	listenerExecutor Executor

	rateLimiter *RateLimiter
	breaker     *BreakerConfig
	metrics     *metrics.SafeTimeMetrics

	fetcher Fetcher
	nowMs   func() int64
}

// Builder assembles Options and materializes a SafeTime instance. Bounds
// count additional attempts beyond the first: MaxRetryPerHost 0 means one
// attempt per host, MaxRetryLoop 0 means one pass over the host list.
type Builder struct {
	opts Options
	set  map[string]bool
}

// NewBuilder starts a builder with every field unset
func NewBuilder() *Builder {
	return &Builder{set: make(map[string]bool)}
}

// Hosts sets the ordered NTP host list tried by each sync cycle
func (b *Builder) Hosts(hosts ...string) *Builder {
	b.opts.hosts = hosts
	b.set["hosts"] = true
	return b
}

// Port sets the UDP port queried on every host
func (b *Builder) Port(port int) *Builder {
	b.opts.port = port
	b.set["port"] = true
	return b
}

// ConnectionTimeout bounds each UDP dial and exchange. DNS resolution is
// bounded by the caller's context, or by the resolver's 10 second default
// when the context has no deadline.
func (b *Builder) ConnectionTimeout(d time.Duration) *Builder {
	b.opts.connectionTimeout = d
	b.set["timeout"] = true
	return b
}

// MaxRetryPerHost sets how many additional attempts each host gets within
// one cycle
func (b *Builder) MaxRetryPerHost(n int) *Builder {
	b.opts.maxRetryPerHost = n
	b.set["retryPerHost"] = true
	return b
}

// MaxRetryLoop sets how many additional passes over the host list follow
// the first
func (b *Builder) MaxRetryLoop(n int) *Builder {
	b.opts.maxRetryLoop = n
	b.set["retryLoop"] = true
	return b
}

// DelayBetweenRetryLoop sets the wait between passes over the host list
func (b *Builder) DelayBetweenRetryLoop(d time.Duration) *Builder {
	b.opts.delayBetweenRetryLoop = d
	b.set["retryDelay"] = true
	return b
}

// RootDelayMax sets the rejection threshold for the raw root delay field
func (b *Builder) RootDelayMax(v int64) *Builder {
	b.opts.rootDelayMax = v
	b.set["rootDelay"] = true
	return b
}

// RootDispersionMax sets the rejection threshold for the raw root
// dispersion field
func (b *Builder) RootDispersionMax(v int64) *Builder {
	b.opts.rootDispersionMax = v
	b.set["rootDispersion"] = true
	return b
}

// ServerResponseDelayMax bounds the asymmetry between round-trip time and
// server processing time
func (b *Builder) ServerResponseDelayMax(d time.Duration) *Builder {
	b.opts.serverResponseDelayMax = d
	b.set["responseDelay"] = true
	return b
}

// CacheStore sets the persistence backend for the validated sample
func (b *Builder) CacheStore(s CacheStore) *Builder {
	b.opts.store = s
	return b
}

// TickSource sets the monotonic counter shared by sync and Now
func (b *Builder) TickSource(t TickSource) *Builder {
	b.opts.ticks = t
	return b
}

// Listener sets the default listener used when a sync call passes nil
func (b *Builder) Listener(l Listener) *Builder {
	b.opts.listener = l
	return b
}

// SyncExecutor sets where sync tasks run. The default spawns one goroutine
// per task.
func (b *Builder) SyncExecutor(e Executor) *Builder {
	b.opts.syncExecutor = e
	return b
}

// ListenerExecutor sets where listener callbacks run. The default invokes
// them inline on the sync task.
func (b *Builder) ListenerExecutor(e Executor) *Builder {
	b.opts.listenerExecutor = e
	return b
}

// RateLimit enables query rate limiting in front of the transport
func (b *Builder) RateLimit(globalRate, perHostRate float64, burstSize int) *Builder {
	b.opts.rateLimiter = NewRateLimiter(globalRate, perHostRate, burstSize)
	return b
}

// CircuitBreaker enables per-host circuit breaking around the transport
func (b *Builder) CircuitBreaker(config BreakerConfig) *Builder {
	b.opts.breaker = &config
	return b
}

// Metrics publishes sync and cache metrics to the given instance
func (b *Builder) Metrics(m *metrics.SafeTimeMetrics) *Builder {
	b.opts.metrics = m
	return b
}

// Fetcher replaces the UDP transport. Used by tests and by callers with
// their own exchange mechanism; rate limiting and circuit breaking still
// wrap the replacement.
func (b *Builder) Fetcher(f Fetcher) *Builder {
	b.opts.fetcher = f
	return b
}

// clock replaces the wall-clock read. Test hook.
func (b *Builder) clock(nowMs func() int64) *Builder {
	b.opts.nowMs = nowMs
	return b
}

// Build validates the configuration, fills defaults, and assembles the
// SafeTime instance.
func (b *Builder) Build() (*SafeTime, error) {
	opts := b.opts

	if !b.set["hosts"] {
		opts.hosts = DefaultHosts
	}
	if !b.set["port"] {
		opts.port = DefaultPort
	}
	if !b.set["timeout"] {
		opts.connectionTimeout = DefaultConnectionTimeout
	}
	if !b.set["retryPerHost"] {
		opts.maxRetryPerHost = DefaultMaxRetryPerHost
	}
	if !b.set["retryLoop"] {
		opts.maxRetryLoop = DefaultMaxRetryLoop
	}
	if !b.set["retryDelay"] {
		opts.delayBetweenRetryLoop = DefaultDelayBetweenRetryLoop
	}
	if !b.set["rootDelay"] {
		opts.rootDelayMax = DefaultRootDelayMax
	}
	if !b.set["rootDispersion"] {
		opts.rootDispersionMax = DefaultRootDispersionMax
	}
	if !b.set["responseDelay"] {
		opts.serverResponseDelayMax = DefaultServerResponseDelayMax
	}
	if opts.store == nil {
		opts.store = store.NewMemory()
	}
	if opts.ticks == nil {
		opts.ticks = SystemTicks()
	}
	if opts.syncExecutor == nil {
		opts.syncExecutor = goExecutor{}
	}
	if opts.listenerExecutor == nil {
		opts.listenerExecutor = callerExecutor{}
	}
	if opts.nowMs == nil {
		opts.nowMs = wallNowMs
	}

	if len(opts.hosts) == 0 {
		return nil, fmt.Errorf("host list must not be empty")
	}
	if opts.port <= 0 || opts.port > 65535 {
		return nil, fmt.Errorf("invalid port %d", opts.port)
	}
	if opts.connectionTimeout <= 0 {
		return nil, fmt.Errorf("connection timeout must be positive")
	}
	if opts.maxRetryPerHost < 0 {
		return nil, fmt.Errorf("max retry per host must not be negative")
	}
	if opts.maxRetryLoop < 0 {
		return nil, fmt.Errorf("max retry loop must not be negative")
	}
	if opts.delayBetweenRetryLoop < 0 {
		return nil, fmt.Errorf("delay between retry loops must not be negative")
	}
	if opts.rootDelayMax < 1 {
		return nil, fmt.Errorf("root delay max must be at least 1")
	}
	if opts.rootDispersionMax < 1 {
		return nil, fmt.Errorf("root dispersion max must be at least 1")
	}
	if opts.serverResponseDelayMax <= 0 {
		return nil, fmt.Errorf("server response delay max must be positive")
	}

	return newSafeTime(&opts), nil
}
