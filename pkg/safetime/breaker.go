package safetime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/maximewewer/safetime/pkg/logger"
)

// BreakerFetcher wraps a Fetcher with one circuit breaker per host. A host
// that keeps failing fails fast for the open period instead of eating the
// full connection timeout on every retry cycle, which lets the controller
// move on to healthier hosts quickly.
type BreakerFetcher struct {
	fetcher  Fetcher
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
	config   BreakerConfig
}

// BreakerConfig holds the per-host circuit breaker settings
type BreakerConfig struct {
	// MaxRequests is the number of probe requests allowed while half-open
	MaxRequests uint32

	// Interval is the cyclic period over which closed-state counts reset
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration

	// ReadyToTrip decides when the breaker opens. Nil selects the default:
	// at least 3 requests with a failure ratio of 0.6 or higher.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig returns the settings used when none are provided
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
}

// NewBreakerFetcher wraps the fetcher with per-host circuit breakers
func NewBreakerFetcher(fetcher Fetcher, config BreakerConfig) *BreakerFetcher {
	if config.MaxRequests == 0 {
		config = DefaultBreakerConfig()
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = DefaultBreakerConfig().ReadyToTrip
	}

	return &BreakerFetcher{
		fetcher:  fetcher,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
	}
}

// Fetch performs the exchange through the host's circuit breaker. An open
// breaker reports as an ErrIo attempt failure, which the retry controller
// treats like any other.
func (b *BreakerFetcher) Fetch(ctx context.Context, host string) (*Exchange, error) {
	breaker := b.breakerFor(host)

	result, err := breaker.Execute(func() (interface{}, error) {
		return b.fetcher.Fetch(ctx, host)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open for %s", ErrIo, host)
		}
		return nil, err
	}

	return result.(*Exchange), nil
}

// State returns the breaker state for a host
func (b *BreakerFetcher) State(host string) gobreaker.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	breaker, exists := b.breakers[host]
	if !exists {
		return gobreaker.StateClosed
	}
	return breaker.State()
}

// breakerFor gets or creates the breaker for a host
func (b *BreakerFetcher) breakerFor(host string) *gobreaker.CircuitBreaker {
	b.mu.RLock()
	breaker, exists := b.breakers[host]
	b.mu.RUnlock()

	if exists {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := b.breakers[host]; exists {
		return breaker
	}

	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.Timeout,
		ReadyToTrip: b.config.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.SafeWarn("breaker", "Circuit breaker state changed", map[string]interface{}{
				"host": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	b.breakers[host] = breaker
	return breaker
}
