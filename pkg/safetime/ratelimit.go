package safetime

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter bounds how often the transport may query NTP servers, both
// globally and per host. Public pools throttle or blacklist chatty clients;
// a limiter in front of the transport keeps aggressive retry settings from
// getting a deployment rate-limited upstream.
type RateLimiter struct {
	global      *rate.Limiter
	perHost     map[string]*rate.Limiter
	mu          sync.RWMutex
	perHostRate rate.Limit
	burstSize   int
}

// NewRateLimiter creates a limiter allowing globalRate queries per second
// overall and perHostRate queries per second to any single host, with the
// given burst size.
func NewRateLimiter(globalRate, perHostRate float64, burstSize int) *RateLimiter {
	return &RateLimiter{
		global:      rate.NewLimiter(rate.Limit(globalRate), burstSize),
		perHost:     make(map[string]*rate.Limiter),
		perHostRate: rate.Limit(perHostRate),
		burstSize:   burstSize,
	}
}

// Wait blocks until a query to the given host is allowed or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if err := rl.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}

	if err := rl.limiterFor(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", host, err)
	}

	return nil
}

// Allow reports whether a query is allowed right now, without waiting
func (rl *RateLimiter) Allow(host string) bool {
	if !rl.global.Allow() {
		return false
	}
	return rl.limiterFor(host).Allow()
}

// limitedFetcher holds every fetch until the limiter grants a slot
type limitedFetcher struct {
	fetcher Fetcher
	limiter *RateLimiter
}

func (f *limitedFetcher) Fetch(ctx context.Context, host string) (*Exchange, error) {
	if err := f.limiter.Wait(ctx, host); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}
	return f.fetcher.Fetch(ctx, host)
}

// limiterFor gets or creates the per-host limiter
func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.perHost[host]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.perHost[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.perHostRate, rl.burstSize)
	rl.perHost[host] = limiter
	return limiter
}
