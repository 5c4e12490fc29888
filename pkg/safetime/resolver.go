package safetime

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/maximewewer/safetime/pkg/logger"
)

// resolverEntry is a cached DNS resolution
type resolverEntry struct {
	addrs      []string
	expiresAt  time.Time
	errorCount int
}

// Resolver resolves NTP hostnames through a TTL-bounded cache. Lookups that
// fail fall back to the last known addresses when any are cached; a failure
// with nothing cached surfaces as ErrUnresolvedHost. Entries resolved after
// a previous failure get the minimum TTL so the next lookup re-checks soon.
type Resolver struct {
	mu       sync.RWMutex
	cache    map[string]*resolverEntry
	minTTL   time.Duration
	maxTTL   time.Duration
	resolver *net.Resolver
}

// NewResolver creates a caching resolver. Zero TTLs select the defaults of
// 5 and 60 minutes.
func NewResolver(minTTL, maxTTL time.Duration) *Resolver {
	if minTTL == 0 {
		minTTL = 5 * time.Minute
	}
	if maxTTL == 0 {
		maxTTL = 60 * time.Minute
	}

	return &Resolver{
		cache:  make(map[string]*resolverEntry),
		minTTL: minTTL,
		maxTTL: maxTTL,
		resolver: &net.Resolver{
			PreferGo: true,
		},
	}
}

// Resolve returns the addresses for a hostname, consulting the cache first.
// IP literals are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, hostname string) ([]string, error) {
	if net.ParseIP(hostname) != nil {
		return []string{hostname}, nil
	}

	r.mu.RLock()
	entry, exists := r.cache[hostname]
	r.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.addrs, nil
	}

	addrs, err := r.lookup(ctx, hostname)
	if err != nil {
		if exists {
			r.mu.Lock()
			entry.errorCount++
			r.mu.Unlock()

			logger.SafeWarn("resolver", "DNS lookup failed, using stale entry", map[string]interface{}{
				"hostname":    hostname,
				"error":       err.Error(),
				"error_count": entry.errorCount,
			})
			return entry.addrs, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvedHost, hostname, err)
	}

	ttl := r.ttlFor(exists, entry)

	r.mu.Lock()
	r.cache[hostname] = &resolverEntry{
		addrs:     addrs,
		expiresAt: time.Now().Add(ttl),
	}
	r.mu.Unlock()

	logger.SafeDebug("resolver", "DNS cache updated", map[string]interface{}{
		"hostname": hostname,
		"addrs":    len(addrs),
		"ttl":      ttl.String(),
	})

	return addrs, nil
}

// lookup performs the actual DNS resolution with a bounded deadline
func (r *Resolver) lookup(ctx context.Context, hostname string) ([]string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	return r.resolver.LookupHost(ctx, hostname)
}

// ttlFor picks the TTL for a fresh resolution based on lookup history
func (r *Resolver) ttlFor(exists bool, entry *resolverEntry) time.Duration {
	if !exists {
		return (r.minTTL + r.maxTTL) / 2
	}
	if entry.errorCount > 0 {
		return r.minTTL
	}
	return r.maxTTL
}

// Invalidate removes a hostname from the cache
func (r *Resolver) Invalidate(hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cache, hostname)
}
