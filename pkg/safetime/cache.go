package safetime

import (
	"encoding/json"
	"sync"

	"github.com/maximewewer/safetime/pkg/logger"
)

// CacheStore persists one opaque cache record. Load returns nil when the
// store is empty. Implementations live outside the core (see pkg/store);
// they only need to hand back whatever bytes were last stored.
type CacheStore interface {
	Load() ([]byte, error)
	Store(data []byte) error
	Clear() error
}

// cacheRecord is the persisted JSON form of a TimeSample. The field names
// are stable for interop with records written by earlier deployments.
// Unknown fields are ignored on read and missing fields default to zero.
type cacheRecord struct {
	TimeOffset        int64 `json:"time_offset"`
	Timestamp         int64 `json:"timestamp"`
	ResponseTimestamp int64 `json:"response_timestamp"`
}

// CacheRepository wraps a CacheStore with the validity and extrapolation
// logic. All access goes through one mutex so concurrent Now readers see
// either the previous or the new complete sample, never a torn one.
type CacheRepository struct {
	mu    sync.Mutex
	store CacheStore
}

// NewCacheRepository wraps the given store
func NewCacheRepository(store CacheStore) *CacheRepository {
	return &CacheRepository{store: store}
}

// Set stores the sample unconditionally, overwriting prior content. The
// Raw packet is not persisted.
func (r *CacheRepository) Set(sample TimeSample) error {
	data, err := json.Marshal(cacheRecord{
		TimeOffset:        sample.OffsetMs,
		Timestamp:         sample.CorrectedMs,
		ResponseTimestamp: sample.ResponseTicks,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Store(data)
}

// Get returns the cached sample, if any. Samples loaded here never carry a
// raw packet. Malformed stored data reads as an empty cache, not an error.
func (r *CacheRepository) Get() (TimeSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// load reads and decodes the stored record. Callers hold r.mu.
func (r *CacheRepository) load() (TimeSample, bool) {
	data, err := r.store.Load()
	if err != nil || len(data) == 0 {
		return TimeSample{}, false
	}

	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.SafeWarn("cache", "Discarding unreadable cache record", map[string]interface{}{
			"error": err.Error(),
		})
		return TimeSample{}, false
	}

	return TimeSample{
		OffsetMs:      rec.TimeOffset,
		CorrectedMs:   rec.Timestamp,
		ResponseTicks: rec.ResponseTimestamp,
	}, true
}

// HasValidCache reports whether a usable sample is stored. A stored tick
// reading ahead of the current one means the tick counter was reset by a
// reboot; the record is cleared and the cache reports invalid.
func (r *CacheRepository) HasValidCache(currentTicks int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sample, ok := r.load()
	if !ok {
		return false
	}

	if sample.ResponseTicks > currentTicks {
		logger.SafeWarn("cache", "Tick counter behind cached sample, clearing cache", map[string]interface{}{
			"cached_ticks":  sample.ResponseTicks,
			"current_ticks": currentTicks,
		})
		if err := r.store.Clear(); err != nil {
			logger.Error("cache", "Failed to clear corrupt cache", err)
		}
		return false
	}

	return true
}

// NowMs extrapolates the cached sample to the given tick reading. The
// second return is false when no valid sample is cached.
func (r *CacheRepository) NowMs(currentTicks int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sample, ok := r.load()
	if !ok || sample.ResponseTicks > currentTicks {
		return 0, false
	}

	return sample.NowMs(currentTicks), true
}

// Clear erases the stored sample
func (r *CacheRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Clear()
}
