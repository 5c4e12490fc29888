package safetime

import (
	"context"
	"sync"
	"time"

	"github.com/maximewewer/safetime/pkg/logger"
)

// SafeTime is the public surface of the service. Build instances through
// the Builder. All methods are safe for concurrent use; at most one sync
// task makes progress at a time per instance.
type SafeTime struct {
	opts      *Options
	repo      *CacheRepository
	fetcher   Fetcher
	validator *Validator

	mu      sync.Mutex
	current *Task
}

// newSafeTime assembles the component chain from materialized options
func newSafeTime(opts *Options) *SafeTime {
	fetcher := opts.fetcher
	if fetcher == nil {
		transport := NewUDPTransport(opts.port, opts.connectionTimeout, opts.ticks)
		transport.nowMs = opts.nowMs
		fetcher = transport
	}
	if opts.rateLimiter != nil {
		fetcher = &limitedFetcher{fetcher: fetcher, limiter: opts.rateLimiter}
	}
	if opts.breaker != nil {
		fetcher = NewBreakerFetcher(fetcher, *opts.breaker)
	}

	validator := NewValidator(opts.rootDelayMax, opts.rootDispersionMax, opts.serverResponseDelayMax)
	validator.nowMs = opts.nowMs

	return &SafeTime{
		opts:      opts,
		repo:      NewCacheRepository(opts.store),
		fetcher:   fetcher,
		validator: validator,
	}
}

// Sync triggers a sync unconditionally. A running sync task is cancelled
// and joined before the new one starts. The listener falls back to the
// default listener from the builder when nil. Faults are delivered through
// the listener; Sync itself never fails synchronously.
func (st *SafeTime) Sync(listener Listener) *Task {
	return st.SyncContext(context.Background(), listener)
}

// SyncContext is Sync with the task additionally bound to ctx: cancelling
// the context cancels the task.
func (st *SafeTime) SyncContext(ctx context.Context, listener Listener) *Task {
	return st.startSync(ctx, listener)
}

// NowOrSync answers from the cache when a valid sample is stored,
// delivering the extrapolated sample to OnSuccessful without any network
// traffic and returning nil. Otherwise it behaves like Sync and returns
// the task handle.
func (st *SafeTime) NowOrSync(listener Listener) *Task {
	return st.NowOrSyncContext(context.Background(), listener)
}

// NowOrSyncContext is NowOrSync with a caller-supplied context
func (st *SafeTime) NowOrSyncContext(ctx context.Context, listener Listener) *Task {
	currentTicks := st.opts.ticks.Ticks()
	if st.repo.HasValidCache(currentTicks) {
		sample, _ := st.repo.Get()
		extrapolated := TimeSample{
			OffsetMs:      sample.OffsetMs,
			CorrectedMs:   sample.NowMs(currentTicks),
			ResponseTicks: currentTicks,
		}

		if m := st.opts.metrics; m != nil {
			m.CacheHitsTotal.Inc()
		}

		if listener == nil {
			listener = st.opts.listener
		}
		newDispatcher(listener, st.opts.listenerExecutor).successful(extrapolated)
		return nil
	}

	if m := st.opts.metrics; m != nil {
		m.CacheMissesTotal.Inc()
	}
	return st.startSync(ctx, listener)
}

// Now returns the corrected wall clock in Unix milliseconds, extrapolated
// from the cached sample. It fails with ErrNoValidCache when nothing
// usable is cached; no network traffic is ever issued here.
func (st *SafeTime) Now() (int64, error) {
	currentTicks := st.opts.ticks.Ticks()
	if !st.repo.HasValidCache(currentTicks) {
		if m := st.opts.metrics; m != nil {
			m.CacheMissesTotal.Inc()
		}
		return 0, ErrNoValidCache
	}

	ms, ok := st.repo.NowMs(currentTicks)
	if !ok {
		return 0, ErrNoValidCache
	}

	if m := st.opts.metrics; m != nil {
		m.CacheHitsTotal.Inc()
	}
	return ms, nil
}

// NowOrElse returns the corrected time, or the supplier's value when no
// valid sample is cached
func (st *SafeTime) NowOrElse(fallback func() int64) int64 {
	if ms, err := st.Now(); err == nil {
		return ms
	}
	return fallback()
}

// NowOrDefault returns the corrected time, falling back to the uncorrected
// local wall clock
func (st *SafeTime) NowOrDefault() int64 {
	return st.NowOrElse(st.opts.nowMs)
}

// Cancel cancels the most recently started sync task. Safe to call from
// any goroutine and in any state; cancelling twice is a no-op.
func (st *SafeTime) Cancel() {
	st.mu.Lock()
	task := st.current
	st.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

// GetTime performs one synchronous exchange against one host and returns
// the validated sample. Nothing is cached and no listener is involved;
// transport and validation errors surface directly.
func (st *SafeTime) GetTime(ctx context.Context, host string) (TimeSample, error) {
	ex, err := st.fetcher.Fetch(ctx, host)
	if err != nil {
		return TimeSample{}, err
	}

	packet, err := ParsePacket(ex.Data)
	if err != nil {
		return TimeSample{}, err
	}

	if err := st.validator.Validate(packet, ex); err != nil {
		return TimeSample{}, err
	}

	return ComputeSample(packet, ex), nil
}

// startSync swaps in a new task and schedules it on the sync executor. The
// new task cancels and joins its predecessor before touching the network.
func (st *SafeTime) startSync(ctx context.Context, listener Listener) *Task {
	if listener == nil {
		listener = st.opts.listener
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)

	st.mu.Lock()
	prev := st.current
	st.current = task
	st.mu.Unlock()

	// Cancel the superseded task before scheduling the new one so the new
	// task only has to join it
	if prev != nil && !prev.IsDone() {
		prev.Cancel()
	}

	st.opts.syncExecutor.Execute(func() {
		defer task.finish()

		if prev != nil {
			prev.Wait()
		}

		if taskCtx.Err() != nil {
			return
		}

		rc := &retryController{
			opts:      st.opts,
			fetcher:   st.fetcher,
			validator: st.validator,
			repo:      st.repo,
			events:    newDispatcher(listener, st.opts.listenerExecutor),
		}

		started := time.Now()
		sample, err := rc.run(taskCtx)

		m := st.opts.metrics
		if m != nil {
			m.SyncDurationSeconds.Observe(time.Since(started).Seconds())
		}

		switch err {
		case nil:
			if m != nil {
				m.ClockOffsetMillis.Set(float64(sample.OffsetMs))
			}
			logger.SafeInfo("safetime", "Time synchronized", map[string]interface{}{
				"offset_ms":    sample.OffsetMs,
				"corrected_ms": sample.CorrectedMs,
			})
		case ErrCancelled:
			logger.Debug("safetime", "Sync task cancelled")
		default:
			logger.Error("safetime", "Sync exhausted all hosts", err)
		}
	})

	return task
}
