package safetime

import (
	"context"
	"errors"
	"time"

	"github.com/maximewewer/safetime/pkg/logger"
)

// retryController walks the host list until one attempt yields a validated
// sample or every bound is exhausted. One instance drives exactly one sync
// task.
//
// Attempt budget: with N hosts, R additional retries per host, and L
// additional cycles, at most N*(R+1)*(L+1) attempts run.
type retryController struct {
	opts      *Options
	fetcher   Fetcher
	validator *Validator
	repo      *CacheRepository
	events    *dispatcher
}

// run executes the state machine. It returns the stored sample on success,
// ErrCancelled when the context was cancelled (with no further listener
// events), or ErrSyncFailed after exhaustion.
func (rc *retryController) run(ctx context.Context) (TimeSample, error) {
	hosts := rc.opts.hosts
	hostIndex := 0
	perHostRetries := 0
	cycle := 0

	for {
		if ctx.Err() != nil {
			return TimeSample{}, ErrCancelled
		}

		host := hosts[hostIndex]
		sample, err := rc.attempt(ctx, host)

		if ctx.Err() != nil {
			return TimeSample{}, ErrCancelled
		}

		if err == nil {
			if err := rc.repo.Set(sample); err != nil {
				logger.Error("retry", "Failed to store validated sample", err)
			}
			rc.events.ntpResponseSuccessful(sample, host, perHostRetries, cycle)
			rc.events.successful(sample)
			return sample, nil
		}

		logger.SafeDebug("retry", "NTP attempt failed", map[string]interface{}{
			"host":    host,
			"retry":   perHostRetries,
			"cycle":   cycle,
			"error":   err.Error(),
		})
		rc.events.ntpResponseFailed(host, perHostRetries, cycle, err)

		if perHostRetries < rc.opts.maxRetryPerHost {
			perHostRetries++
			continue
		}
		perHostRetries = 0

		if hostIndex < len(hosts)-1 {
			hostIndex++
			continue
		}

		if cycle == rc.opts.maxRetryLoop {
			// Re-check that the task is still active before the terminal
			// event: a cancellation must stay silent.
			if ctx.Err() != nil {
				return TimeSample{}, ErrCancelled
			}
			rc.events.failed(ErrSyncFailed)
			return TimeSample{}, ErrSyncFailed
		}

		cycle++
		hostIndex = 0

		if delay := rc.opts.delayBetweenRetryLoop; delay > 0 {
			rc.events.nextRetryLoopIn(cycle, delay)
			select {
			case <-ctx.Done():
				return TimeSample{}, ErrCancelled
			case <-time.After(delay):
			}
		}
	}
}

// attempt runs one fetch-parse-validate-compute pipeline against one host
func (rc *retryController) attempt(ctx context.Context, host string) (TimeSample, error) {
	if m := rc.opts.metrics; m != nil {
		m.SyncAttemptsTotal.WithLabelValues(host).Inc()
	}

	ex, err := rc.fetcher.Fetch(ctx, host)
	if err != nil {
		rc.countFailure(host, err)
		return TimeSample{}, err
	}

	packet, err := ParsePacket(ex.Data)
	if err != nil {
		rc.countFailure(host, err)
		return TimeSample{}, err
	}

	if err := rc.validator.Validate(packet, ex); err != nil {
		rc.countFailure(host, err)
		return TimeSample{}, err
	}

	return ComputeSample(packet, ex), nil
}

func (rc *retryController) countFailure(host string, err error) {
	m := rc.opts.metrics
	if m == nil {
		return
	}
	m.SyncFailuresTotal.WithLabelValues(host, failureReason(err)).Inc()

	var untrusted *UntrustedResponseError
	if errors.As(err, &untrusted) {
		m.ResponsesRejectedTotal.WithLabelValues(untrusted.Field).Inc()
	}
}
