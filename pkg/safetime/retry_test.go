package safetime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/safetime/pkg/store"
)

// newTestController wires a retry controller around a mock fetcher with an
// inline listener and a fixed validator clock of 1_000_020
func newTestController(hosts []string, retryPerHost, retryLoop int, delay time.Duration, fetcher Fetcher) (*retryController, *RecordingListener, *CacheRepository) {
	opts := &Options{
		hosts:                  hosts,
		maxRetryPerHost:        retryPerHost,
		maxRetryLoop:           retryLoop,
		delayBetweenRetryLoop:  delay,
		rootDelayMax:           100,
		rootDispersionMax:      100,
		serverResponseDelayMax: 750 * time.Millisecond,
	}

	validator := NewValidator(opts.rootDelayMax, opts.rootDispersionMax, opts.serverResponseDelayMax)
	validator.nowMs = func() int64 { return 1_000_020 }

	listener := NewRecordingListener()
	repo := NewCacheRepository(store.NewMemory())

	rc := &retryController{
		opts:      opts,
		fetcher:   fetcher,
		validator: validator,
		repo:      repo,
		events:    newDispatcher(listener, callerExecutor{}),
	}
	return rc, listener, repo
}

// goodExchange is a response that validates cleanly against the test clock
func goodExchange(host string) *Exchange {
	return NewServerExchange(host, 1_000_000, 1_000_050, 1_000_060, 1_000_020, 20)
}

func TestRetryController_HappyPath(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.Respond("a", goodExchange("a"))

	rc, listener, repo := newTestController([]string{"a"}, 0, 0, 0, fetcher)

	sample, err := rc.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(45), sample.OffsetMs)
	assert.Equal(t, int64(1_000_065), sample.CorrectedMs)

	events := listener.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventResponseSuccessful, events[0].Kind)
	assert.Equal(t, "a", events[0].Host)
	assert.Equal(t, 0, events[0].RetryCount)
	assert.Equal(t, 0, events[0].Cycle)
	assert.Equal(t, EventSuccessful, events[1].Kind)
	assert.Equal(t, int64(1_000_065), events[1].Sample.CorrectedMs)

	cached, ok := repo.Get()
	require.True(t, ok)
	assert.Equal(t, int64(45), cached.OffsetMs)
}

func TestRetryController_HostRotation(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.FailWith("a", ErrTimeout)
	fetcher.FailWith("b", ErrTimeout)
	fetcher.Respond("c", goodExchange("c"))

	rc, listener, _ := newTestController([]string{"a", "b", "c"}, 0, 0, 0, fetcher)

	_, err := rc.run(context.Background())
	require.NoError(t, err)

	events := listener.Events()
	require.Len(t, events, 4)
	assert.Equal(t, EventResponseFailed, events[0].Kind)
	assert.Equal(t, "a", events[0].Host)
	assert.Equal(t, EventResponseFailed, events[1].Kind)
	assert.Equal(t, "b", events[1].Host)
	assert.Equal(t, EventResponseSuccessful, events[2].Kind)
	assert.Equal(t, "c", events[2].Host)
	assert.Equal(t, EventSuccessful, events[3].Kind)
}

func TestRetryController_FullExhaustion(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.FailWith("a", ErrTimeout)
	fetcher.FailWith("b", ErrTimeout)

	delay := 5 * time.Millisecond
	rc, listener, repo := newTestController([]string{"a", "b"}, 1, 2, delay, fetcher)

	_, err := rc.run(context.Background())
	assert.True(t, errors.Is(err, ErrSyncFailed))

	// 2 hosts * (1+1) attempts * (2+1) cycles
	assert.Equal(t, 12, listener.Count(EventResponseFailed))
	assert.Equal(t, 1, listener.Count(EventFailed))
	assert.Zero(t, listener.Count(EventSuccessful))

	loops := make([]RecordedEvent, 0, 2)
	for _, ev := range listener.Events() {
		if ev.Kind == EventRetryLoopIn {
			loops = append(loops, ev)
		}
	}
	require.Len(t, loops, 2)
	assert.Equal(t, 1, loops[0].Cycle)
	assert.Equal(t, 2, loops[1].Cycle)
	assert.Equal(t, delay, loops[0].Delay)

	// The terminal event is last
	events := listener.Events()
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
	assert.True(t, errors.Is(events[len(events)-1].Err, ErrSyncFailed))

	assert.Equal(t, 6, fetcher.CallCount("a"))
	assert.Equal(t, 6, fetcher.CallCount("b"))

	_, ok := repo.Get()
	assert.False(t, ok, "nothing is cached on exhaustion")
}

func TestRetryController_AttemptBudget(t *testing.T) {
	fetcher := NewMockFetcher()
	for _, host := range []string{"a", "b", "c"} {
		fetcher.FailWith(host, ErrIo)
	}

	rc, listener, _ := newTestController([]string{"a", "b", "c"}, 2, 1, 0, fetcher)

	_, err := rc.run(context.Background())
	assert.True(t, errors.Is(err, ErrSyncFailed))

	// 3 * (2+1) * (1+1)
	assert.Equal(t, 18, listener.Count(EventResponseFailed))
}

func TestRetryController_RetryCountAndCycleFields(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.FailWith("a", ErrTimeout)

	rc, listener, _ := newTestController([]string{"a"}, 1, 1, 0, fetcher)

	_, err := rc.run(context.Background())
	assert.True(t, errors.Is(err, ErrSyncFailed))

	var failures []RecordedEvent
	for _, ev := range listener.Events() {
		if ev.Kind == EventResponseFailed {
			failures = append(failures, ev)
		}
	}
	require.Len(t, failures, 4)
	assert.Equal(t, 0, failures[0].RetryCount)
	assert.Equal(t, 0, failures[0].Cycle)
	assert.Equal(t, 1, failures[1].RetryCount)
	assert.Equal(t, 0, failures[1].Cycle)
	assert.Equal(t, 0, failures[2].RetryCount)
	assert.Equal(t, 1, failures[2].Cycle)
	assert.Equal(t, 1, failures[3].RetryCount)
	assert.Equal(t, 1, failures[3].Cycle)
}

func TestRetryController_NoLoopEventWithoutDelay(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.FailWith("a", ErrTimeout)

	rc, listener, _ := newTestController([]string{"a"}, 0, 2, 0, fetcher)

	_, err := rc.run(context.Background())
	assert.True(t, errors.Is(err, ErrSyncFailed))
	assert.Zero(t, listener.Count(EventRetryLoopIn))
}

func TestRetryController_RetryAfterRejectedResponse(t *testing.T) {
	// A response that fails validation counts like any other failure
	badExchange := NewServerExchange("a", 1_000_000, 1_000_050, 1_000_060, 1_000_020, 20)
	badPacket, err := ParsePacket(badExchange.Data)
	require.NoError(t, err)
	badPacket.Stratum = 0
	badExchange.Data = badPacket.Marshal()

	fetcher := NewMockFetcher()
	fetcher.QueueResponse("a", badExchange)
	fetcher.QueueResponse("a", goodExchange("a"))

	rc, listener, _ := newTestController([]string{"a"}, 1, 0, 0, fetcher)

	_, err = rc.run(context.Background())
	require.NoError(t, err)

	events := listener.Events()
	require.Len(t, events, 3)
	assert.Equal(t, EventResponseFailed, events[0].Kind)

	var untrusted *UntrustedResponseError
	require.True(t, errors.As(events[0].Err, &untrusted))
	assert.Equal(t, FieldStratum, untrusted.Field)
	assert.Equal(t, int64(0), untrusted.Actual)
}

func TestRetryController_MalformedResponseIsAFailure(t *testing.T) {
	short := goodExchange("a")
	short.Data = short.Data[:10]

	fetcher := NewMockFetcher()
	fetcher.QueueResponse("a", short)
	fetcher.QueueResponse("a", goodExchange("a"))

	rc, listener, _ := newTestController([]string{"a"}, 1, 0, 0, fetcher)

	_, err := rc.run(context.Background())
	require.NoError(t, err)
	assert.True(t, errors.Is(listener.Events()[0].Err, ErrMalformedResponse))
}

func TestRetryController_CancelledBeforeStart(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.Respond("a", goodExchange("a"))

	rc, listener, _ := newTestController([]string{"a"}, 0, 0, 0, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.run(ctx)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Empty(t, listener.Events())
	assert.Zero(t, fetcher.CallCount("a"))
}

func TestRetryController_CancelledMidLoopStaysSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// The fetch itself cancels the task, as a cancel racing an attempt would
	fetcher := FetcherFunc(func(fetchCtx context.Context, host string) (*Exchange, error) {
		cancel()
		return nil, ErrTimeout
	})

	rc, listener, repo := newTestController([]string{"a"}, 3, 3, 0, fetcher)

	_, err := rc.run(ctx)
	assert.True(t, errors.Is(err, ErrCancelled))

	// No failure events, no terminal event, no cache write
	assert.Empty(t, listener.Events())
	_, ok := repo.Get()
	assert.False(t, ok)
}

func TestRetryController_CancelledDuringLoopDelay(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.FailWith("a", ErrTimeout)

	rc, listener, _ := newTestController([]string{"a"}, 0, 1, 10*time.Second, fetcher)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := rc.run(ctx)
		done <- err
	}()

	// Wait for the first failure and the loop announcement, then cancel
	require.Eventually(t, func() bool {
		return listener.Count(EventRetryLoopIn) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrCancelled))
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not exit the inter-cycle wait")
	}

	assert.Zero(t, listener.Count(EventFailed))
}
