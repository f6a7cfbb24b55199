package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/internal/usecase"
	"SentinelX/pkg/clock"
	"SentinelX/pkg/logger"
	"SentinelX/pkg/metrics"
)

const (
	waitFor = 2 * time.Second
	pollInt = 10 * time.Millisecond
)

type pollerHarness struct {
	clock   *clock.Fake
	backend *fakeBackend
	agg     *usecase.Aggregator
	commits *commitLog
	poller  *usecase.Poller
}

func newPollerHarness(t *testing.T, b *fakeBackend, interval time.Duration, fetches ...usecase.Fetch) *pollerHarness {
	t.Helper()

	h := &pollerHarness{
		clock:   clock.NewFake(epoch),
		backend: b,
		commits: &commitLog{},
	}
	h.agg = usecase.NewAggregator("overview", h.clock, metrics.Nop{}, h.commits)
	h.poller = usecase.NewPoller(
		usecase.PollerConfig{View: "overview", Interval: interval, Fetches: fetches},
		b, usecase.NewRequestTracker(), h.agg, h.clock, metrics.Nop{}, logger.Nop(),
	)
	t.Cleanup(func() {
		h.poller.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, h.poller.Wait(ctx))
	})
	return h
}

// tick advances the clock by one interval once the poller is waiting on it.
func (h *pollerHarness) tick(t *testing.T, d time.Duration) {
	t.Helper()
	require.True(t, h.clock.BlockUntil(1, waitFor), "poller never scheduled the next tick")
	h.clock.Advance(d)
}

func (h *pollerHarness) status(kind models.Kind) models.SlotStatus {
	return h.agg.Read(kind).Status
}

func TestPollerImmediateBatch(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, value(health(models.HealthOK))).
		on(models.KindMetrics, value(metricsWithTotal(120)))
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindMetrics},
	)

	assert.Equal(t, usecase.PollerIdle, h.poller.State())
	assert.Equal(t, models.StatusIdle, h.status(models.KindHealth))

	require.NoError(t, h.poller.Start(context.Background()))
	assert.Equal(t, usecase.PollerRunning, h.poller.State())

	require.Eventually(t, func() bool {
		return h.status(models.KindHealth) == models.StatusSuccess &&
			h.status(models.KindMetrics) == models.StatusSuccess
	}, waitFor, pollInt)
	assert.Equal(t, uint64(1), h.poller.Ticks())
	assert.Equal(t, 1, b.Calls(models.KindHealth))
}

func TestPollerKindsAreIndependent(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, failing(models.NetworkError(models.KindHealth, errors.New("connection refused")))).
		on(models.KindMetrics, value(metricsWithTotal(120)))
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindMetrics},
	)
	require.NoError(t, h.poller.Start(context.Background()))

	require.Eventually(t, func() bool {
		return h.status(models.KindHealth) == models.StatusError &&
			h.status(models.KindMetrics) == models.StatusSuccess
	}, waitFor, pollInt)

	hs := h.agg.Read(models.KindHealth)
	require.NotNil(t, hs.Err)
	assert.Equal(t, models.ErrNetwork, hs.Err.Kind)
	assert.Nil(t, hs.Value)

	ms := models.Typed[models.IndexerMetricsSnapshot](h.agg.Read(models.KindMetrics))
	require.NotNil(t, ms.Value)
	assert.Equal(t, int64(120), ms.Value.TotalFeedsProcessed)
}

func TestPollerSlowMemberDoesNotDelayOthers(t *testing.T) {
	t.Parallel()

	slow := newGate()
	b := newFakeBackend().
		on(models.KindHealth, slow.holdCtx(health(models.HealthOK))).
		on(models.KindMetrics, value(metricsWithTotal(120)))
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindMetrics},
	)
	require.NoError(t, h.poller.Start(context.Background()))

	<-slow.started
	require.Eventually(t, func() bool {
		return h.status(models.KindMetrics) == models.StatusSuccess
	}, waitFor, pollInt)
	assert.Equal(t, models.StatusLoading, h.status(models.KindHealth))

	slow.Open()
	require.Eventually(t, func() bool {
		return h.status(models.KindHealth) == models.StatusSuccess
	}, waitFor, pollInt)
}

func TestPollerKeepsTickingAfterFailures(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, failing(models.HTTPError(models.KindHealth, 503, nil)))
	h := newPollerHarness(t, b, 5*time.Second, usecase.Fetch{Kind: models.KindHealth})
	require.NoError(t, h.poller.Start(context.Background()))

	for i := 2; i <= 4; i++ {
		h.tick(t, 5*time.Second)
		want := i
		require.Eventually(t, func() bool { return b.Calls(models.KindHealth) == want }, waitFor, pollInt)
	}
	assert.Equal(t, uint64(4), h.poller.Ticks())
	assert.Equal(t, models.StatusError, h.status(models.KindHealth))
}

func TestPollerSkipsKeysStillInFlight(t *testing.T) {
	t.Parallel()

	slow := newGate()
	b := newFakeBackend().
		on(models.KindHealth, value(health(models.HealthOK))).
		on(models.KindMetrics, slow.holdCtx(metricsWithTotal(120)))
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindMetrics},
	)
	require.NoError(t, h.poller.Start(context.Background()))
	<-slow.started

	// two more ticks while metrics is still running
	for i := 2; i <= 3; i++ {
		h.tick(t, 3*time.Second)
		want := i
		require.Eventually(t, func() bool { return b.Calls(models.KindHealth) == want }, waitFor, pollInt)
	}
	assert.Equal(t, 1, b.Calls(models.KindMetrics))

	slow.Open()
	require.Eventually(t, func() bool {
		return h.status(models.KindMetrics) == models.StatusSuccess
	}, waitFor, pollInt)

	h.tick(t, 3*time.Second)
	require.Eventually(t, func() bool { return b.Calls(models.KindMetrics) == 2 }, waitFor, pollInt)
	assert.Equal(t, 1, b.MaxConcurrent(models.KindMetrics))
}

func TestPollerStopSuppressesLateCommits(t *testing.T) {
	t.Parallel()

	slow := newGate()
	b := newFakeBackend().
		on(models.KindHealth, value(health(models.HealthOK))).
		on(models.KindMetrics, slow.hold(metricsWithTotal(120)))
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindMetrics},
	)
	require.NoError(t, h.poller.Start(context.Background()))
	<-slow.started
	require.Eventually(t, func() bool { return h.commits.Count(models.KindHealth) == 1 }, waitFor, pollInt)

	h.poller.Stop()
	assert.Equal(t, usecase.PollerStopped, h.poller.State())

	// the response arrives after the view went away
	slow.Open()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.poller.Wait(ctx))

	assert.Equal(t, 0, h.commits.Count(models.KindMetrics))
	assert.Equal(t, models.StatusLoading, h.status(models.KindMetrics))

	// restart is not allowed
	assert.ErrorIs(t, h.poller.Start(context.Background()), usecase.ErrPollerStopped)
}

func TestPollerOnMountFetchRunsOnce(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, value(health(models.HealthOK))).
		on(models.KindBlocks, value(&models.BlockList{}))
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindBlocks, OnMount: true},
	)
	require.NoError(t, h.poller.Start(context.Background()))
	require.Eventually(t, func() bool { return b.Calls(models.KindBlocks) == 1 }, waitFor, pollInt)

	h.tick(t, 3*time.Second)
	require.Eventually(t, func() bool { return b.Calls(models.KindHealth) == 2 }, waitFor, pollInt)
	assert.Equal(t, 1, b.Calls(models.KindBlocks))
}

func TestPollerStartTwice(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().on(models.KindHealth, value(health(models.HealthOK)))
	h := newPollerHarness(t, b, time.Second, usecase.Fetch{Kind: models.KindHealth})

	require.NoError(t, h.poller.Start(context.Background()))
	assert.ErrorIs(t, h.poller.Start(context.Background()), usecase.ErrPollerRunning)
}

// Overview dashboard: tick 1 returns health ok and 120 feeds, tick 2 three
// seconds later returns 145 feeds while health fails.
func TestOverviewScenario(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, func(_ context.Context, call int, _ repository.Params) (any, error) {
			if call == 1 {
				return health(models.HealthOK), nil
			}
			return nil, models.NetworkError(models.KindHealth, errors.New("connection reset"))
		}).
		on(models.KindMetrics, func(_ context.Context, call int, _ repository.Params) (any, error) {
			if call == 1 {
				return metricsWithTotal(120), nil
			}
			return metricsWithTotal(145), nil
		})
	h := newPollerHarness(t, b, 3*time.Second,
		usecase.Fetch{Kind: models.KindHealth},
		usecase.Fetch{Kind: models.KindMetrics},
	)
	require.NoError(t, h.poller.Start(context.Background()))

	require.Eventually(t, func() bool {
		return h.status(models.KindHealth) == models.StatusSuccess &&
			h.status(models.KindMetrics) == models.StatusSuccess
	}, waitFor, pollInt)

	first := usecase.Project(h.agg.State(), nil)
	require.NotNil(t, first.Health)
	require.NotNil(t, first.Feeds)
	assert.Nil(t, first.Feeds.ObservedPerSecond)

	h.tick(t, 3*time.Second)
	require.Eventually(t, func() bool {
		ms := models.Typed[models.IndexerMetricsSnapshot](h.agg.Read(models.KindMetrics))
		return ms.Value != nil && ms.Value.TotalFeedsProcessed == 145 &&
			h.status(models.KindHealth) == models.StatusError
	}, waitFor, pollInt)

	second := usecase.Project(h.agg.State(), nil)
	require.NotNil(t, second.Feeds.ObservedPerSecond)
	assert.Equal(t, "8.33", *second.Feeds.ObservedPerSecond)
	assert.Equal(t, int64(145), second.Feeds.TotalProcessed)

	// health keeps its last good value, flagged stale
	require.NotNil(t, second.Health)
	assert.Equal(t, first.Health.Status, second.Health.Status)
	assert.Equal(t, first.Health.ModelParams, second.Health.ModelParams)
	assert.True(t, second.Health.Stale)
}
