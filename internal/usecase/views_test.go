package usecase_test

import (
	"context"
	"sync"
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

type fakeHistory struct {
	repository.HistoryStore

	mu       sync.Mutex
	baseline *models.MetricsBaseline
	asked    []time.Time
}

func (h *fakeHistory) MetricsBaseline(_ context.Context, _ string, at time.Time) (*models.MetricsBaseline, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.asked = append(h.asked, at)
	return h.baseline, nil
}

type unmountLog struct {
	commitLog
	mu    sync.Mutex
	views []string
}

func (u *unmountLog) OnUnmount(view string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.views = append(u.views, view)
}

func testCatalog() usecase.Catalog {
	return usecase.DefaultCatalog(usecase.CatalogOptions{
		OverviewInterval: 3 * time.Second,
		LiveInterval:     5 * time.Second,
		ExplorerInterval: 10 * time.Second,
		BlocksLimit:      5,
		TxLimit:          10,
		DefaultAsset:     "CELO",
	})
}

func newManager(t *testing.T, b repository.Backend, opts ...usecase.ManagerOption) (*usecase.ViewManager, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	opts = append([]usecase.ManagerOption{usecase.WithClock(clk)}, opts...)
	m := usecase.NewViewManager(testCatalog(), b, metrics.Nop{}, logger.Nop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, m.Close(ctx))
	})
	return m, clk
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := testCatalog()
	assert.Equal(t, []string{"explorer", "live", "overview", "playground"}, c.Names())
	assert.Equal(t, 3*time.Second, c[usecase.ViewOverview].Interval)
	assert.Equal(t, 5*time.Second, c[usecase.ViewLive].Interval)
	assert.Equal(t, 10*time.Second, c[usecase.ViewExplorer].Interval)
	assert.Zero(t, c[usecase.ViewPlayground].Interval)

	explorer := c[usecase.ViewExplorer]
	require.Len(t, explorer.Fetches, 2)
	assert.Equal(t, "5", explorer.Fetches[0].Params["limit"])
	assert.Equal(t, "10", explorer.Fetches[1].Params["limit"])
}

func TestViewManagerLifecycle(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, value(health(models.HealthOK))).
		on(models.KindMetrics, value(metricsWithTotal(120))).
		on(models.KindBlocks, value(&models.BlockList{}))
	obs := &unmountLog{}
	m, _ := newManager(t, b, usecase.WithObservers(obs))

	_, _, err := m.Mount("dashboard")
	assert.ErrorIs(t, err, usecase.ErrViewNotFound)

	v, created, err := m.Mount(usecase.ViewOverview)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := m.Mount(usecase.ViewOverview)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, v, again)

	require.Eventually(t, func() bool {
		return v.Read(models.KindBlocks).Status == models.StatusSuccess &&
			v.Read(models.KindMetrics).Status == models.StatusSuccess
	}, waitFor, pollInt)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, usecase.ViewOverview, list[0].Name)
	assert.Equal(t, uint64(1), list[0].Ticks)

	require.NoError(t, m.Unmount(context.Background(), usecase.ViewOverview))
	assert.ErrorIs(t, m.Unmount(context.Background(), usecase.ViewOverview), usecase.ErrViewNotMounted)
	_, err = m.Get(usecase.ViewOverview)
	assert.ErrorIs(t, err, usecase.ErrViewNotMounted)
	assert.Empty(t, m.List())
	assert.Equal(t, []string{usecase.ViewOverview}, obs.views)
}

func TestViewManagerStats(t *testing.T) {
	t.Parallel()

	b := newFakeBackend().
		on(models.KindHealth, value(health(models.HealthOK))).
		on(models.KindMetrics, value(metricsWithTotal(150))).
		on(models.KindBlocks, value(&models.BlockList{}))

	t.Run("it omits deltas without history", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, b)
		v, _, err := m.Mount(usecase.ViewOverview)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return v.Read(models.KindMetrics).Status == models.StatusSuccess
		}, waitFor, pollInt)

		stats, err := m.Stats(context.Background(), usecase.ViewOverview)
		require.NoError(t, err)
		assert.Nil(t, stats.Deltas)
		require.NotNil(t, stats.Feeds)
		assert.Equal(t, int64(150), stats.Feeds.TotalProcessed)
	})

	t.Run("it computes deltas against the stored baseline", func(t *testing.T) {
		t.Parallel()

		hist := &fakeHistory{baseline: &models.MetricsBaseline{At: epoch.Add(-24 * time.Hour), TotalFeedsProcessed: 100}}
		m, _ := newManager(t, b, usecase.WithHistory(hist, 24*time.Hour))
		v, _, err := m.Mount(usecase.ViewOverview)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return v.Read(models.KindMetrics).Status == models.StatusSuccess
		}, waitFor, pollInt)

		stats, err := m.Stats(context.Background(), usecase.ViewOverview)
		require.NoError(t, err)
		require.NotNil(t, stats.Deltas)
		assert.Equal(t, "+50.0%", *stats.Deltas.TotalProcessed)
		assert.Equal(t, []time.Time{epoch.Add(-24 * time.Hour)}, hist.asked)
	})

	t.Run("it reports unmounted views", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, b)
		_, err := m.Stats(context.Background(), usecase.ViewExplorer)
		assert.ErrorIs(t, err, usecase.ErrViewNotMounted)
	})
}

func TestViewActions(t *testing.T) {
	t.Parallel()

	t.Run("it rejects actions the view does not offer", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, newFakeBackend())
		v, _, err := m.Mount(usecase.ViewPlayground)
		require.NoError(t, err)

		_, _, err = v.Submit(usecase.ActionBlockSearch, repository.Params{"number": "1"})
		assert.ErrorIs(t, err, usecase.ErrActionNotAllowed)

		_, _, err = v.Submit(usecase.ActionAIQuery, repository.Params{})
		assert.ErrorIs(t, err, usecase.ErrInvalidActionArgs)
	})

	t.Run("it explains a contract into its own slot", func(t *testing.T) {
		t.Parallel()

		b := newFakeBackend().on(models.KindContractExplain, value(&models.InferenceResult{
			OutputText: "an ERC-20 token",
			GasTips:    []string{"Use events for off-chain data"},
		}))
		m, _ := newManager(t, b)
		v, _, err := m.Mount(usecase.ViewPlayground)
		require.NoError(t, err)

		_, _, err = v.Submit(usecase.ActionContractExplain, repository.Params{})
		assert.ErrorIs(t, err, usecase.ErrInvalidActionArgs)

		_, kinds, err := v.Submit(usecase.ActionContractExplain, repository.Params{"contract_address": "0x471ece3750da237f93b8e339c536989b8978a438"})
		require.NoError(t, err)
		assert.Equal(t, []models.Kind{models.KindContractExplain}, kinds)

		require.Eventually(t, func() bool {
			return v.Read(models.KindContractExplain).Status == models.StatusSuccess
		}, waitFor, pollInt)
		assert.Equal(t, models.StatusIdle, v.Read(models.KindContractAnalyze).Status)

		stats, err := m.Stats(context.Background(), usecase.ViewPlayground)
		require.NoError(t, err)
		require.Contains(t, stats.AI, models.KindContractExplain)
		assert.Equal(t, "an ERC-20 token", stats.AI[models.KindContractExplain].Output)
	})

	t.Run("it validates block numbers", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, newFakeBackend().on(models.KindBlocks, value(&models.BlockList{})))
		v, _, err := m.Mount(usecase.ViewExplorer)
		require.NoError(t, err)

		_, _, err = v.Submit(usecase.ActionBlockSearch, repository.Params{"number": "latest"})
		assert.ErrorIs(t, err, usecase.ErrInvalidActionArgs)
	})

	t.Run("it refuses a duplicate while the first is in flight", func(t *testing.T) {
		t.Parallel()

		slow := newGate()
		b := newFakeBackend().on(models.KindAIQuery, slow.holdCtx(&models.InferenceResult{OutputText: "a chain"}))
		m, _ := newManager(t, b)
		v, _, err := m.Mount(usecase.ViewPlayground)
		require.NoError(t, err)

		params := repository.Params{"prompt": "what is celo"}
		tick, kinds, err := v.Submit(usecase.ActionAIQuery, params)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), tick)
		assert.Equal(t, []models.Kind{models.KindAIQuery}, kinds)
		<-slow.started
		assert.Equal(t, models.StatusLoading, v.Read(models.KindAIQuery).Status)

		_, _, err = v.Submit(usecase.ActionAIQuery, params)
		assert.ErrorIs(t, err, usecase.ErrInFlight)

		// a different prompt is a different request
		_, _, err = v.Submit(usecase.ActionAIQuery, repository.Params{"prompt": "what is a validator"})
		require.NoError(t, err)
		<-slow.started

		slow.Open()
		require.Eventually(t, func() bool {
			return v.Read(models.KindAIQuery).Status == models.StatusSuccess
		}, waitFor, pollInt)
	})

	t.Run("it discards results of an unmounted view", func(t *testing.T) {
		t.Parallel()

		slow := newGate()
		b := newFakeBackend().on(models.KindSecurityAudit, slow.hold(&models.InferenceResult{}))
		log := &commitLog{}
		m, _ := newManager(t, b, usecase.WithObservers(log))
		v, _, err := m.Mount(usecase.ViewPlayground)
		require.NoError(t, err)

		_, _, err = v.Submit(usecase.ActionSecurityAudit, repository.Params{"code": "contract A {}"})
		require.NoError(t, err)
		<-slow.started

		events, cancel := v.Subscribe()
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- m.Unmount(context.Background(), usecase.ViewPlayground) }()
		for range events {
		}
		// the view is sealed; now let the audit answer arrive
		slow.Open()
		require.NoError(t, <-done)

		assert.Equal(t, 0, log.Count(models.KindSecurityAudit))
		_, _, err = v.Submit(usecase.ActionSecurityAudit, repository.Params{"code": "contract B {}"})
		assert.ErrorIs(t, err, usecase.ErrViewUnmounted)
	})
}

// Predict Price runs while the view's health poll is still in flight; both
// complete on their own.
func TestPredictPriceDuringPoll(t *testing.T) {
	t.Parallel()

	slowHealth := newGate()
	b := newFakeBackend().
		on(models.KindHealth, slowHealth.holdCtx(health(models.HealthOK))).
		on(models.KindMetrics, value(metricsWithTotal(120))).
		on(models.KindPriceCurrent, value(&models.PriceSnapshot{Asset: "CELO", PriceUSD: 0.71})).
		on(models.KindPricePredict, func(_ context.Context, _ int, p repository.Params) (any, error) {
			return &models.InferenceResult{OutputText: "up for " + p["asset"], Confidence: 0.8}, nil
		})
	m, _ := newManager(t, b)

	v, _, err := m.Mount(usecase.ViewLive)
	require.NoError(t, err)
	<-slowHealth.started

	_, kinds, err := v.Submit(usecase.ActionPricePredict, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Kind{models.KindPriceCurrent, models.KindPricePredict}, kinds)

	require.Eventually(t, func() bool {
		return v.Read(models.KindPriceCurrent).Status == models.StatusSuccess &&
			v.Read(models.KindPricePredict).Status == models.StatusSuccess
	}, waitFor, pollInt)
	assert.Equal(t, models.StatusLoading, v.Read(models.KindHealth).Status, "the poll is still running")

	pred := models.Typed[models.InferenceResult](v.Read(models.KindPricePredict))
	assert.Equal(t, "up for CELO", pred.Value.OutputText)

	slowHealth.Open()
	require.Eventually(t, func() bool {
		return v.Read(models.KindHealth).Status == models.StatusSuccess
	}, waitFor, pollInt)

	stats, err := m.Stats(context.Background(), usecase.ViewLive)
	require.NoError(t, err)
	require.NotNil(t, stats.Price)
	require.NotNil(t, stats.Price.Prediction)
	assert.Equal(t, "80%", stats.Price.Prediction.Confidence)
}
