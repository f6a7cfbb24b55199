package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/usecase"
	"SentinelX/pkg/clock"
	"SentinelX/pkg/metrics"
)

func newAggregator(obs ...usecase.CommitObserver) (*usecase.Aggregator, *clock.Fake) {
	clk := clock.NewFake(epoch)
	return usecase.NewAggregator("overview", clk, metrics.Nop{}, obs...), clk
}

func TestAggregatorInitialState(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator()
	s := agg.Read(models.KindHealth)
	assert.Equal(t, models.StatusIdle, s.Status)
	assert.Nil(t, s.Value)
	assert.Nil(t, s.Err)
	assert.Empty(t, agg.State().Slots)
}

func TestAggregatorBegin(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator()
	require.True(t, agg.Begin(models.KindHealth, 1))
	assert.Equal(t, models.StatusLoading, agg.Read(models.KindHealth).Status)

	agg.Commit(models.KindHealth, 1, models.Result{Value: health(models.HealthOK)})
	assert.False(t, agg.Begin(models.KindHealth, 2), "a refresh keeps the success status")
	assert.Equal(t, models.StatusSuccess, agg.Read(models.KindHealth).Status)

	require.True(t, agg.Restart(models.KindHealth, 3))
	s := agg.Read(models.KindHealth)
	assert.Equal(t, models.StatusLoading, s.Status)
	assert.NotNil(t, s.Value, "restart keeps the previous value")
}

func TestAggregatorErrorKeepsValue(t *testing.T) {
	t.Parallel()

	agg, clk := newAggregator()
	agg.Commit(models.KindHealth, 1, models.Result{Value: health(models.HealthOK)})
	agg.Commit(models.KindMetrics, 1, models.Result{Value: metricsWithTotal(120)})

	clk.Advance(3 * time.Second)
	agg.Commit(models.KindHealth, 2, models.Result{Err: errors.New("dial tcp: connection refused")})

	hs := models.Typed[models.HealthSnapshot](agg.Read(models.KindHealth))
	assert.Equal(t, models.StatusError, hs.Status)
	require.NotNil(t, hs.Value)
	assert.Equal(t, models.HealthOK, hs.Value.Status)
	require.NotNil(t, hs.Err)
	assert.Equal(t, models.ErrNetwork, hs.Err.Kind, "untyped errors are reported as network failures")
	assert.Equal(t, epoch.Add(3*time.Second), hs.LastUpdatedAt)

	ms := agg.Read(models.KindMetrics)
	assert.Equal(t, models.StatusSuccess, ms.Status)
	assert.Equal(t, epoch, ms.LastUpdatedAt)

	agg.Commit(models.KindHealth, 3, models.Result{Value: health(models.HealthDegraded)})
	hs = models.Typed[models.HealthSnapshot](agg.Read(models.KindHealth))
	assert.Equal(t, models.StatusSuccess, hs.Status)
	assert.Nil(t, hs.Err)
	assert.Equal(t, models.HealthDegraded, hs.Value.Status)
}

func TestAggregatorDiscardsStaleTicks(t *testing.T) {
	t.Parallel()

	log := &commitLog{}
	agg, _ := newAggregator(log)

	require.True(t, agg.Commit(models.KindMetrics, 2, models.Result{Value: metricsWithTotal(145)}))
	assert.False(t, agg.Commit(models.KindMetrics, 1, models.Result{Value: metricsWithTotal(120)}))

	ms := models.Typed[models.IndexerMetricsSnapshot](agg.Read(models.KindMetrics))
	assert.Equal(t, int64(145), ms.Value.TotalFeedsProcessed)
	assert.Equal(t, uint64(2), ms.Tick)
	assert.Equal(t, 1, log.Count(models.KindMetrics))

	// another kind is unaffected by the metrics tick
	assert.True(t, agg.Commit(models.KindHealth, 1, models.Result{Value: health(models.HealthOK)}))
}

func TestAggregatorKeepsPreviousMetrics(t *testing.T) {
	t.Parallel()

	agg, clk := newAggregator()
	agg.Commit(models.KindMetrics, 1, models.Result{Value: metricsWithTotal(120)})
	assert.Nil(t, agg.State().PreviousMetrics)

	clk.Advance(3 * time.Second)
	agg.Commit(models.KindMetrics, 2, models.Result{Err: errors.New("boom")})
	clk.Advance(3 * time.Second)
	agg.Commit(models.KindMetrics, 3, models.Result{Value: metricsWithTotal(170)})

	st := agg.State()
	require.NotNil(t, st.PreviousMetrics)
	assert.Equal(t, int64(120), st.PreviousMetrics.TotalFeedsProcessed)
	assert.Equal(t, epoch, st.PreviousMetricsAt, "the previous sample time is its success time")
}

func TestAggregatorClose(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator()
	events, cancel := agg.Subscribe()
	defer cancel()

	agg.Commit(models.KindHealth, 1, models.Result{Value: health(models.HealthOK)})
	ev := <-events
	assert.Equal(t, models.KindHealth, ev.Kind)
	assert.Equal(t, models.StatusSuccess, ev.Status)

	agg.Close()
	assert.True(t, agg.Closed())
	assert.False(t, agg.Commit(models.KindHealth, 2, models.Result{Value: health(models.HealthDegraded)}))
	assert.False(t, agg.Begin(models.KindMetrics, 2))

	_, open := <-events
	assert.False(t, open, "subscribers are released on close")

	hs := models.Typed[models.HealthSnapshot](agg.Read(models.KindHealth))
	assert.Equal(t, models.HealthOK, hs.Value.Status)
}

func TestAggregatorSubscribeCancel(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator()
	events, cancel := agg.Subscribe()
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)
	agg.Commit(models.KindHealth, 1, models.Result{Value: health(models.HealthOK)})
}
