package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentinelX/internal/domain/models"
	"SentinelX/pkg/cache"
)

func TestCacheMirror(t *testing.T) {
	t.Parallel()

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	m := NewCacheMirror(mem, time.Minute)
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC)
	require.NoError(t, m.Mirror(ctx, "overview", models.Slot{
		Kind:          models.KindMetrics,
		Status:        models.StatusError,
		Value:         &models.IndexerMetricsSnapshot{TotalFeedsProcessed: 120},
		Err:           models.TimeoutError(models.KindMetrics, nil),
		LastUpdatedAt: at,
		Tick:          2,
	}))
	require.NoError(t, m.Mirror(ctx, "overview", models.Slot{Kind: models.KindHealth, Status: models.StatusSuccess}))
	require.NoError(t, m.Mirror(ctx, "live", models.Slot{Kind: models.KindHealth, Status: models.StatusSuccess}))

	got, err := m.Load(ctx, "overview", models.KindMetrics)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, uint64(2), got.Tick)
	assert.True(t, got.LastUpdatedAt.Equal(at))
	require.NotNil(t, got.Err)
	assert.Equal(t, models.ErrTimeout, got.Err.Kind)
	ms := models.Typed[models.IndexerMetricsSnapshot](*got)
	require.NotNil(t, ms.Value)
	assert.Equal(t, int64(120), ms.Value.TotalFeedsProcessed)

	missing, err := m.Load(ctx, "overview", models.KindBlocks)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, m.Drop(ctx, "overview"))
	gone, err := m.Load(ctx, "overview", models.KindHealth)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := m.Load(ctx, "live", models.KindHealth)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestSlotKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "view:overview:metrics", SlotKey("overview", models.KindMetrics))
}
