package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentinelX/pkg/metrics"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := metrics.NewWithRegisterer(reg)

	r.RecordFetch("health", "success", 0.02)
	r.RecordFetch("health", "network", 0.5)
	r.RecordCommit("overview", "health", "success")
	r.RecordSkip("overview", "metrics", "in_flight")
	r.SetMountedViews(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["sentinelx_backend_fetch_total"])
	assert.True(t, names["sentinelx_slot_commits_total"])
	assert.True(t, names["sentinelx_slot_skips_total"])
	assert.True(t, names["sentinelx_mounted_views"])

	assert.Equal(t, 2, mustCount(t, reg, "sentinelx_backend_fetch_total"))
}

func mustCount(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, name)
	require.NoError(t, err)
	return n
}
