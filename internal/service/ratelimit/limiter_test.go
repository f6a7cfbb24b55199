package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SentinelX/pkg/clock"
)

func TestLimiterRefills(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(2, 1, clk)

	assert.True(t, l.Allow("playground/ai-query/10.0.0.1"))
	assert.True(t, l.Allow("playground/ai-query/10.0.0.1"))
	assert.False(t, l.Allow("playground/ai-query/10.0.0.1"))

	// other keys have their own bucket
	assert.True(t, l.Allow("playground/ai-query/10.0.0.2"))

	clk.Advance(500 * time.Millisecond)
	assert.False(t, l.Allow("playground/ai-query/10.0.0.1"))
	clk.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow("playground/ai-query/10.0.0.1"))

	clk.Advance(time.Hour)
	assert.True(t, l.Allow("playground/ai-query/10.0.0.1"))
	assert.True(t, l.Allow("playground/ai-query/10.0.0.1"))
	assert.False(t, l.Allow("playground/ai-query/10.0.0.1"), "capacity caps the refill")
}

func TestLimiterForget(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(1, 0.001, clk)

	assert.True(t, l.Allow("live/price-predict/a"))
	assert.False(t, l.Allow("live/price-predict/a"))

	l.Forget("live/")
	assert.True(t, l.Allow("live/price-predict/a"))
}

func TestLimiterFollowsInjectedClock(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(2, 1, clk)

	key := "explorer:block-search:10.0.0.3"
	got := []bool{l.Allow(key), l.Allow(key), l.Allow(key)}
	clk.Advance(time.Second)
	got = append(got, l.Allow(key), l.Allow(key))

	assert.Equal(t, []bool{true, true, false, true, false}, got)
}

func TestLimiterFractionalCapacity(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(0.5, 1, clk)

	assert.True(t, l.Allow("a"), "a bucket always holds at least one token")
	assert.False(t, l.Allow("a"))
}
