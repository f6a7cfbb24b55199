package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentinelX/pkg/clock"
)

func TestFakeClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("it fires timers once advanced past the deadline", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		ch := c.After(3 * time.Second)

		c.Advance(2 * time.Second)
		select {
		case <-ch:
			t.Fatal("timer fired early")
		default:
		}

		c.Advance(time.Second)
		select {
		case got := <-ch:
			assert.Equal(t, start.Add(3*time.Second), got)
		default:
			t.Fatal("timer did not fire")
		}
		assert.Equal(t, 0, c.Waiters())
	})

	t.Run("it reports pending waiters", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		go func() { <-c.After(time.Second) }()

		require.True(t, c.BlockUntil(1, time.Second))
		assert.Equal(t, 1, c.Waiters())
		c.Advance(time.Second)
	})

	t.Run("it fires zero durations immediately", func(t *testing.T) {
		t.Parallel()

		c := clock.NewFake(start)
		select {
		case <-c.After(0):
		default:
			t.Fatal("zero timer did not fire")
		}
	})
}
