package ratelimit

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"SentinelX/pkg/clock"
)

// Limiter keeps a token bucket per key. Every key shares the same capacity
// and refill rate. Buckets are driven by the injected clock.
type Limiter struct {
	limit rate.Limit
	burst int
	clock clock.Clock

	mu sync.Mutex
	m  map[string]*rate.Limiter
}

// New creates a limiter allowing bursts of capacity and refilling
// refillPerSec tokens per second.
func New(capacity, refillPerSec float64, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Limiter{
		limit: rate.Limit(refillPerSec),
		burst: max(1, int(capacity)),
		clock: clk,
		m:     make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.clock.Now(), 1)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = lim
	}
	return lim
}

// Forget drops the buckets of keys with the given prefix.
func (l *Limiter) Forget(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.m {
		if strings.HasPrefix(k, prefix) {
			delete(l.m, k)
		}
	}
}
