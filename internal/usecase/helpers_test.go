package usecase_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type handlerFunc func(ctx context.Context, call int, params repository.Params) (any, error)

// fakeBackend dispatches each kind to a handler and counts calls.
type fakeBackend struct {
	mu       sync.Mutex
	handlers map[models.Kind]handlerFunc
	calls    map[models.Kind]int
	active   map[models.Kind]int
	maxConc  map[models.Kind]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		handlers: make(map[models.Kind]handlerFunc),
		calls:    make(map[models.Kind]int),
		active:   make(map[models.Kind]int),
		maxConc:  make(map[models.Kind]int),
	}
}

func (b *fakeBackend) on(kind models.Kind, h handlerFunc) *fakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = h
	return b
}

func (b *fakeBackend) Execute(ctx context.Context, op models.Kind, params repository.Params) (any, error) {
	b.mu.Lock()
	b.calls[op]++
	call := b.calls[op]
	b.active[op]++
	if b.active[op] > b.maxConc[op] {
		b.maxConc[op] = b.active[op]
	}
	h := b.handlers[op]
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.active[op]--
		b.mu.Unlock()
	}()

	if h == nil {
		return nil, models.HTTPError(op, 404, nil)
	}
	return h(ctx, call, params)
}

func (b *fakeBackend) Calls(kind models.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[kind]
}

func (b *fakeBackend) MaxConcurrent(kind models.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxConc[kind]
}

func value(v any) handlerFunc {
	return func(context.Context, int, repository.Params) (any, error) { return v, nil }
}

func failing(err error) handlerFunc {
	return func(context.Context, int, repository.Params) (any, error) { return nil, err }
}

// gate blocks a handler until released. started is signalled once per call.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) Open() { g.once.Do(func() { close(g.release) }) }

// hold ignores cancellation, like a response already on the wire.
func (g *gate) hold(v any) handlerFunc {
	return func(context.Context, int, repository.Params) (any, error) {
		g.started <- struct{}{}
		<-g.release
		return v, nil
	}
}

// holdCtx returns early when the call is cancelled.
func (g *gate) holdCtx(v any) handlerFunc {
	return func(ctx context.Context, _ int, _ repository.Params) (any, error) {
		g.started <- struct{}{}
		select {
		case <-g.release:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// commitLog records accepted commits.
type commitLog struct {
	mu     sync.Mutex
	events []models.CommitEvent
	n      atomic.Int64
}

func (c *commitLog) OnCommit(ev *models.CommitEvent) {
	c.mu.Lock()
	c.events = append(c.events, *ev)
	c.mu.Unlock()
	c.n.Add(1)
}

func (c *commitLog) Count(kind models.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func health(status models.HealthStatus) *models.HealthSnapshot {
	return &models.HealthSnapshot{
		Status: status,
		Phase:  "Phase 2",
		AIModel: models.AIModelInfo{
			Name:           "sentinel-7b",
			ParameterCount: 7_000_000_000,
		},
	}
}

func metricsWithTotal(total int64) *models.IndexerMetricsSnapshot {
	return &models.IndexerMetricsSnapshot{
		TotalFeedsProcessed: total,
		FeedsPerSecond:      8.333,
		ActiveFeeds:         3,
		AverageLatencyMs:    12.6,
	}
}
