package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/clock"
	"SentinelX/pkg/logger"
)

var (
	ErrPollerStopped = errors.New("poller stopped")
	ErrPollerRunning = errors.New("poller already running")
)

// PollerState is the lifecycle state of a Poller.
type PollerState int

const (
	PollerIdle PollerState = iota
	PollerRunning
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerRunning:
		return "running"
	case PollerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetch is one member of a poll batch.
type Fetch struct {
	Kind   models.Kind
	Params repository.Params
	// OnMount restricts the fetch to the first batch.
	OnMount bool
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	View     string
	Interval time.Duration
	Fetches  []Fetch
}

// Poller runs a batch of independent fetches immediately on Start and then
// every Interval until Stop. Each fetch commits to the aggregator on its own.
type Poller struct {
	cfg     PollerConfig
	backend repository.Backend
	tracker *RequestTracker
	agg     *Aggregator
	clock   clock.Clock
	metrics repository.Metrics
	log     *logger.Logger

	mu         sync.RWMutex
	state      PollerState
	generation uint64
	tick       uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewPoller(
	cfg PollerConfig,
	backend repository.Backend,
	tracker *RequestTracker,
	agg *Aggregator,
	clk clock.Clock,
	metrics repository.Metrics,
	log *logger.Logger,
) *Poller {
	return &Poller{
		cfg:     cfg,
		backend: backend,
		tracker: tracker,
		agg:     agg,
		clock:   clk,
		metrics: metrics,
		log:     log.With(logger.String("view", cfg.View)),
		done:    make(chan struct{}),
	}
}

// State returns the lifecycle state.
func (p *Poller) State() PollerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Ticks returns the number of batches issued so far.
func (p *Poller) Ticks() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tick
}

// Start enters the running state and issues the first batch immediately. A
// stopped poller cannot be restarted.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case PollerRunning:
		return ErrPollerRunning
	case PollerStopped:
		return ErrPollerStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = PollerRunning
	p.generation++

	go p.run(runCtx, p.generation)

	p.log.Info("poller started",
		logger.Duration("interval_ms", p.cfg.Interval),
		logger.Int("fetches", len(p.cfg.Fetches)),
	)
	return nil
}

// Stop leaves the running state. Once it returns no further commit from this
// poller reaches the aggregator; in-flight calls are cancelled. Stop is
// idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case PollerStopped:
		return
	case PollerIdle:
		p.state = PollerStopped
		close(p.done)
		return
	}

	p.state = PollerStopped
	p.generation++
	p.cancel()
	p.log.Info("poller stopped", logger.Uint64("ticks", p.tick))
}

// Wait blocks until every goroutine started by the poller has returned or
// ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, gen uint64) {
	var batches sync.WaitGroup
	defer close(p.done)
	defer batches.Wait()

	first := true
	for {
		if !p.issue(ctx, gen, first, &batches) {
			return
		}
		first = false

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}

// issue starts one batch without waiting for it so that a slow member never
// delays the next tick.
func (p *Poller) issue(ctx context.Context, gen uint64, first bool, batches *sync.WaitGroup) bool {
	p.mu.Lock()
	if p.generation != gen || p.state != PollerRunning {
		p.mu.Unlock()
		return false
	}
	p.tick++
	tick := p.tick
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range p.cfg.Fetches {
		if f.OnMount && !first {
			continue
		}
		g.Go(func() error {
			p.fetch(gctx, gen, tick, f)
			return nil
		})
	}

	batches.Add(1)
	go func() {
		defer batches.Done()
		start := time.Now()
		_ = g.Wait()
		p.metrics.RecordLatency("poll_batch", time.Since(start).Seconds())
	}()
	return true
}

func (p *Poller) fetch(ctx context.Context, gen, tick uint64, f Fetch) {
	key := RequestKey(f.Kind, f.Params)
	release, ok := p.tracker.Acquire(key)
	if !ok {
		p.metrics.RecordSkip(p.cfg.View, string(f.Kind), SkipInFlight)
		p.log.Debug("fetch still in flight, skipping",
			logger.String("kind", string(f.Kind)),
			logger.Uint64("tick", tick),
		)
		return
	}
	defer release()

	if !p.alive(gen) {
		return
	}
	p.agg.Begin(f.Kind, tick)

	v, err := p.backend.Execute(ctx, f.Kind, f.Params)
	p.commit(gen, tick, f.Kind, models.Result{Value: v, Err: err})
}

// commit forwards a result while holding the read lock, so Stop cannot
// complete between the generation check and the aggregator write.
func (p *Poller) commit(gen, tick uint64, kind models.Kind, res models.Result) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.generation != gen || p.state != PollerRunning {
		p.metrics.RecordSkip(p.cfg.View, string(kind), SkipStopped)
		return
	}
	p.agg.Commit(kind, tick, res)
}

func (p *Poller) alive(gen uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation == gen && p.state == PollerRunning
}
