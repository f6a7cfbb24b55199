package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/logger"
)

var (
	ErrInFlight          = errors.New("request already in flight")
	ErrActionNotAllowed  = errors.New("action not available on this view")
	ErrInvalidActionArgs = errors.New("invalid action arguments")
	ErrViewUnmounted     = errors.New("view unmounted")
)

// Action is a user triggered one-off request.
type Action string

const (
	ActionAIQuery         Action = "ai-query"
	ActionContractAnalyze Action = "contract-analyze"
	ActionContractExplain Action = "contract-explain"
	ActionSecurityAudit   Action = "security-audit"
	ActionPricePredict    Action = "price-predict"
	ActionBlockSearch     Action = "block-search"
)

// AllActions lists every known action.
var AllActions = []Action{
	ActionAIQuery, ActionContractAnalyze, ActionContractExplain, ActionSecurityAudit, ActionPricePredict, ActionBlockSearch,
}

// ParseAction reports whether s names a known action.
func ParseAction(s string) (Action, bool) {
	for _, a := range AllActions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// Plan returns the backend calls an action issues. Predict price fetches the
// current price next to the prediction.
func (a Action) Plan(params repository.Params) ([]Fetch, error) {
	need := func(names ...string) error {
		for _, n := range names {
			if strings.TrimSpace(params[n]) == "" {
				return fmt.Errorf("%w: %s is required", ErrInvalidActionArgs, n)
			}
		}
		return nil
	}

	switch a {
	case ActionAIQuery:
		if err := need("prompt"); err != nil {
			return nil, err
		}
		return []Fetch{{Kind: models.KindAIQuery, Params: params}}, nil
	case ActionContractAnalyze:
		if err := need("contract_address"); err != nil {
			return nil, err
		}
		return []Fetch{{Kind: models.KindContractAnalyze, Params: params}}, nil
	case ActionContractExplain:
		if err := need("contract_address"); err != nil {
			return nil, err
		}
		return []Fetch{{Kind: models.KindContractExplain, Params: params}}, nil
	case ActionSecurityAudit:
		if err := need("code"); err != nil {
			return nil, err
		}
		return []Fetch{{Kind: models.KindSecurityAudit, Params: params}}, nil
	case ActionPricePredict:
		if err := need("asset"); err != nil {
			return nil, err
		}
		p := repository.Params{"asset": params["asset"]}
		return []Fetch{
			{Kind: models.KindPriceCurrent, Params: p},
			{Kind: models.KindPricePredict, Params: p},
		}, nil
	case ActionBlockSearch:
		if err := need("number"); err != nil {
			return nil, err
		}
		if _, err := strconv.ParseUint(params["number"], 10, 64); err != nil {
			return nil, fmt.Errorf("%w: number must be a block height", ErrInvalidActionArgs)
		}
		return []Fetch{{Kind: models.KindBlock, Params: repository.Params{"number": params["number"]}}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, a)
	}
}

// ActionRunner executes the one-off requests of a view. Each submission runs
// in the background and commits to the action's own slots; submissions never
// wait for the view's poller.
type ActionRunner struct {
	view         string
	allowed      map[Action]bool
	defaultAsset string
	backend      repository.Backend
	tracker      *RequestTracker
	agg          *Aggregator
	metrics      repository.Metrics
	log          *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	tick    uint64
}

func NewActionRunner(
	spec ViewSpec,
	backend repository.Backend,
	tracker *RequestTracker,
	agg *Aggregator,
	metrics repository.Metrics,
	log *logger.Logger,
) *ActionRunner {
	allowed := make(map[Action]bool, len(spec.Actions))
	for _, a := range spec.Actions {
		allowed[a] = true
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ActionRunner{
		view:         spec.Name,
		allowed:      allowed,
		defaultAsset: spec.DefaultAsset,
		backend:      backend,
		tracker:      tracker,
		agg:          agg,
		metrics:      metrics,
		log:          log.With(logger.String("view", spec.Name)),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Allowed reports whether the view offers action a.
func (r *ActionRunner) Allowed(a Action) bool { return r.allowed[a] }

// Submit starts action a in the background and returns the tick its results
// will be committed under. ErrInFlight is returned when the same request is
// still running.
func (r *ActionRunner) Submit(a Action, params repository.Params) (uint64, []models.Kind, error) {
	if !r.allowed[a] {
		return 0, nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, a)
	}
	if a == ActionPricePredict && params["asset"] == "" && r.defaultAsset != "" {
		params = withParam(params, "asset", r.defaultAsset)
	}
	plan, err := a.Plan(params)
	if err != nil {
		return 0, nil, err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return 0, nil, ErrViewUnmounted
	}
	releases := make([]func(), 0, len(plan))
	for _, f := range plan {
		release, ok := r.tracker.Acquire(RequestKey(f.Kind, f.Params))
		if !ok {
			for _, rel := range releases {
				rel()
			}
			r.mu.Unlock()
			r.metrics.RecordSkip(r.view, string(f.Kind), SkipInFlight)
			return 0, nil, ErrInFlight
		}
		releases = append(releases, release)
	}
	r.tick++
	tick := r.tick
	r.wg.Add(1)
	r.mu.Unlock()

	kinds := make([]models.Kind, 0, len(plan))
	for _, f := range plan {
		r.agg.Restart(f.Kind, tick)
		kinds = append(kinds, f.Kind)
	}

	go r.run(a, tick, plan, releases)
	return tick, kinds, nil
}

func (r *ActionRunner) run(a Action, tick uint64, plan []Fetch, releases []func()) {
	defer r.wg.Done()

	start := time.Now()
	g, ctx := errgroup.WithContext(r.ctx)
	for i, f := range plan {
		release := releases[i]
		g.Go(func() error {
			defer release()
			v, err := r.backend.Execute(ctx, f.Kind, f.Params)
			r.commit(tick, f.Kind, models.Result{Value: v, Err: err})
			return nil
		})
	}
	_ = g.Wait()

	r.metrics.RecordLatency("action", time.Since(start).Seconds())
	r.log.Debug("action finished",
		logger.String("action", string(a)),
		logger.Uint64("tick", tick),
		logger.Duration("took_ms", time.Since(start)),
	)
}

func (r *ActionRunner) commit(tick uint64, kind models.Kind, res models.Result) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		r.metrics.RecordSkip(r.view, string(kind), SkipStopped)
		return
	}
	r.agg.Commit(kind, tick, res)
}

// Stop cancels running actions and suppresses their commits.
func (r *ActionRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	r.cancel()
}

// Wait blocks until every submitted action returned or ctx is done.
func (r *ActionRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withParam(p repository.Params, k, v string) repository.Params {
	out := make(repository.Params, len(p)+1)
	for name, val := range p {
		out[name] = val
	}
	out[k] = v
	return out
}
