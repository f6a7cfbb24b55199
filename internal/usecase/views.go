package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/clock"
	"SentinelX/pkg/logger"
)

var (
	ErrViewNotFound   = errors.New("view not found")
	ErrViewNotMounted = errors.New("view not mounted")
)

// Known views.
const (
	ViewOverview   = "overview"
	ViewLive       = "live"
	ViewExplorer   = "explorer"
	ViewPlayground = "playground"
)

// ViewSpec describes what a view polls and which actions it offers.
type ViewSpec struct {
	Name string `json:"name"`

	// Interval of the poller; zero disables polling.
	Interval     time.Duration `json:"interval"`
	Fetches      []Fetch       `json:"-"`
	Actions      []Action      `json:"actions"`
	DefaultAsset string        `json:"default_asset,omitempty"`
}

// CatalogOptions tunes the built-in views.
type CatalogOptions struct {
	OverviewInterval time.Duration
	LiveInterval     time.Duration
	ExplorerInterval time.Duration
	BlocksLimit      int
	TxLimit          int
	DefaultAsset     string
}

// Catalog maps a view name to its spec.
type Catalog map[string]ViewSpec

// DefaultCatalog builds the overview, live, explorer and playground views.
func DefaultCatalog(o CatalogOptions) Catalog {
	blocks := repository.Params{"limit": strconv.Itoa(o.BlocksLimit)}
	return Catalog{
		ViewOverview: {
			Name:     ViewOverview,
			Interval: o.OverviewInterval,
			Fetches: []Fetch{
				{Kind: models.KindHealth},
				{Kind: models.KindMetrics},
				{Kind: models.KindBlocks, Params: blocks, OnMount: true},
			},
		},
		ViewLive: {
			Name:     ViewLive,
			Interval: o.LiveInterval,
			Fetches: []Fetch{
				{Kind: models.KindHealth},
				{Kind: models.KindMetrics},
			},
			Actions:      []Action{ActionPricePredict},
			DefaultAsset: o.DefaultAsset,
		},
		ViewExplorer: {
			Name:     ViewExplorer,
			Interval: o.ExplorerInterval,
			Fetches: []Fetch{
				{Kind: models.KindBlocks, Params: blocks},
				{Kind: models.KindTransactions, Params: repository.Params{"limit": strconv.Itoa(o.TxLimit)}},
			},
			Actions: []Action{ActionBlockSearch},
		},
		ViewPlayground: {
			Name: ViewPlayground,
			Actions: []Action{
				ActionAIQuery, ActionContractAnalyze, ActionContractExplain, ActionSecurityAudit, ActionPricePredict,
			},
			DefaultAsset: o.DefaultAsset,
		},
	}
}

// Names returns the catalog's view names sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// View is a mounted view: one aggregator fed by an optional poller and an
// action runner sharing one request tracker.
type View struct {
	spec      ViewSpec
	agg       *Aggregator
	tracker   *RequestTracker
	poller    *Poller
	actions   *ActionRunner
	mountedAt time.Time
}

func (v *View) Name() string           { return v.spec.Name }
func (v *View) Spec() ViewSpec         { return v.spec }
func (v *View) MountedAt() time.Time   { return v.mountedAt }
func (v *View) State() models.ViewState { return v.agg.State() }

// Read returns the slot of kind.
func (v *View) Read(kind models.Kind) models.Slot { return v.agg.Read(kind) }

// Subscribe streams every slot transition until cancel is called or the view
// is unmounted.
func (v *View) Subscribe() (<-chan models.CommitEvent, func()) { return v.agg.Subscribe() }

// Submit runs a user action on the view.
func (v *View) Submit(a Action, params repository.Params) (uint64, []models.Kind, error) {
	return v.actions.Submit(a, params)
}

// Ticks returns the number of poll batches issued, zero without a poller.
func (v *View) Ticks() uint64 {
	if v.poller == nil {
		return 0
	}
	return v.poller.Ticks()
}

func (v *View) stop(ctx context.Context) error {
	if v.poller != nil {
		v.poller.Stop()
	}
	v.actions.Stop()
	v.agg.Close()

	var errs []error
	if v.poller != nil {
		errs = append(errs, v.poller.Wait(ctx))
	}
	errs = append(errs, v.actions.Wait(ctx))
	return errors.Join(errs...)
}

// ViewInfo summarizes a mounted view.
type ViewInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	MountedAt time.Time     `json:"mounted_at"`
	Ticks     uint64        `json:"ticks"`
	Actions   []Action      `json:"actions"`
}

// ViewManager mounts and unmounts views. Views share nothing but the backend
// and the commit observers.
type ViewManager struct {
	catalog   Catalog
	backend   repository.Backend
	history   repository.HistoryStore
	mirror    repository.SnapshotMirror
	window    time.Duration
	clock     clock.Clock
	metrics   repository.Metrics
	log       *logger.Logger
	observers []CommitObserver

	mu        sync.Mutex
	views     map[string]*View
	baselines singleflight.Group
}

// ManagerOption configures ViewManager.
type ManagerOption func(*ViewManager)

// WithHistory enables percentage deltas against the metrics sample recorded
// window ago.
func WithHistory(h repository.HistoryStore, window time.Duration) ManagerOption {
	return func(m *ViewManager) {
		m.history = h
		m.window = window
	}
}

// WithMirror lets unmounted views be read from a shared snapshot cache.
func WithMirror(mirror repository.SnapshotMirror) ManagerOption {
	return func(m *ViewManager) { m.mirror = mirror }
}

// WithObservers attaches commit observers to every mounted view.
func WithObservers(obs ...CommitObserver) ManagerOption {
	return func(m *ViewManager) { m.observers = append(m.observers, obs...) }
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *ViewManager) { m.clock = c }
}

func NewViewManager(
	catalog Catalog,
	backend repository.Backend,
	metrics repository.Metrics,
	log *logger.Logger,
	opts ...ManagerOption,
) *ViewManager {
	m := &ViewManager{
		catalog: catalog,
		backend: backend,
		clock:   clock.SystemClock{},
		metrics: metrics,
		log:     log,
		views:   make(map[string]*View),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the known views.
func (m *ViewManager) Catalog() Catalog { return m.catalog }

// Mount starts view name. Mounting a mounted view returns it with created
// false.
func (m *ViewManager) Mount(name string) (*View, bool, error) {
	spec, ok := m.catalog[name]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrViewNotFound, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.views[name]; ok {
		return v, false, nil
	}

	tracker := NewRequestTracker()
	agg := NewAggregator(name, m.clock, m.metrics, m.observers...)
	v := &View{
		spec:      spec,
		agg:       agg,
		tracker:   tracker,
		actions:   NewActionRunner(spec, m.backend, tracker, agg, m.metrics, m.log),
		mountedAt: m.clock.Now(),
	}
	if spec.Interval > 0 && len(spec.Fetches) > 0 {
		v.poller = NewPoller(PollerConfig{
			View:     name,
			Interval: spec.Interval,
			Fetches:  spec.Fetches,
		}, m.backend, tracker, agg, m.clock, m.metrics, m.log)
		if err := v.poller.Start(context.Background()); err != nil {
			return nil, false, fmt.Errorf("start poller: %w", err)
		}
	}

	m.views[name] = v
	m.metrics.SetMountedViews(len(m.views))
	m.log.Info("view mounted", logger.String("view", name))
	return v, true, nil
}

// Unmount stops view name. No slot of the view changes after Unmount
// returns, even if a call resolves later.
func (m *ViewManager) Unmount(ctx context.Context, name string) error {
	m.mu.Lock()
	v, ok := m.views[name]
	if ok {
		delete(m.views, name)
		m.metrics.SetMountedViews(len(m.views))
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotMounted, name)
	}

	err := v.stop(ctx)
	for _, o := range m.observers {
		if u, ok := o.(interface{ OnUnmount(view string) }); ok {
			u.OnUnmount(name)
		}
	}
	m.log.Info("view unmounted", logger.String("view", name))
	if err != nil {
		return fmt.Errorf("unmount %s: %w", name, err)
	}
	return nil
}

// Get returns mounted view name.
func (m *ViewManager) Get(name string) (*View, error) {
	if _, ok := m.catalog[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotMounted, name)
	}
	return v, nil
}

// List returns the mounted views sorted by name.
func (m *ViewManager) List() []ViewInfo {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.mu.Unlock()

	out := make([]ViewInfo, 0, len(views))
	for _, v := range views {
		out = append(out, ViewInfo{
			Name:      v.spec.Name,
			Interval:  v.spec.Interval,
			MountedAt: v.mountedAt,
			Ticks:     v.Ticks(),
			Actions:   v.spec.Actions,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Slot returns one slot of a view. Unmounted views are served from the
// snapshot mirror when one is configured.
func (m *ViewManager) Slot(ctx context.Context, name string, kind models.Kind) (models.Slot, error) {
	v, err := m.Get(name)
	if err == nil {
		return v.Read(kind), nil
	}
	if !errors.Is(err, ErrViewNotMounted) || m.mirror == nil {
		return models.Slot{}, err
	}

	s, merr := m.mirror.Load(ctx, name, kind)
	if merr != nil {
		return models.Slot{}, fmt.Errorf("load mirrored slot: %w", merr)
	}
	if s == nil {
		return models.Slot{}, err
	}
	return *s, nil
}

// Stats projects the current state of a mounted view.
func (m *ViewManager) Stats(ctx context.Context, name string) (DisplayStats, error) {
	v, err := m.Get(name)
	if err != nil {
		return DisplayStats{}, err
	}
	st := v.State()
	if _, ok := st.Slots[models.KindMetrics]; !ok {
		return Project(st, nil), nil
	}
	return Project(st, m.baseline(ctx, name)), nil
}

// baseline returns the historical metrics sample of view, nil when history
// is disabled or the lookup failed. Concurrent readers share one query.
func (m *ViewManager) baseline(ctx context.Context, view string) *models.MetricsBaseline {
	if m.history == nil {
		return nil
	}
	at := m.clock.Now().Add(-m.window)
	v, err, _ := m.baselines.Do(view, func() (any, error) {
		return m.history.MetricsBaseline(ctx, view, at)
	})
	if err != nil {
		m.metrics.RecordError("baseline")
		m.log.Warn("metrics baseline lookup failed", logger.String("view", view), logger.Error(err))
		return nil
	}
	b, _ := v.(*models.MetricsBaseline)
	return b
}

// Close unmounts every view.
func (m *ViewManager) Close(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.views))
	for n := range m.views {
		names = append(names, n)
	}
	m.mu.Unlock()

	var errs []error
	for _, n := range names {
		if err := m.Unmount(ctx, n); err != nil && !errors.Is(err, ErrViewNotMounted) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
