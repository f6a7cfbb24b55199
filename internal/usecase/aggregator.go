package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/clock"
)

// Skip reasons reported to metrics.
const (
	SkipStale    = "stale"
	SkipStopped  = "stopped"
	SkipInFlight = "in_flight"
)

// subscriberBuffer bounds the events queued for one slow subscriber.
const subscriberBuffer = 32

// CommitObserver is notified of every accepted slot transition. Observers run
// on the committing goroutine and must not block.
type CommitObserver interface {
	OnCommit(ev *models.CommitEvent)
}

// CommitObserverFunc adapts a function to CommitObserver.
type CommitObserverFunc func(ev *models.CommitEvent)

func (f CommitObserverFunc) OnCommit(ev *models.CommitEvent) { f(ev) }

// Aggregator holds one slot per kind for a single view. Writes are
// last-write-wins per kind; a commit never touches another kind's slot.
type Aggregator struct {
	view    string
	clock   clock.Clock
	metrics repository.Metrics

	mu            sync.RWMutex
	slots         map[models.Kind]*models.Slot
	prevMetrics   *models.IndexerMetricsSnapshot
	prevMetricsAt time.Time
	lastSuccess   map[models.Kind]time.Time
	closed        bool
	observers     []CommitObserver
	subs          map[int]chan models.CommitEvent
	nextSub       int
}

// NewAggregator creates an aggregator for view with every slot idle.
func NewAggregator(view string, clk clock.Clock, metrics repository.Metrics, observers ...CommitObserver) *Aggregator {
	return &Aggregator{
		view:        view,
		clock:       clk,
		metrics:     metrics,
		slots:       make(map[models.Kind]*models.Slot),
		lastSuccess: make(map[models.Kind]time.Time),
		observers:   observers,
		subs:        make(map[int]chan models.CommitEvent),
	}
}

// View returns the name of the owning view.
func (a *Aggregator) View() string { return a.view }

// Begin moves an idle slot to loading. Slots that already hold a result keep
// their status so that a refresh never blanks a widget.
func (a *Aggregator) Begin(kind models.Kind, tick uint64) bool {
	return a.begin(kind, tick, false)
}

// Restart moves the slot to loading regardless of its status, keeping the
// previous value. User actions use it on every submission.
func (a *Aggregator) Restart(kind models.Kind, tick uint64) bool {
	return a.begin(kind, tick, true)
}

func (a *Aggregator) begin(kind models.Kind, tick uint64, always bool) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	s := a.slotLocked(kind)
	if tick < s.Tick || (!always && s.Status != models.StatusIdle) {
		a.mu.Unlock()
		return false
	}
	s.Status = models.StatusLoading
	s.Tick = tick
	ev := a.eventLocked(s)
	a.mu.Unlock()

	a.broadcast(ev)
	return true
}

// Commit stores the outcome of the call issued at tick. A result older than
// the slot's current tick, or arriving after Close, is discarded. On failure
// the previous value stays visible next to the error.
func (a *Aggregator) Commit(kind models.Kind, tick uint64, res models.Result) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.metrics.RecordSkip(a.view, string(kind), SkipStopped)
		return false
	}
	s := a.slotLocked(kind)
	if tick < s.Tick {
		a.mu.Unlock()
		a.metrics.RecordSkip(a.view, string(kind), SkipStale)
		return false
	}

	now := a.clock.Now()
	s.Tick = tick
	s.LastUpdatedAt = now
	if res.Err != nil {
		s.Status = models.StatusError
		s.Err = models.AsFetchError(kind, res.Err)
	} else {
		if _, ok := res.Value.(*models.IndexerMetricsSnapshot); ok {
			if prev, ok := s.Value.(*models.IndexerMetricsSnapshot); ok {
				a.prevMetrics = prev
				a.prevMetricsAt = a.lastSuccess[kind]
			}
		}
		a.lastSuccess[kind] = now
		s.Value = res.Value
		s.Status = models.StatusSuccess
		s.Err = nil
	}
	ev := a.eventLocked(s)
	ev.ID = uuid.NewString()
	observers := a.observers
	a.mu.Unlock()

	a.metrics.RecordCommit(a.view, string(kind), string(ev.Status))
	for _, o := range observers {
		o.OnCommit(&ev)
	}
	a.broadcast(ev)
	return true
}

// Read returns a copy of the slot for kind.
func (a *Aggregator) Read(kind models.Kind) models.Slot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if s, ok := a.slots[kind]; ok {
		return *s
	}
	return models.Slot{Kind: kind, Status: models.StatusIdle}
}

// State returns a consistent copy of every slot.
func (a *Aggregator) State() models.ViewState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := models.ViewState{
		View:              a.view,
		Slots:             make(map[models.Kind]models.Slot, len(a.slots)),
		PreviousMetrics:   a.prevMetrics,
		PreviousMetricsAt: a.prevMetricsAt,
	}
	for k, s := range a.slots {
		st.Slots[k] = *s
	}
	return st
}

// Subscribe returns a channel receiving every slot transition of the view.
// Events are dropped for a subscriber whose buffer is full. The channel is
// closed by the returned cancel func or by Close.
func (a *Aggregator) Subscribe() (<-chan models.CommitEvent, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan models.CommitEvent, subscriberBuffer)
	if a.closed {
		close(ch)
		return ch, func() {}
	}
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if c, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(c)
			}
		})
	}
}

// Close seals the aggregator: later commits are discarded and subscribers
// are released.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}

// Closed reports whether Close was called.
func (a *Aggregator) Closed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

func (a *Aggregator) broadcast(ev models.CommitEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// slotLocked must be called with mu held for writing.
func (a *Aggregator) slotLocked(kind models.Kind) *models.Slot {
	s, ok := a.slots[kind]
	if !ok {
		s = &models.Slot{Kind: kind, Status: models.StatusIdle}
		a.slots[kind] = s
	}
	return s
}

func (a *Aggregator) eventLocked(s *models.Slot) models.CommitEvent {
	return models.CommitEvent{
		View:      a.view,
		Kind:      s.Kind,
		Tick:      s.Tick,
		Status:    s.Status,
		Value:     s.Value,
		Err:       s.Err,
		Committed: a.clock.Now(),
	}
}
