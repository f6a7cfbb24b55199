package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/clock"
	"SentinelX/pkg/logger"
)

// Sink backends.
const (
	SinkNone       = "none"
	SinkKafka      = "kafka"
	SinkClickHouse = "clickhouse"
)

// flushTimeout bounds the final flush after the run context is done.
const flushTimeout = 5 * time.Second

// CommitSink ships accepted commits to the configured backend in batches.
// OnCommit never blocks; events are dropped when the buffer is full.
type CommitSink struct {
	pub     repository.Publisher
	store   repository.HistoryStore
	metrics repository.Metrics
	log     *logger.Logger
	clock   clock.Clock
	backend string
	batchSz int
	batchTO time.Duration

	events chan *models.CommitEvent
}

// NewCommitSink creates a sink routing to pub for "kafka" and to store for
// "clickhouse".
func NewCommitSink(
	pub repository.Publisher,
	store repository.HistoryStore,
	metrics repository.Metrics,
	log *logger.Logger,
	clk clock.Clock,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *CommitSink {
	if batchSz <= 0 {
		batchSz = 1
	}
	return &CommitSink{
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log.With(logger.String("component", "commit_sink"), logger.String("backend", backend)),
		clock:   clk,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
		events:  make(chan *models.CommitEvent, batchSz*4),
	}
}

func (s *CommitSink) OnCommit(ev *models.CommitEvent) {
	if ev.Status == models.StatusLoading {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.metrics.RecordError("sink_overflow")
	}
}

// Run batches events until ctx is done, then flushes what is queued.
func (s *CommitSink) Run(ctx context.Context) error {
	batch := make([]*models.CommitEvent, 0, s.batchSz)
	var timer <-chan time.Time

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.ProcessBatch(ctx, batch); err != nil {
			s.log.Warn("commit batch dropped", logger.Int("events", len(batch)), logger.Error(err))
		}
		batch = batch[:0]
		timer = nil
	}

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			for drained := false; !drained; {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
					if len(batch) >= s.batchSz {
						flush(fctx)
					}
				default:
					drained = true
				}
			}
			flush(fctx)
			cancel()
			return nil
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) == 1 && s.batchTO > 0 {
				timer = s.clock.After(s.batchTO)
			}
			if len(batch) >= s.batchSz || s.batchTO <= 0 {
				flush(ctx)
			}
		case <-timer:
			flush(ctx)
		}
	}
}

// Process ships a single event.
func (s *CommitSink) Process(ctx context.Context, ev *models.CommitEvent) error {
	if ev == nil {
		return errors.New("commit event is nil")
	}
	return s.ProcessBatch(ctx, []*models.CommitEvent{ev})
}

// ProcessBatch ships events in one backend call.
func (s *CommitSink) ProcessBatch(ctx context.Context, evs []*models.CommitEvent) error {
	if len(evs) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch s.backend {
	case SinkKafka:
		err = s.pub.PublishBatch(ctx, evs)
	case SinkClickHouse:
		err = s.store.StoreBatch(ctx, evs)
	default:
		err = fmt.Errorf("unknown backend: %s", s.backend)
	}

	if err != nil {
		s.metrics.RecordError("sink_batch")
		return fmt.Errorf("sink batch: %w", err)
	}

	for _, ev := range evs {
		s.metrics.RecordMessageSent(s.backend, ev.View)
	}
	s.metrics.RecordLatency("sink_batch", time.Since(start).Seconds())
	return nil
}

type mirrorOp struct {
	view string
	slot *models.Slot
}

// SlotMirror copies every committed slot into a SnapshotMirror from a single
// worker, preserving commit order.
type SlotMirror struct {
	mirror        repository.SnapshotMirror
	metrics       repository.Metrics
	log           *logger.Logger
	dropOnUnmount bool

	ops chan mirrorOp
}

func NewSlotMirror(mirror repository.SnapshotMirror, metrics repository.Metrics, log *logger.Logger, buffer int, dropOnUnmount bool) *SlotMirror {
	if buffer <= 0 {
		buffer = 64
	}
	return &SlotMirror{
		mirror:        mirror,
		metrics:       metrics,
		log:           log.With(logger.String("component", "slot_mirror")),
		dropOnUnmount: dropOnUnmount,
		ops:           make(chan mirrorOp, buffer),
	}
}

func (m *SlotMirror) OnCommit(ev *models.CommitEvent) {
	m.enqueue(mirrorOp{view: ev.View, slot: &models.Slot{
		Kind:          ev.Kind,
		Status:        ev.Status,
		Value:         ev.Value,
		Err:           ev.Err,
		LastUpdatedAt: ev.Committed,
		Tick:          ev.Tick,
	}})
}

// OnUnmount removes the view's mirrored slots when configured to.
func (m *SlotMirror) OnUnmount(view string) {
	if m.dropOnUnmount {
		m.enqueue(mirrorOp{view: view})
	}
}

func (m *SlotMirror) enqueue(op mirrorOp) {
	select {
	case m.ops <- op:
	default:
		m.metrics.RecordError("mirror_overflow")
	}
}

// Run applies queued operations until ctx is done.
func (m *SlotMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-m.ops:
			m.apply(ctx, op)
		}
	}
}

func (m *SlotMirror) apply(ctx context.Context, op mirrorOp) {
	var err error
	if op.slot == nil {
		err = m.mirror.Drop(ctx, op.view)
	} else {
		err = m.mirror.Mirror(ctx, op.view, *op.slot)
	}
	if err != nil {
		m.metrics.RecordError("mirror")
		m.log.Warn("mirror slot failed", logger.String("view", op.view), logger.Error(err))
	}
}
