package repository

import (
	"context"
	"time"

	"SentinelX/internal/domain/models"
)

// Params are the string encoded parameters of one backend operation.
type Params map[string]string

// Backend executes exactly one backend call per invocation.
type Backend interface {
	Execute(ctx context.Context, op models.Kind, params Params) (any, error)
}

// Publisher ships commit events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, ev *models.CommitEvent) error
	PublishBatch(ctx context.Context, evs []*models.CommitEvent) error
	Close() error
}

// HistoryStore keeps committed events and answers baseline queries.
type HistoryStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, ev *models.CommitEvent) error
	StoreBatch(ctx context.Context, evs []*models.CommitEvent) error
	// MetricsBaseline returns the latest successful metrics sample of view
	// recorded at or before at, or nil when none exists.
	MetricsBaseline(ctx context.Context, view string, at time.Time) (*models.MetricsBaseline, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotMirror mirrors committed slots to a shared cache so that other
// processes can read the latest view state.
type SnapshotMirror interface {
	Mirror(ctx context.Context, view string, slot models.Slot) error
	Load(ctx context.Context, view string, kind models.Kind) (*models.Slot, error)
	Drop(ctx context.Context, view string) error
}

// Metrics records sync layer observations.
type Metrics interface {
	RecordFetch(op string, outcome string, seconds float64)
	RecordCommit(view, kind, status string)
	RecordSkip(view, kind, reason string)
	RecordMessageSent(backend, view string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetMountedViews(n int)
}
