package models

import "time"

// SlotStatus is the request state of one slot.
type SlotStatus string

const (
	StatusIdle    SlotStatus = "idle"
	StatusLoading SlotStatus = "loading"
	StatusSuccess SlotStatus = "success"
	StatusError   SlotStatus = "error"
)

// Slot holds the latest known state of one kind inside one view. Value keeps
// the last successful snapshot even while Status is error.
type Slot struct {
	Kind          Kind        `json:"kind"`
	Status        SlotStatus  `json:"status"`
	Value         any         `json:"value"`
	Err           *FetchError `json:"error"`
	LastUpdatedAt time.Time   `json:"last_updated_at"`
	Tick          uint64      `json:"tick"`
}

// RequestSlot is the typed view of a Slot.
type RequestSlot[T any] struct {
	Status        SlotStatus
	Value         *T
	Err           *FetchError
	LastUpdatedAt time.Time
	Tick          uint64
}

// Typed converts s into a RequestSlot of T. A value of another type is
// reported as absent.
func Typed[T any](s Slot) RequestSlot[T] {
	rs := RequestSlot[T]{
		Status:        s.Status,
		Err:           s.Err,
		LastUpdatedAt: s.LastUpdatedAt,
		Tick:          s.Tick,
	}
	switch v := s.Value.(type) {
	case *T:
		rs.Value = v
	case T:
		rs.Value = &v
	}
	return rs
}

// Result is the outcome of one backend call.
type Result struct {
	Value any
	Err   error
}

// ViewState is a consistent copy of every slot of a view.
type ViewState struct {
	View  string        `json:"view"`
	Slots map[Kind]Slot `json:"slots"`
	// PreviousMetrics is the metrics snapshot committed before the current one.
	PreviousMetrics   *IndexerMetricsSnapshot `json:"-"`
	PreviousMetricsAt time.Time               `json:"-"`
}

// Slot returns the slot for kind, idle when never touched.
func (s ViewState) Slot(kind Kind) Slot {
	if sl, ok := s.Slots[kind]; ok {
		return sl
	}
	return Slot{Kind: kind, Status: StatusIdle}
}

// CommitEvent is emitted after a slot accepted a commit.
type CommitEvent struct {
	ID        string      `json:"id,omitempty"`
	View      string      `json:"view"`
	Kind      Kind        `json:"kind"`
	Tick      uint64      `json:"tick"`
	Status    SlotStatus  `json:"status"`
	Value     any         `json:"value,omitempty"`
	Err       *FetchError `json:"error,omitempty"`
	Committed time.Time   `json:"committed_at"`
}
