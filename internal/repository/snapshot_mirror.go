package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SentinelX/internal/domain/models"
	domrepo "SentinelX/internal/domain/repository"
	"SentinelX/pkg/cache"
)

const mirrorPrefix = "view"

// CacheMirror stores the latest slot of every view and kind under
// view:<name>:<kind>.
type CacheMirror struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheMirror(c cache.Service, ttl time.Duration) *CacheMirror {
	return &CacheMirror{cache: c, ttl: ttl}
}

func (m *CacheMirror) Mirror(ctx context.Context, view string, slot models.Slot) error {
	if err := m.cache.Set(ctx, SlotKey(view, slot.Kind), slot, m.ttl); err != nil {
		return fmt.Errorf("mirror %s/%s: %w", view, slot.Kind, err)
	}
	return nil
}

// Load returns the mirrored slot, nil when none is stored.
func (m *CacheMirror) Load(ctx context.Context, view string, kind models.Kind) (*models.Slot, error) {
	s, err := cache.GetTyped[models.Slot](ctx, m.cache, SlotKey(view, kind))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", view, kind, err)
	}
	return s, nil
}

func (m *CacheMirror) Drop(ctx context.Context, view string) error {
	pattern := cache.BuildPattern(cache.Key(mirrorPrefix, view) + ":")
	if err := m.cache.DeleteByPattern(ctx, pattern); err != nil {
		return fmt.Errorf("drop %s: %w", view, err)
	}
	return nil
}

// SlotKey is the cache key of one mirrored slot.
func SlotKey(view string, kind models.Kind) string {
	return cache.Key(mirrorPrefix, view, kind)
}

var _ domrepo.SnapshotMirror = (*CacheMirror)(nil)
