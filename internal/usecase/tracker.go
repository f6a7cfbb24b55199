package usecase

import (
	"sync"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/util"
)

// RequestTracker allows at most one in-flight call per request key.
type RequestTracker struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewRequestTracker creates an empty tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{inFlight: make(map[string]struct{})}
}

// RequestKey derives the tracker key of op with params.
func RequestKey(op models.Kind, params repository.Params) string {
	return util.CanonicalKey(string(op), params)
}

// TryStart marks key as in flight. It returns false when a call for key is
// already running; the caller must not issue a duplicate.
func (t *RequestTracker) TryStart(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.inFlight[key]; busy {
		return false
	}
	t.inFlight[key] = struct{}{}
	return true
}

// Finish releases key. Finishing an idle key is a no-op.
func (t *RequestTracker) Finish(key string) {
	t.mu.Lock()
	delete(t.inFlight, key)
	t.mu.Unlock()
}

// Acquire is TryStart with a release func meant to be deferred.
func (t *RequestTracker) Acquire(key string) (release func(), ok bool) {
	if !t.TryStart(key) {
		return func() {}, false
	}
	var once sync.Once
	return func() { once.Do(func() { t.Finish(key) }) }, true
}

// InFlight reports whether key is currently running.
func (t *RequestTracker) InFlight(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.inFlight[key]
	return busy
}

// Len returns the number of in-flight keys.
func (t *RequestTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}
