package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
)

// ActivityStore keeps the last qualifying user interaction per client context.
type ActivityStore interface {
	// Touch records at as the latest activity.
	Touch(ctx context.Context, contextID string, at time.Time) error

	// Last returns the latest activity. ok is false when nothing is recorded.
	Last(ctx context.Context, contextID string) (at time.Time, ok bool, err error)

	// Forget drops the record.
	Forget(ctx context.Context, contextID string) error
}

// cacheActivityStore persists activity in the shared cache so it survives
// reloads and restarts.
type cacheActivityStore struct {
	client cache.Client
	ttl    time.Duration
}

// NewCacheActivityStore creates an ActivityStore backed by the cache.
func NewCacheActivityStore(client cache.Client, ttl time.Duration) (ActivityStore, error) {
	if client == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	return &cacheActivityStore{client: client, ttl: ttl}, nil
}

func activityKey(contextID string) string {
	return "activity:" + contextID
}

func (s *cacheActivityStore) Touch(ctx context.Context, contextID string, at time.Time) error {
	value := strconv.FormatInt(at.UnixMilli(), 10)
	if err := s.client.Set(ctx, activityKey(contextID), []byte(value), s.ttl); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

func (s *cacheActivityStore) Last(ctx context.Context, contextID string) (time.Time, bool, error) {
	data, err := s.client.Get(ctx, activityKey(contextID))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read activity: %w", err)
	}
	if data == nil {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Unreadable records count as missing and get overwritten on the next touch.
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *cacheActivityStore) Forget(ctx context.Context, contextID string) error {
	_, err := s.client.Delete(ctx, activityKey(contextID))
	return err
}

// MemoryActivityStore keeps activity in process. Used when no cache is configured.
type MemoryActivityStore struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewMemoryActivityStore creates an empty in-memory store.
func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{last: make(map[string]time.Time)}
}

// Touch records at as the latest activity.
func (s *MemoryActivityStore) Touch(_ context.Context, contextID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[contextID] = at.UTC()
	return nil
}

// Last returns the latest activity.
func (s *MemoryActivityStore) Last(_ context.Context, contextID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.last[contextID]
	return at, ok, nil
}

// Forget drops the record.
func (s *MemoryActivityStore) Forget(_ context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, contextID)
	return nil
}
