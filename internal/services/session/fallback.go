package session

import (
	"context"
	"fmt"
	"time"

	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/pkg/encryption"
)

// DefaultFallbackTTL matches the refresh cookie lifetime.
const DefaultFallbackTTL = DefaultRefreshTokenMaxAge

// FallbackStore is the secondary token slot, read only when the cookie slot misses.
type FallbackStore interface {
	// Save stores the pair for a client context.
	Save(ctx context.Context, contextID string, pair models.TokenPair) error

	// Load returns the stored pair. ok is false when nothing usable is stored.
	Load(ctx context.Context, contextID string) (pair models.TokenPair, ok bool, err error)

	// Clear removes the stored pair.
	Clear(ctx context.Context, contextID string) error
}

// FallbackConfig holds the configuration for the cache-backed fallback store.
type FallbackConfig struct {
	CacheClient cache.Client
	Encryptor   encryption.Encryptor
	TTL         time.Duration
}

type cacheFallback struct {
	cacheClient cache.Client
	encryptor   encryption.Encryptor
	ttl         time.Duration
}

// NewFallbackStore creates a fallback store that keeps encrypted pairs in the cache.
func NewFallbackStore(cfg *FallbackConfig) (FallbackStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.CacheClient == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultFallbackTTL
	}

	return &cacheFallback{
		cacheClient: cfg.CacheClient,
		encryptor:   cfg.Encryptor,
		ttl:         ttl,
	}, nil
}

func (f *cacheFallback) Save(ctx context.Context, contextID string, pair models.TokenPair) error {
	sealed, err := encryption.SealJSON(f.encryptor, pair)
	if err != nil {
		return fmt.Errorf("failed to seal tokens: %w", err)
	}
	if err := f.cacheClient.Set(ctx, tokensKey(contextID), sealed, f.ttl); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// Load treats undecryptable or corrupt entries (e.g. after a key rotation) as absent
// and drops them.
func (f *cacheFallback) Load(ctx context.Context, contextID string) (models.TokenPair, bool, error) {
	var pair models.TokenPair
	key := tokensKey(contextID)

	sealed, err := f.cacheClient.Get(ctx, key)
	if err != nil {
		return pair, false, fmt.Errorf("failed to read tokens: %w", err)
	}
	if sealed == nil {
		return pair, false, nil
	}

	if err := encryption.OpenJSON(f.encryptor, sealed, &pair); err != nil {
		_, _ = f.cacheClient.Delete(ctx, key)
		return models.TokenPair{}, false, nil
	}
	return pair, !pair.IsZero(), nil
}

func (f *cacheFallback) Clear(ctx context.Context, contextID string) error {
	if _, err := f.cacheClient.Delete(ctx, tokensKey(contextID)); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func tokensKey(contextID string) string {
	return "tokens:" + contextID
}
