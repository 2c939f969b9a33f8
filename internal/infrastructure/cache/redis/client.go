package redis

import (
	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
)

var _ cache.Client = (*Cache)(nil)

// NewClient creates a Redis-backed cache.Client.
func NewClient(cfg Config) (cache.Client, error) {
	c, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
