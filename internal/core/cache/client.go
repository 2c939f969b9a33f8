// Package cache defines the cache client interface.
package cache

import (
	"context"
	"time"
)

// Client defines key/value and pub/sub operations backed by the shared cache.
type Client interface {
	// Get retrieves a value by key. Returns nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL. If ttl is 0, the default TTL is used.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe listens on every channel matching pattern until the subscription is closed.
	Subscribe(ctx context.Context, pattern string) (Subscription, error)

	// Ping checks if the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache client connection.
	Close() error
}

// Message is a payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is an open pattern subscription.
type Subscription interface {
	// Messages returns the delivery channel. It is closed when the subscription ends.
	Messages() <-chan Message

	// Close ends the subscription.
	Close() error
}
