package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
)

// Publish sends payload on a Redis channel.
func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a pattern subscription. The returned channel closes when
// ctx is done or the subscription is closed.
func (c *Cache) Subscribe(ctx context.Context, pattern string) (cache.Subscription, error) {
	ps := c.client.PSubscribe(ctx, pattern)
	// Receive blocks until redis confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	sub := &subscription{
		ps:  ps,
		out: make(chan cache.Message, 64),
	}
	go sub.pump(ctx)
	return sub, nil
}

type subscription struct {
	ps  *redis.PubSub
	out chan cache.Message
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.ps.Close()
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- cache.Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				_ = s.ps.Close()
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan cache.Message {
	return s.out
}

func (s *subscription) Close() error {
	return s.ps.Close()
}
