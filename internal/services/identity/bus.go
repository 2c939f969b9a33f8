package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/pkg/encryption"
)

const channelPrefix = "oracle:auth:"

type busSubscriber struct {
	id int
	fn func(models.AuthEvent)
}

// Bus delivers auth events to the subscribers of an origin. With a relay it
// also carries events between service instances over cache pub/sub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]busSubscriber
	nextID int

	relay    cache.Client
	sealer   encryption.Encryptor
	instance string
}

type envelope struct {
	Instance string           `json:"instance"`
	Origin   string           `json:"origin"`
	Event    models.AuthEvent `json:"event"`
}

// NewBus creates a bus. relay and sealer may both be nil for a single instance.
func NewBus(relay cache.Client, sealer encryption.Encryptor) *Bus {
	if relay != nil && sealer == nil {
		sealer = encryption.NewNoOpEncryptor()
	}
	return &Bus{
		subs:     make(map[string][]busSubscriber),
		relay:    relay,
		sealer:   sealer,
		instance: uuid.NewString(),
	}
}

// Subscribe registers fn for events of origin.
func (b *Bus) Subscribe(origin string, fn func(models.AuthEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[origin] = append(b.subs[origin], busSubscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[origin]
			for i, s := range subs {
				if s.id == id {
					subs = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.subs, origin)
			} else {
				b.subs[origin] = subs
			}
		})
	}
}

// Publish delivers ev to local subscribers synchronously, then relays it.
func (b *Bus) Publish(ctx context.Context, origin string, ev models.AuthEvent) {
	if origin == "" {
		return
	}
	b.dispatch(origin, ev)

	if b.relay == nil {
		return
	}
	payload, err := encryption.SealJSON(b.sealer, envelope{Instance: b.instance, Origin: origin, Event: ev})
	if err != nil {
		log.Error().Err(err).Msg("Failed to seal auth event")
		return
	}
	if err := b.relay.Publish(ctx, channelPrefix+origin, payload); err != nil {
		log.Warn().Err(err).Str("sid", origin).Msg("Failed to relay auth event")
	}
}

func (b *Bus) dispatch(origin string, ev models.AuthEvent) {
	b.mu.RLock()
	subs := make([]busSubscriber, len(b.subs[origin]))
	copy(subs, b.subs[origin])
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Run consumes relayed events from other instances until ctx is done.
// It returns immediately when the bus has no relay.
func (b *Bus) Run(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	sub, err := b.relay.Subscribe(ctx, channelPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to subscribe to auth events: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var env envelope
			if err := encryption.OpenJSON(b.sealer, msg.Payload, &env); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping unreadable auth event")
				continue
			}
			if env.Instance == b.instance {
				continue
			}
			origin := strings.TrimPrefix(msg.Channel, channelPrefix)
			b.dispatch(origin, env.Event)
		}
	}
}
