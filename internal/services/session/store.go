// Package session holds the current authenticated session of a client context
// and the persisted copies of its tokens.
package session

import (
	"sync"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Listener receives the session that a Replace call installed. A nil session means signed out.
// Listeners run synchronously inside Replace and must not call Replace themselves.
type Listener func(*models.Session)

type subscriber struct {
	id int
	fn Listener
}

// Store is the single source of truth for the current session.
// Readers always get a copy; the stored value is only swapped wholesale.
type Store struct {
	replaceMu sync.Mutex // serializes Replace and its notifications

	mu          sync.RWMutex
	current     *models.Session
	epoch       uint64 // bumped by every sign-out
	subscribers []subscriber
	nextID      int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns a snapshot of the current session, or nil.
func (s *Store) Current() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.current)
}

// Replace installs next as the current session and notifies every subscriber
// once, in registration order, before returning.
func (s *Store) Replace(next *models.Session) {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()
	s.replaceLocked(next)
}

// Epoch returns the number of sign-outs the store has seen. Callers capture it
// before a slow operation and hand it to ReplaceIf afterwards.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// ReplaceIf installs next only when no sign-out happened since epoch was read.
// A session obtained before a sign-out must not bring it back.
func (s *Store) ReplaceIf(epoch uint64, next *models.Session) bool {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	if next != nil && s.Epoch() != epoch {
		return false
	}
	s.replaceLocked(next)
	return true
}

// ReplaceIfNewer behaves like Replace but refuses a session that expires
// earlier than the current one. Signing out (nil) is always accepted.
func (s *Store) ReplaceIfNewer(next *models.Session) bool {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	if next != nil {
		s.mu.RLock()
		cur := s.current
		s.mu.RUnlock()
		if cur != nil && next.ExpiresAt < cur.ExpiresAt {
			return false
		}
	}
	s.replaceLocked(next)
	return true
}

func (s *Store) replaceLocked(next *models.Session) {
	s.mu.Lock()
	if next == nil {
		s.epoch++
	}
	s.current = clone(next)
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(clone(next))
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

func clone(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
