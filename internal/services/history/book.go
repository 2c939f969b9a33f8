// Package history keeps the signed-in user's past oracle interactions.
//
// The book loads a user's interactions once and serves later reads from
// memory. Favorite and delete changes are applied locally before the
// database confirms them and are rolled back if it refuses.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// DefaultLimit is the number of interactions loaded per user.
const DefaultLimit int64 = 50

// Filter narrows a listing.
type Filter struct {
	// Search matches questions case-insensitively.
	Search string
	// FavoritesOnly keeps favorited interactions only.
	FavoritesOnly bool
}

// Book is the in-memory history of one client context.
type Book struct {
	store docdb.InteractionsCollection
	limit int64

	loadMu sync.Mutex

	mu         sync.Mutex
	userID     string
	loaded     bool
	generation uint64
	items      []*models.OracleInteraction
}

// NewBook creates a history book over store.
func NewBook(store docdb.InteractionsCollection, limit int64) (*Book, error) {
	if store == nil {
		return nil, fmt.Errorf("interactions collection is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Book{store: store, limit: limit}, nil
}

// List returns the user's interactions, newest first. The first call for a
// user loads them from the database.
func (b *Book) List(ctx context.Context, userID string, filter Filter) ([]models.OracleInteraction, error) {
	if userID == "" {
		return nil, apperrors.NewUnauthenticatedError("sign in to see your history")
	}
	if err := b.ensureLoaded(ctx, userID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.OracleInteraction, 0, len(b.items))
	for _, item := range b.items {
		if filter.FavoritesOnly && !item.IsFavorite {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Question), search) {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (b *Book) ensureLoaded(ctx context.Context, userID string) error {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()

	b.mu.Lock()
	b.switchUserLocked(userID)
	if b.loaded {
		b.mu.Unlock()
		return nil
	}
	generation := b.generation
	b.mu.Unlock()

	items, err := b.store.ListByUser(ctx, &docdb.ListInteractionsOptions{
		UserID:  userID,
		Limit:   b.limit,
		OrderBy: docdb.SortOrderDesc,
	})
	if err != nil {
		return apperrors.NewServiceUnavailableError("interaction history", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != generation {
		// Reset or user switch while loading; the next List retries.
		return nil
	}
	// Interactions saved while the load was in flight stay on top.
	merged := append([]*models.OracleInteraction{}, b.items...)
	for _, item := range items {
		if indexOf(merged, item.ID) < 0 {
			loaded := *item
			merged = append(merged, &loaded)
		}
	}
	b.items = merged
	b.loaded = true
	return nil
}

// Record saves a completed interaction and prepends it to the loaded history.
// It satisfies the oracle controller's recorder.
func (b *Book) Record(ctx context.Context, interaction *models.OracleInteraction) error {
	if err := b.store.Create(ctx, interaction); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.switchUserLocked(interaction.UserID)
	if indexOf(b.items, interaction.ID) < 0 {
		saved := *interaction
		b.items = append([]*models.OracleInteraction{&saved}, b.items...)
	}
	return nil
}

// SetFavorite flips the favorite flag optimistically.
func (b *Book) SetFavorite(ctx context.Context, userID, id string, favorite bool) error {
	if userID == "" {
		return apperrors.NewUnauthenticatedError("sign in to update your history")
	}

	b.mu.Lock()
	b.switchUserLocked(userID)
	var previous bool
	idx := indexOf(b.items, id)
	if idx >= 0 {
		previous = b.items[idx].IsFavorite
		b.items[idx].IsFavorite = favorite
	}
	b.mu.Unlock()

	if err := b.store.SetFavorite(ctx, userID, id, favorite); err != nil {
		if idx >= 0 {
			b.mu.Lock()
			if i := indexOf(b.items, id); i >= 0 && b.userID == userID {
				b.items[i].IsFavorite = previous
			}
			b.mu.Unlock()
		}
		log.Warn().Err(err).Str("interaction_id", id).Bool("favorite", favorite).Msg("Reverted favorite change")
		return err
	}
	return nil
}

// Delete removes an interaction optimistically. On failure it is restored at
// its original position.
func (b *Book) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return apperrors.NewUnauthenticatedError("sign in to update your history")
	}

	b.mu.Lock()
	b.switchUserLocked(userID)
	var removed *models.OracleInteraction
	idx := indexOf(b.items, id)
	if idx >= 0 {
		removed = b.items[idx]
		b.items = append(b.items[:idx:idx], b.items[idx+1:]...)
	}
	b.mu.Unlock()

	if err := b.store.Delete(ctx, userID, id); err != nil {
		if removed != nil {
			b.mu.Lock()
			if b.userID == userID && indexOf(b.items, id) < 0 {
				at := idx
				if at > len(b.items) {
					at = len(b.items)
				}
				b.items = append(b.items[:at:at], append([]*models.OracleInteraction{removed}, b.items[at:]...)...)
			}
			b.mu.Unlock()
		}
		log.Warn().Err(err).Str("interaction_id", id).Msg("Reverted interaction delete")
		return err
	}
	return nil
}

// Reset drops everything held in memory.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked("")
}

// switchUserLocked clears the book when a different user takes over.
func (b *Book) switchUserLocked(userID string) {
	if b.userID != userID {
		b.resetLocked(userID)
	}
}

func (b *Book) resetLocked(userID string) {
	b.userID = userID
	b.items = nil
	b.loaded = false
	b.generation++
}

func indexOf(items []*models.OracleInteraction, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
