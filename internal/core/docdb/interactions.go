package docdb

import (
	"context"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// SortOrder represents the sort direction.
type SortOrder string

const (
	// SortOrderAsc represents ascending order.
	SortOrderAsc SortOrder = "asc"
	// SortOrderDesc represents descending order.
	SortOrderDesc SortOrder = "desc"
)

// ListInteractionsOptions contains options for listing interactions.
type ListInteractionsOptions struct {
	UserID  string
	Limit   int64
	Skip    int64
	OrderBy SortOrder // Order by created_at, newest first by default
}

// InteractionsCollection defines the operations on stored oracle interactions.
// Every mutation is scoped to the owning user.
type InteractionsCollection interface {
	// Create inserts a new interaction.
	Create(ctx context.Context, interaction *models.OracleInteraction) error

	// Get retrieves an interaction by ID. Returns nil when it does not exist.
	Get(ctx context.Context, userID, id string) (*models.OracleInteraction, error)

	// ListByUser lists a user's interactions with pagination and sorting.
	ListByUser(ctx context.Context, opts *ListInteractionsOptions) ([]*models.OracleInteraction, error)

	// SetFavorite updates the favorite flag. Returns a NOT_FOUND error when
	// the user owns no such interaction.
	SetFavorite(ctx context.Context, userID, id string, favorite bool) error

	// Delete removes an interaction. Returns a NOT_FOUND error when the user
	// owns no such interaction.
	Delete(ctx context.Context, userID, id string) error

	// CountByUser returns the number of interactions stored for a user.
	CountByUser(ctx context.Context, userID string) (int64, error)

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
