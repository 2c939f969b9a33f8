package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// InteractionsCollectionName is the name of the oracle interactions collection.
const InteractionsCollectionName = "oracle_interactions"

// InteractionsCollection implements the docdb.InteractionsCollection interface for MongoDB.
type InteractionsCollection struct {
	collection *mongo.Collection
}

var _ docdb.InteractionsCollection = (*InteractionsCollection)(nil)

// NewInteractionsCollection creates a new interactions collection wrapper.
func NewInteractionsCollection(db *mongo.Database) *InteractionsCollection {
	return &InteractionsCollection{
		collection: db.Collection(InteractionsCollectionName),
	}
}

// Create inserts a new interaction.
func (c *InteractionsCollection) Create(ctx context.Context, interaction *models.OracleInteraction) error {
	if interaction.ID == "" {
		return fmt.Errorf("interaction ID is required")
	}
	if interaction.UserID == "" {
		return fmt.Errorf("interaction user ID is required")
	}

	if _, err := c.collection.InsertOne(ctx, interaction); err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// Get retrieves an interaction by ID.
func (c *InteractionsCollection) Get(ctx context.Context, userID, id string) (*models.OracleInteraction, error) {
	var interaction models.OracleInteraction
	err := c.collection.FindOne(ctx, ownedBy(userID, id)).Decode(&interaction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}
	return &interaction, nil
}

// ListByUser lists a user's interactions with pagination and sorting.
func (c *InteractionsCollection) ListByUser(ctx context.Context, opts *docdb.ListInteractionsOptions) ([]*models.OracleInteraction, error) {
	if opts == nil || opts.UserID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	cursor, err := c.collection.Find(ctx, bson.M{"user_id": opts.UserID}, buildFindOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer cursor.Close(ctx)

	interactions := make([]*models.OracleInteraction, 0)
	if err := cursor.All(ctx, &interactions); err != nil {
		return nil, fmt.Errorf("failed to decode interactions: %w", err)
	}

	return interactions, nil
}

// SetFavorite updates the favorite flag of an interaction.
func (c *InteractionsCollection) SetFavorite(ctx context.Context, userID, id string, favorite bool) error {
	result, err := c.collection.UpdateOne(ctx, ownedBy(userID, id), bson.M{
		"$set": bson.M{"is_favorite": favorite},
	})
	if err != nil {
		return fmt.Errorf("failed to update interaction: %w", err)
	}

	if result.MatchedCount == 0 {
		return apperrors.NewNotFoundError("interaction", id)
	}
	return nil
}

// Delete removes an interaction.
func (c *InteractionsCollection) Delete(ctx context.Context, userID, id string) error {
	result, err := c.collection.DeleteOne(ctx, ownedBy(userID, id))
	if err != nil {
		return fmt.Errorf("failed to delete interaction: %w", err)
	}

	if result.DeletedCount == 0 {
		return apperrors.NewNotFoundError("interaction", id)
	}
	return nil
}

// CountByUser returns the number of interactions stored for a user.
func (c *InteractionsCollection) CountByUser(ctx context.Context, userID string) (int64, error) {
	count, err := c.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

// EnsureIndexes creates necessary indexes for the interactions collection.
func (c *InteractionsCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_user_created"),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "is_favorite", Value: 1},
			},
			Options: options.Index().SetName("idx_user_favorite"),
		},
	}

	if _, err := c.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create interactions indexes: %w", err)
	}
	return nil
}

func ownedBy(userID, id string) bson.M {
	return bson.M{"_id": id, "user_id": userID}
}

// buildFindOptions creates MongoDB find options from list options.
func buildFindOptions(opts *docdb.ListInteractionsOptions) *options.FindOptions {
	findOpts := options.Find()

	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	// Default to descending order by created_at
	sortOrder := -1
	if opts.OrderBy == docdb.SortOrderAsc {
		sortOrder = 1
	}
	findOpts.SetSort(bson.D{{Key: "created_at", Value: sortOrder}})

	return findOpts
}
