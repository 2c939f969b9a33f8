package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// MockInteractionsCollection is a mock implementation of docdb.InteractionsCollection.
type MockInteractionsCollection struct {
	mock.Mock
}

// Create mocks inserting an interaction.
func (m *MockInteractionsCollection) Create(ctx context.Context, interaction *models.OracleInteraction) error {
	args := m.Called(ctx, interaction)
	return args.Error(0)
}

// Get mocks fetching an interaction.
func (m *MockInteractionsCollection) Get(ctx context.Context, userID, id string) (*models.OracleInteraction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OracleInteraction), args.Error(1)
}

// ListByUser mocks listing a user's interactions.
func (m *MockInteractionsCollection) ListByUser(ctx context.Context, opts *docdb.ListInteractionsOptions) ([]*models.OracleInteraction, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OracleInteraction), args.Error(1)
}

// SetFavorite mocks the favorite update.
func (m *MockInteractionsCollection) SetFavorite(ctx context.Context, userID, id string, favorite bool) error {
	args := m.Called(ctx, userID, id, favorite)
	return args.Error(0)
}

// Delete mocks removing an interaction.
func (m *MockInteractionsCollection) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

// CountByUser mocks counting a user's interactions.
func (m *MockInteractionsCollection) CountByUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// EnsureIndexes mocks index creation.
func (m *MockInteractionsCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDocDBClient is a mock implementation of docdb.Client.
type MockDocDBClient struct {
	mock.Mock
	InteractionsCollection *MockInteractionsCollection
}

// NewMockDocDBClient creates a new mock docdb client with its collection mock.
func NewMockDocDBClient() *MockDocDBClient {
	return &MockDocDBClient{InteractionsCollection: &MockInteractionsCollection{}}
}

// Interactions returns the mocked collection.
func (m *MockDocDBClient) Interactions() docdb.InteractionsCollection {
	return m.InteractionsCollection
}

// Ping mocks the connectivity check.
func (m *MockDocDBClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the connection.
func (m *MockDocDBClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// EnsureIndexes mocks index creation.
func (m *MockDocDBClient) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
