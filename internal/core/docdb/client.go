// Package docdb defines the document database client interface.
package docdb

import (
	"context"
)

// Client defines the interface for a document database client.
type Client interface {
	// Interactions returns the oracle interactions collection.
	Interactions() InteractionsCollection

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close(ctx context.Context) error

	// EnsureIndexes creates the indexes of every collection.
	EnsureIndexes(ctx context.Context) error
}
