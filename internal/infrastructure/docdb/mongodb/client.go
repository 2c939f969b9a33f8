// Package mongodb stores the oracle's question and answer history in MongoDB.
// Each saved interaction is one document in the oracle_interactions
// collection, scoped by user.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
)

const defaultConnectTimeout = 10 * time.Second

// Client owns the connection and the typed interactions collection.
type Client struct {
	client       *mongo.Client
	interactions *InteractionsCollection
}

var _ docdb.Client = (*Client)(nil)

// ClientConfig holds MongoDB connection configuration.
type ClientConfig struct {
	URI          string
	DatabaseName string
	// AppName shows up in the server logs and currentOp.
	AppName        string
	ConnectTimeout time.Duration
}

func (c *ClientConfig) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.URI == "" {
		return fmt.Errorf("mongodb URI is required")
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// NewClient connects, checks the primary is reachable and binds the
// interactions collection. Index creation is left to EnsureIndexes.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if config.AppName != "" {
		clientOpts.SetAppName(config.AppName)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// Writes go to the primary; a secondary-only cluster cannot save answers.
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to reach mongodb primary: %w", err)
	}

	return &Client{
		client:       client,
		interactions: NewInteractionsCollection(client.Database(config.DatabaseName)),
	}, nil
}

// Interactions returns the history collection.
func (c *Client) Interactions() docdb.InteractionsCollection {
	return c.interactions
}

// Ping is used by the health check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close disconnects, waiting for in-flight history writes up to ctx.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

// EnsureIndexes creates the (user_id, created_at) index history listing relies on.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	if err := c.interactions.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure interactions indexes: %w", err)
	}
	return nil
}
