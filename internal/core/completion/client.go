// Package completion defines the streaming completion backend interface.
package completion

import (
	"context"
)

// Request is a single question sent to the completion backend.
type Request struct {
	Question string
}

// StreamReader yields the raw response body as it arrives.
type StreamReader interface {
	// Read returns the next chunk of bytes in transport order.
	// Returns io.EOF when the stream is exhausted; data may accompany io.EOF.
	Read() ([]byte, error)

	// Close releases resources associated with the reader.
	Close() error
}

// Client defines the interface for streaming completions.
type Client interface {
	// Stream sends req and returns a reader for the response body. A non-success
	// response is reported here as a BACKEND_REJECTED domain error.
	Stream(ctx context.Context, req *Request) (StreamReader, error)

	// Ping checks that the backend is configured and reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the client.
	Close() error
}
