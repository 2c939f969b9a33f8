// Package vault defines the secrets interface used to resolve credentials at startup.
package vault

import (
	"context"
	"errors"
	"fmt"
)

// Vault defines the interface for vault/secrets operations.
type Vault interface {
	// StoreSecret stores a secret and returns its URI.
	StoreSecret(ctx context.Context, key string, value string) (string, error)

	// GetSecret retrieves a secret by URI.
	GetSecret(ctx context.Context, uri string) (string, error)

	// Ping checks if the vault connection is alive.
	Ping(ctx context.Context) error

	// Close closes the vault connection.
	Close() error
}

// Resolve returns configured when set, otherwise the secret stored under key.
// An absent secret yields an empty string and no error; required is enforced by callers.
func Resolve(ctx context.Context, v Vault, configured, key string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if v == nil {
		return "", nil
	}
	value, err := v.GetSecret(ctx, URI(v, key))
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve secret %s: %w", key, err)
	}
	return value, nil
}

// URI builds the reference for key in the given vault.
func URI(v Vault, key string) string {
	if s, ok := v.(interface{ Scheme() string }); ok {
		return s.Scheme() + "://" + key
	}
	return key
}

// ErrNotFound is returned by implementations when a secret does not exist.
var ErrNotFound = errors.New("secret not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
