// Package storage provides the durable string key-value collaborators backing
// the offline layer. Implementations mirror the mobile platform's async
// storage contract: every call is context-aware and may fail.
package storage

import (
	"context"
	"errors"
)

// Standard errors
var (
	// ErrKeyNotFound indicates a read of an absent key
	ErrKeyNotFound = errors.New("storage: key not found")
)

// Storage is the minimal durable key-value interface consumed by the
// offline layer's key-value store
type Storage interface {
	// GetItem returns the value stored under key, or ErrKeyNotFound
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key, replacing any existing value
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key; removing an absent key is not an error
	RemoveItem(ctx context.Context, key string) error

	// Keys returns every stored key
	Keys(ctx context.Context) ([]string, error)

	// RemoveAll deletes every key in keys
	RemoveAll(ctx context.Context, keys []string) error

	// Clear deletes everything
	Clear(ctx context.Context) error
}

// IsNotFound checks if error indicates an absent key
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
