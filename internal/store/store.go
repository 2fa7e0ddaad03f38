// Package store defines the save-blob persistence interface for the engine.
// Implementations include PostgreSQL (remote sync), SQLite (local disk),
// Redis (read-through cache over either) and in-memory (for testing).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no blob exists for the key.
var ErrNotFound = errors.New("store: not found")

// Store is a keyed blob store. Blobs are opaque to the store; the save
// package owns their format.
type Store interface {
	// Put writes the blob for key, replacing any previous value.
	Put(ctx context.Context, key string, blob []byte) error

	// Get returns the blob for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists stored keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
