// Package storage provides the persistent key-value contract used by the
// Perspective engine for pools, history, and affinity tables.
//
// The engine treats the store as synchronous read/write with last-write-wins
// semantics per key. Backends only need get/set/delete by string key; a
// missing key is reported with ErrNotFound and callers treat it as an empty
// value, never as a failure.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("storage: key not found")

// ErrInvalidInput is returned when a caller passes an empty key.
var ErrInvalidInput = errors.New("storage: invalid input")

// KVStore is the narrow read/write contract the engine depends on.
type KVStore interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key with upsert semantics.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
