// Package store provides the durable key-value collaborator behind the config cascade.
//
// DESIGN: The cascade is the only caller. Absence is reported through the
// bool return, not an error, so callers can tell "not configured" from
// "store unavailable". Incr is a single atomic statement so concurrent
// requests rotating the credential pool never observe the same counter value.
package store

import "context"

// Store is a durable string key-value store with an atomic counter primitive.
type Store interface {
	// Get returns the value for key, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// GetMany returns the present keys among keys. Absent keys are omitted.
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	// Incr atomically adds one to the counter stored under key and returns
	// the new value. Counters live in their own keyspace.
	Incr(ctx context.Context, key string) (int64, error)
	// Close releases resources.
	Close() error
}
