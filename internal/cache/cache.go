// Package cache provides the regional cache tier of the config cascade.
//
// DESIGN: The cache is a plain key-value store with an optional max-age.
// Every method may fail; the cascade treats cache errors as misses and
// falls through to the durable store.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value cache with per-entry expiry.
type Cache interface {
	// Get returns the cached bytes, or ok=false on a miss or expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value for maxAge. A zero maxAge means no expiry.
	Set(ctx context.Context, key string, value []byte, maxAge time.Duration) error
	// Delete evicts key.
	Delete(ctx context.Context, key string) error
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}
