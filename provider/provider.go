// Package provider defines the edge cache abstraction used by edgekv.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the
// []byte previously passed to Set for a key. Stores that compress or otherwise
// transform values must fully reverse the transform on read.
//
// The keyspaces "kv:<space>:" and "list:<space>:" are owned by edgekv. Foreign
// values written under those prefixes fail envelope validation and are deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// Transport or server failures return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL; ttl <= 0 means no expiry.
	// cost is a hint for admission-based stores and may be ignored.
	// ok=false reports a write rejected under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
