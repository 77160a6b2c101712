// Package genstore keeps per-key write generations.
//
// edgekv bumps a key's generation on every Put and Delete. Background refreshes
// and miss fills snapshot the generation before reading the origin and skip
// their edge write when it moved, so a slow refresh cannot overwrite a newer
// value written through the same cache.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live. Missing keys are generation 0.
type GenStore interface {
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes entries idle for longer than retention. No-op for shared stores.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
