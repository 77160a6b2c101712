// Package origin defines the durable key-value store the cache fronts.
//
// A Store is assumed to be slower than the edge cache, billed per operation
// and eventually consistent: a write may not be visible to a Get or List
// issued by a different node right away.
//
// Implementations must be safe for concurrent use. Delete of a missing key
// must succeed. Get/GetWithMetadata report a missing key as ErrNotFound.
package origin

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound reports that the key does not exist (or has expired).
var ErrNotFound = errors.New("origin: key not found")

// ErrInvalidCursor reports a list cursor this store did not issue.
var ErrInvalidCursor = errors.New("origin: invalid cursor")

// MaxListLimit is the largest page a List call may request.
const MaxListLimit = 1000

// Store is the origin the cache reads through to.
type Store interface {
	// Get returns the value stream. Callers must close it.
	Get(ctx context.Context, key string, opts GetOptions) (io.ReadCloser, error)
	// GetWithMetadata returns the value stream and the stored metadata bytes.
	GetWithMetadata(ctx context.Context, key string, opts GetOptions) (*Object, error)
	// Put consumes value until EOF and stores it durably.
	Put(ctx context.Context, key string, value io.Reader, opts PutOptions) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// GetOptions carries read hints.
type GetOptions struct {
	// CacheTTL lets stores with their own read cache keep the value that long.
	CacheTTL time.Duration
}

// Object is a value read from the origin.
type Object struct {
	Body     io.ReadCloser
	Metadata []byte // nil when none was stored
}

// PutOptions mirrors the origin's write options. Expiration wins over
// ExpirationTTL when both are set.
type PutOptions struct {
	Metadata      []byte
	Expiration    time.Time
	ExpirationTTL time.Duration
}

// ExpiresAt resolves the absolute expiry for a write made at now.
// The zero time means the key never expires.
func (o PutOptions) ExpiresAt(now time.Time) time.Time {
	if !o.Expiration.IsZero() {
		return o.Expiration
	}
	if o.ExpirationTTL > 0 {
		return now.Add(o.ExpirationTTL)
	}
	return time.Time{}
}

// ListOptions selects a page of keys. Limit 0 means MaxListLimit.
type ListOptions struct {
	Prefix string
	Limit  int
	Cursor string
}

// EffectiveLimit clamps Limit into [1, MaxListLimit].
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 || o.Limit > MaxListLimit {
		return MaxListLimit
	}
	return o.Limit
}

// ListKey describes one listed key.
type ListKey struct {
	Name       string
	Expiration int64 // unix seconds, 0 = none
	Metadata   []byte
}

// ListResult is one page of keys in lexicographic order.
// Cursor is set only when Complete is false.
type ListResult struct {
	Keys     []ListKey
	Cursor   string
	Complete bool
}

// EncodeCursor turns the last key of a page into an opaque cursor.
func EncodeCursor(lastKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastKey))
}

// DecodeCursor reverses EncodeCursor. The empty cursor decodes to "".
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return string(b), nil
}
