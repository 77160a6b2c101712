// Package memory is an in-process origin store backed by patrickmn/go-cache.
// It honours per-key expiration and is meant for tests, demos and
// single-node deployments.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/unkn0wn-root/edgekv/origin"
)

type record struct {
	value   []byte
	meta    []byte
	expires int64 // unix seconds, 0 = none
}

// Store keeps every key in memory.
type Store struct {
	c   *gocache.Cache
	now func() time.Time
}

var _ origin.Store = (*Store)(nil)

// New creates an empty store. cleanupInterval controls how often expired
// keys are purged; <= 0 disables the janitor (expired keys are still hidden).
func New(cleanupInterval time.Duration) *Store {
	return &Store{
		c:   gocache.New(gocache.NoExpiration, cleanupInterval),
		now: time.Now,
	}
}

func (s *Store) lookup(ctx context.Context, key string) (record, error) {
	if err := ctx.Err(); err != nil {
		return record{}, err
	}
	v, ok := s.c.Get(key)
	if !ok {
		return record{}, origin.ErrNotFound
	}
	return v.(record), nil
}

func (s *Store) Get(ctx context.Context, key string, _ origin.GetOptions) (io.ReadCloser, error) {
	r, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(r.value)), nil
}

func (s *Store) GetWithMetadata(ctx context.Context, key string, _ origin.GetOptions) (*origin.Object, error) {
	r, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return &origin.Object{Body: io.NopCloser(bytes.NewReader(r.value)), Metadata: r.meta}, nil
}

func (s *Store) Put(ctx context.Context, key string, value io.Reader, opts origin.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := io.ReadAll(value)
	if err != nil {
		return err
	}
	now := s.now()
	r := record{value: b}
	if len(opts.Metadata) > 0 {
		r.meta = append([]byte(nil), opts.Metadata...)
	}

	ttl := gocache.NoExpiration
	if exp := opts.ExpiresAt(now); !exp.IsZero() {
		ttl = exp.Sub(now)
		if ttl <= 0 {
			s.c.Delete(key)
			return nil
		}
		r.expires = exp.Unix()
	}
	s.c.Set(key, r, ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.c.Delete(key)
	return nil
}

func (s *Store) List(ctx context.Context, opts origin.ListOptions) (*origin.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	after, err := origin.DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}

	items := s.c.Items() // expired items are excluded
	names := make([]string, 0, len(items))
	for k := range items {
		if strings.HasPrefix(k, opts.Prefix) && (after == "" || k > after) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	limit := opts.EffectiveLimit()
	res := &origin.ListResult{Complete: true}
	if len(names) > limit {
		names = names[:limit]
		res.Complete = false
		res.Cursor = origin.EncodeCursor(names[len(names)-1])
	}
	res.Keys = make([]origin.ListKey, 0, len(names))
	for _, k := range names {
		r := items[k].Object.(record)
		res.Keys = append(res.Keys, origin.ListKey{Name: k, Expiration: r.expires, Metadata: r.meta})
	}
	return res, nil
}

// Len reports the number of stored keys, including expired ones not yet purged.
func (s *Store) Len() int { return s.c.ItemCount() }
