// Package redis is an origin store on top of go-redis.
//
// Layout, for namespace ns:
//
//	<ns>:h:<key>  hash {v: value, m: metadata, e: expiry unix seconds}
//	<ns>:idx      zset of every key (score 0) for lexicographic listing
//
// Keys with an expiry get EXPIREAT on their hash. Index members whose hash
// has expired are skipped by List and removed lazily.
package redis

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/edgekv/origin"
)

var ErrNilClient = errors.New("redis origin: nil client")

const (
	fieldValue  = "v"
	fieldMeta   = "m"
	fieldExpiry = "e"
)

type Store struct {
	rdb goredis.UniversalClient
	ns  string
	now func() time.Time
}

var _ origin.Store = (*Store)(nil)

type Config struct {
	Client    goredis.UniversalClient
	Namespace string // default "edgekv:origin"
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "edgekv:origin"
	}
	return &Store{rdb: cfg.Client, ns: ns, now: time.Now}, nil
}

func (s *Store) hashKey(k string) string { return s.ns + ":h:" + k }
func (s *Store) indexKey() string        { return s.ns + ":idx" }

func (s *Store) load(ctx context.Context, key string) ([]byte, []byte, error) {
	vals, err := s.rdb.HMGet(ctx, s.hashKey(key), fieldValue, fieldMeta).Result()
	if err != nil {
		return nil, nil, err
	}
	v, ok := vals[0].(string)
	if !ok {
		return nil, nil, origin.ErrNotFound
	}
	var meta []byte
	if m, ok := vals[1].(string); ok && m != "" {
		meta = []byte(m)
	}
	return []byte(v), meta, nil
}

func (s *Store) Get(ctx context.Context, key string, _ origin.GetOptions) (io.ReadCloser, error) {
	v, _, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(v))), nil
}

func (s *Store) GetWithMetadata(ctx context.Context, key string, _ origin.GetOptions) (*origin.Object, error) {
	v, meta, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return &origin.Object{Body: io.NopCloser(strings.NewReader(string(v))), Metadata: meta}, nil
}

func (s *Store) Put(ctx context.Context, key string, value io.Reader, opts origin.PutOptions) error {
	b, err := io.ReadAll(value)
	if err != nil {
		return err
	}
	exp := opts.ExpiresAt(s.now())
	if !exp.IsZero() && !exp.After(s.now()) {
		return s.Delete(ctx, key)
	}

	fields := []any{fieldValue, b}
	if len(opts.Metadata) > 0 {
		fields = append(fields, fieldMeta, opts.Metadata)
	}
	if !exp.IsZero() {
		fields = append(fields, fieldExpiry, exp.Unix())
	}

	hk := s.hashKey(key)
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, hk)
		p.HSet(ctx, hk, fields...)
		if !exp.IsZero() {
			p.ExpireAt(ctx, hk, exp)
		}
		p.ZAdd(ctx, s.indexKey(), goredis.Z{Score: 0, Member: key})
		return nil
	})
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.hashKey(key))
		p.ZRem(ctx, s.indexKey(), key)
		return nil
	})
	return err
}

// prefixEnd is the exclusive ZRANGEBYLEX bound just past every member that
// starts with prefix, or "+" when no such bound exists (all 0xff bytes).
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return "(" + string(b[:i+1])
		}
	}
	return "+"
}

func (s *Store) List(ctx context.Context, opts origin.ListOptions) (*origin.ListResult, error) {
	after, err := origin.DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := opts.EffectiveLimit()

	lo, hi := "-", "+"
	if opts.Prefix != "" {
		lo = "[" + opts.Prefix
		hi = prefixEnd(opts.Prefix)
	}
	if after != "" && after >= opts.Prefix {
		lo = "(" + after
	}

	names, err := s.rdb.ZRangeByLex(ctx, s.indexKey(), &goredis.ZRangeBy{
		Min:   lo,
		Max:   hi,
		Count: int64(limit + 1),
	}).Result()
	if err != nil {
		return nil, err
	}

	res := &origin.ListResult{Complete: true}
	if len(names) > limit {
		names = names[:limit]
		res.Complete = false
		res.Cursor = origin.EncodeCursor(names[len(names)-1])
	}
	if len(names) == 0 {
		return res, nil
	}

	cmds := make([]*goredis.SliceCmd, len(names))
	_, err = s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, n := range names {
			cmds[i] = p.HMGet(ctx, s.hashKey(n), fieldValue, fieldMeta, fieldExpiry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var gone []any
	res.Keys = make([]origin.ListKey, 0, len(names))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) < 3 || vals[0] == nil {
			gone = append(gone, names[i])
			continue
		}
		k := origin.ListKey{Name: names[i]}
		if m, ok := vals[1].(string); ok && m != "" {
			k.Metadata = []byte(m)
		}
		if e, ok := vals[2].(string); ok {
			k.Expiration, _ = strconv.ParseInt(e, 10, 64)
		}
		res.Keys = append(res.Keys, k)
	}
	if len(gone) > 0 {
		// expired hashes leave their index member behind
		_ = s.rdb.ZRem(ctx, s.indexKey(), gone...).Err()
	}
	return res, nil
}
