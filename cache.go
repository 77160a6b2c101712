package edgekv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/unkn0wn-root/edgekv/internal/keys"
	"github.com/unkn0wn-root/edgekv/internal/tee"
	"github.com/unkn0wn-root/edgekv/internal/wire"
	"github.com/unkn0wn-root/edgekv/origin"
)

// Entry is a read result with its metadata.
type Entry struct {
	Value    Value
	Metadata any // nil when none was stored or it could not be decoded
	Status   CacheStatus
}

// PutOptions are forwarded to the origin. Expiration wins over ExpirationTTL.
// The edge copy never outlives the origin expiry.
type PutOptions struct {
	Metadata      any
	Expiration    time.Time
	ExpirationTTL time.Duration
}

// loaded is an origin read framed for the edge. Shared between singleflight
// callers, so it must not be mutated.
type loaded struct {
	raw []byte
	env wire.Envelope
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}

// Get returns the value for key in representation rep.
// A key absent from the origin returns ErrNotFound.
func (k *KV) Get(ctx context.Context, key string, rep Representation) (Value, CacheStatus, error) {
	e, err := k.get(ctx, key, rep)
	if err != nil {
		return Value{}, StatusMiss, err
	}
	return e.Value, e.Status, nil
}

// GetWithMetadata is Get plus the metadata stored with the value.
func (k *KV) GetWithMetadata(ctx context.Context, key string, rep Representation) (*Entry, error) {
	return k.get(ctx, key, rep)
}

func (k *KV) get(ctx context.Context, key string, rep Representation) (*Entry, error) {
	if !rep.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRepresentation, rep)
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	skey := keys.Single(k.cfg.Space, key)

	if env, ok := k.lookup(ctx, skey, wire.KindSingle); ok {
		meta, metaErr := k.decodeMeta(env.Meta)
		if metaErr != nil {
			k.log.Warn("edgekv: cached metadata unreadable, forcing refresh",
				Fields{"key": skey, "err": fmt.Errorf("%w: %v", ErrMalformedEnvelope, metaErr)})
		}
		status := k.maybeRefresh(ctx, skey, env.CreatedAt, metaErr != nil, k.refreshTask(key, skey))
		v, err := decodeValue(rep, env.Payload, k.structured)
		if err != nil {
			return nil, err
		}
		return &Entry{Value: v, Metadata: meta, Status: status}, nil
	}

	// snapshot before the origin read so a concurrent Put fences our fill
	obs, genErr := k.gen.Snapshot(ctx, skey)
	l, err := k.fetch(ctx, key, skey, obs)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		k.hooks.GenStoreError(skey, genErr)
	} else {
		k.schedule(ctx, "edgekv.fill", k.fillTask(skey, l.raw, obs, k.cfg.EdgeTTL, false))
	}

	meta, err := k.decodeMeta(l.env.Meta)
	if err != nil {
		k.log.Warn("edgekv: origin metadata unreadable", Fields{"key": key, "err": err})
		meta = nil
	}
	v, err := decodeValue(rep, l.env.Payload, k.structured)
	if err != nil {
		return nil, err
	}
	return &Entry{Value: v, Metadata: meta, Status: StatusMiss}, nil
}

// fetch reads key from the origin and frames it with createdAt = now.
// Concurrent loads of the same key and generation share one origin read
// unless dedup is off. The shared read ignores the callers' cancellation;
// each caller stops waiting when its own ctx is done.
func (k *KV) fetch(ctx context.Context, key, skey string, gen uint64) (*loaded, error) {
	load := func(ctx context.Context) (*loaded, error) {
		obj, err := k.origin.GetWithMetadata(ctx, key, origin.GetOptions{CacheTTL: k.cfg.OriginCacheTTL})
		if err != nil {
			return nil, originErr("get", key, err)
		}
		defer obj.Body.Close()
		payload, err := io.ReadAll(obj.Body)
		if err != nil {
			return nil, originErr("get", key, err)
		}
		env := wire.Envelope{
			Kind:      wire.KindSingle,
			CreatedAt: k.clock.Now(),
			Meta:      obj.Metadata,
			Payload:   payload,
		}
		return &loaded{raw: wire.Encode(env), env: env}, nil
	}
	if !k.dedup {
		return load(ctx)
	}
	shared := context.WithoutCancel(ctx)
	ch := k.loads.DoChan(skey+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return load(shared)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*loaded), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put writes value to the origin and, once that succeeded, schedules the
// edge write. It returns when the origin write is durable.
func (k *KV) Put(ctx context.Context, key string, value Value, opts PutOptions) error {
	if !value.rep.valid() {
		return fmt.Errorf("%w: zero value", ErrInvalidRepresentation)
	}
	if err := checkKey(key); err != nil {
		return err
	}
	meta, err := k.encodeMeta(opts.Metadata)
	if err != nil {
		return err
	}
	skey := keys.Single(k.cfg.Space, key)
	now := k.clock.Now()
	oopts := origin.PutOptions{Metadata: meta, Expiration: opts.Expiration, ExpirationTTL: opts.ExpirationTTL}

	var (
		body     io.Reader
		edgeCopy io.ReadCloser
		payload  []byte
	)
	if value.rep == Stream {
		if value.stream == nil {
			return fmt.Errorf("%w: nil stream", ErrInvalidRepresentation)
		}
		toOrigin, toEdge := tee.Tee(value.stream)
		defer toOrigin.Close()
		body, edgeCopy = toOrigin, toEdge
	} else {
		payload, err = encodeValue(value, k.structured)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	if err := k.origin.Put(ctx, key, body, oopts); err != nil {
		if edgeCopy != nil {
			_ = edgeCopy.Close()
		}
		return originErr("put", key, err)
	}

	obs, genErr := k.gen.Bump(ctx, skey)
	ttl, live := k.edgeTTL(oopts.ExpiresAt(now), now)
	if genErr != nil || !live {
		if genErr != nil {
			k.hooks.GenStoreError(skey, genErr)
		}
		if edgeCopy != nil {
			_ = edgeCopy.Close()
		}
		// without a fence or with an already expired value, drop the edge copy
		if err := k.edge.Del(ctx, skey); err != nil {
			k.hooks.EdgeUnavailable(skey, "del", err)
		}
		return nil
	}

	// readers must not see the previous value while the edge write is queued
	if err := k.edge.Del(ctx, skey); err != nil {
		k.hooks.EdgeUnavailable(skey, "del", err)
	}
	k.schedule(ctx, "edgekv.put", func(ctx context.Context) error {
		p := payload
		if edgeCopy != nil {
			defer edgeCopy.Close()
			b, err := io.ReadAll(edgeCopy)
			if err != nil {
				return fmt.Errorf("read edge copy: %w", err)
			}
			p = b
		}
		raw := wire.Encode(wire.Envelope{Kind: wire.KindSingle, CreatedAt: now, Meta: meta, Payload: p})
		return k.fill(ctx, skey, raw, obs, ttl, false)
	})
	return nil
}

// edgeTTL caps the configured edge TTL at the origin expiry.
// live=false means the value has already expired.
func (k *KV) edgeTTL(expiresAt, now time.Time) (ttl time.Duration, live bool) {
	ttl = k.cfg.EdgeTTL
	if expiresAt.IsZero() {
		return ttl, true
	}
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0, false
	}
	if ttl == 0 || left < ttl {
		ttl = left
	}
	return ttl, true
}

// Delete removes key from the edge (best-effort) and then from the origin.
// Deleting a missing key succeeds.
func (k *KV) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	skey := keys.Single(k.cfg.Space, key)
	if _, err := k.gen.Bump(ctx, skey); err != nil {
		k.hooks.GenStoreError(skey, err)
	}
	if err := k.edge.Del(ctx, skey); err != nil {
		k.hooks.EdgeUnavailable(skey, "del", err)
		k.log.Warn("edgekv: edge delete failed", Fields{"key": skey, "err": err})
	}
	if err := k.origin.Delete(ctx, key); err != nil && !errors.Is(err, origin.ErrNotFound) {
		return originErr("delete", key, err)
	}
	return nil
}

func (k *KV) decodeMeta(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return k.meta.Decode(b)
}

func (k *KV) encodeMeta(m any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := k.meta.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("edgekv: encode metadata: %w", err)
	}
	return b, nil
}
