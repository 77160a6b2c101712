package edgekv

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/edgekv/internal/keys"
	"github.com/unkn0wn-root/edgekv/internal/wire"
	"github.com/unkn0wn-root/edgekv/origin"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

// ListQuery selects a page of keys. Limit 0 means origin.MaxListLimit.
// Each distinct (Prefix, Limit, Cursor) is cached on its own.
type ListQuery struct {
	Prefix string
	Limit  int
	Cursor string
}

func (q ListQuery) validate() error {
	if q.Limit < 0 || q.Limit > origin.MaxListLimit {
		return fmt.Errorf("%w: limit %d outside [1, %d]", ErrInvalidListQuery, q.Limit, origin.MaxListLimit)
	}
	return nil
}

type ListKey struct {
	Name       string
	Expiration int64 // unix seconds, 0 = none
	Metadata   any
}

type ListResult struct {
	Keys     []ListKey
	Cursor   string
	Complete bool
	Status   CacheStatus
}

// listPage is the cached form of one origin page. Query holds the canonical
// query so a hashed-key collision reads as a miss.
type listPage struct {
	Query    string     `msgpack:"q"`
	Keys     []pageItem `msgpack:"k"`
	Cursor   string     `msgpack:"c,omitempty"`
	Complete bool       `msgpack:"d"`
}

type pageItem struct {
	Name       string `msgpack:"n"`
	Expiration int64  `msgpack:"e,omitempty"`
	Meta       []byte `msgpack:"m,omitempty"`
}

// List returns one page of keys through the list cache.
func (k *KV) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	canonical := keys.Canonical(q.Prefix, q.Limit, q.Cursor)
	skey := keys.List(k.cfg.Space, canonical)

	if env, ok := k.lookup(ctx, skey, wire.KindList); ok {
		var page listPage
		switch err := msgpack.Unmarshal(env.Payload, &page); {
		case err != nil:
			k.selfHeal(ctx, skey, "corrupt")
		case page.Query != canonical:
			k.selfHeal(ctx, skey, "query_mismatch")
		default:
			status := k.maybeRefresh(ctx, skey, env.CreatedAt, false, k.refreshListTask(q, canonical, skey))
			return k.listResult(&page, status), nil
		}
	}

	obs, genErr := k.gen.Snapshot(ctx, skey)
	page, raw, err := k.fetchList(ctx, q, canonical)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		k.hooks.GenStoreError(skey, genErr)
	} else {
		k.schedule(ctx, "edgekv.fill_list", k.fillTask(skey, raw, obs, k.cfg.EdgeTTL, true))
	}
	return k.listResult(page, StatusMiss), nil
}

func (k *KV) fetchList(ctx context.Context, q ListQuery, canonical string) (*listPage, []byte, error) {
	res, err := k.origin.List(ctx, origin.ListOptions{Prefix: q.Prefix, Limit: q.Limit, Cursor: q.Cursor})
	if errors.Is(err, origin.ErrInvalidCursor) {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidListQuery, err)
	}
	if err != nil {
		return nil, nil, originErr("list", q.Prefix, err)
	}

	page := &listPage{Query: canonical, Cursor: res.Cursor, Complete: res.Complete}
	page.Keys = make([]pageItem, len(res.Keys))
	for i, lk := range res.Keys {
		page.Keys[i] = pageItem{Name: lk.Name, Expiration: lk.Expiration, Meta: lk.Metadata}
	}
	payload, err := msgpack.Marshal(page)
	if err != nil {
		return nil, nil, fmt.Errorf("edgekv: encode list page: %w", err)
	}
	raw := wire.Encode(wire.Envelope{Kind: wire.KindList, CreatedAt: k.clock.Now(), Payload: payload})
	return page, raw, nil
}

func (k *KV) refreshListTask(q ListQuery, canonical, skey string) scheduler.Task {
	return func(ctx context.Context) error {
		obs, err := k.gen.Snapshot(ctx, skey)
		if err != nil {
			k.hooks.GenStoreError(skey, err)
			return err
		}
		_, raw, err := k.fetchList(ctx, q, canonical)
		if err != nil {
			return err
		}
		return k.fill(ctx, skey, raw, obs, k.cfg.EdgeTTL, true)
	}
}

func (k *KV) listResult(p *listPage, status CacheStatus) *ListResult {
	out := &ListResult{
		Keys:     make([]ListKey, len(p.Keys)),
		Cursor:   p.Cursor,
		Complete: p.Complete,
		Status:   status,
	}
	for i, it := range p.Keys {
		meta, err := k.decodeMeta(it.Meta)
		if err != nil {
			meta = nil
		}
		out.Keys[i] = ListKey{Name: it.Name, Expiration: it.Expiration, Metadata: meta}
	}
	return out
}
