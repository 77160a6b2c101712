package edgekv

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/unkn0wn-root/edgekv/internal/wire"
	"github.com/unkn0wn-root/edgekv/origin"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

// Clock supplies the current time for envelope stamps and age checks.
type Clock interface {
	Now() time.Time
}

// RandomSource draws u ~ Uniform[0,1) for the refresh decision.
type RandomSource interface {
	Float64() float64
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemRand struct{}

func (systemRand) Float64() float64 { return rand.Float64() }

// RefreshProbability is growth^(age - FreshnessWindow) with age in seconds.
// The result is not clamped; values >= 1 mean a refresh is certain. An entry
// with no recorded creation time is maximally stale.
func RefreshProbability(cfg Config, createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 1
	}
	cfg = cfg.withDefaults()
	elapsed := now.Sub(createdAt).Seconds() - cfg.FreshnessWindow.Seconds()
	return math.Pow(cfg.RefreshGrowthRate, elapsed)
}

// maybeRefresh runs the early-refresh draw for a cached entry and schedules t
// when it wins. stale forces the refresh.
func (k *KV) maybeRefresh(ctx context.Context, skey string, createdAt time.Time, stale bool, t scheduler.Task) CacheStatus {
	p := 1.0
	if !stale {
		p = RefreshProbability(k.cfg, createdAt, k.clock.Now())
	}
	if k.rand.Float64() >= p {
		return StatusHit
	}

	if k.dedup {
		if _, loaded := k.inflight.LoadOrStore(skey, struct{}{}); loaded {
			k.hooks.RefreshSkipped(skey, "in_flight")
			return StatusRevalidated
		}
		inner := t
		t = func(ctx context.Context) error {
			defer k.inflight.Delete(skey)
			return inner(ctx)
		}
	}
	k.hooks.RefreshScheduled(skey, p)
	k.schedule(ctx, "edgekv.refresh", t)
	return StatusRevalidated
}

// refreshTask re-reads key from the origin and replaces the edge entry, or
// removes it when the origin no longer has the key.
func (k *KV) refreshTask(key, skey string) scheduler.Task {
	return func(ctx context.Context) error {
		obs, err := k.gen.Snapshot(ctx, skey)
		if err != nil {
			k.hooks.GenStoreError(skey, err)
			return err
		}
		l, err := k.fetch(ctx, key, skey, obs)
		if errors.Is(err, origin.ErrNotFound) {
			if !k.fenced(ctx, skey, obs) {
				return nil
			}
			k.selfHeal(ctx, skey, "origin_not_found")
			return nil
		}
		if err != nil {
			return err
		}
		return k.fill(ctx, skey, l.raw, obs, k.cfg.EdgeTTL, false)
	}
}

// fenced reports whether skey still has generation obs. A moved generation
// means a Put or Delete happened after obs was taken.
func (k *KV) fenced(ctx context.Context, skey string, obs uint64) bool {
	cur, err := k.gen.Snapshot(ctx, skey)
	if err != nil {
		k.hooks.GenStoreError(skey, err)
		return false
	}
	if cur != obs {
		k.hooks.RefreshSkipped(skey, "gen_mismatch")
		k.log.Debug("edgekv: background write skipped (gen mismatch)", Fields{"key": skey, "obs": obs, "cur": cur})
		return false
	}
	return true
}

// fill writes raw to the edge iff the generation of skey is still obs.
func (k *KV) fill(ctx context.Context, skey string, raw []byte, obs uint64, ttl time.Duration, isList bool) error {
	if !k.fenced(ctx, skey, obs) {
		return nil
	}
	ok, err := k.edge.Set(ctx, skey, raw, int64(len(raw)), ttl)
	if err != nil {
		k.hooks.EdgeUnavailable(skey, "set", err)
		return err
	}
	if !ok {
		k.hooks.EdgeSetRejected(skey, isList)
		k.log.Debug("edgekv: edge set rejected (pressure)", Fields{"key": skey})
	}
	return nil
}

func (k *KV) fillTask(skey string, raw []byte, obs uint64, ttl time.Duration, isList bool) scheduler.Task {
	return func(ctx context.Context) error {
		return k.fill(ctx, skey, raw, obs, ttl, isList)
	}
}

// lookup reads and validates an edge envelope. Edge failures and corrupt
// entries read as absent.
func (k *KV) lookup(ctx context.Context, skey string, kind byte) (wire.Envelope, bool) {
	raw, ok, err := k.edge.Get(ctx, skey)
	if err != nil {
		k.hooks.EdgeUnavailable(skey, "get", err)
		k.log.Warn("edgekv: edge get failed, reading origin", Fields{"key": skey, "err": err})
		return wire.Envelope{}, false
	}
	if !ok {
		return wire.Envelope{}, false
	}
	env, err := wire.Decode(raw)
	if err != nil || env.Kind != kind {
		k.selfHeal(ctx, skey, "corrupt")
		return wire.Envelope{}, false
	}
	return env, true
}

func (k *KV) selfHeal(ctx context.Context, skey, reason string) {
	if err := k.edge.Del(ctx, skey); err != nil {
		k.hooks.EdgeUnavailable(skey, "del", err)
	}
	k.hooks.SelfHeal(skey, reason)
}
