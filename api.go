package edgekv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/edgekv/codec"
	"github.com/unkn0wn-root/edgekv/genstore"
	"github.com/unkn0wn-root/edgekv/internal/keys"
	"github.com/unkn0wn-root/edgekv/origin"
	"github.com/unkn0wn-root/edgekv/provider"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// Config is immutable per KV. Zero fields take the package defaults.
type Config struct {
	// Space partitions the edge cache; "" is the shared "default" space.
	Space string
	// FreshnessWindow is the soft TTL after which refresh probability passes 1/growth.
	FreshnessWindow time.Duration
	// RefreshGrowthRate is the per-second growth of refresh probability; must be > 1.
	RefreshGrowthRate float64
	// OriginCacheTTL is passed to the origin's own read cache; must be >= FreshnessWindow.
	OriginCacheTTL time.Duration
	// EdgeTTL is the hard TTL handed to the edge provider; 0 = provider default.
	EdgeTTL time.Duration
}

func (c Config) withDefaults() Config {
	c.Space = coalesce(c.Space, keys.DefaultSpace)
	c.FreshnessWindow = coalesce(c.FreshnessWindow, DefaultFreshnessWindow)
	c.RefreshGrowthRate = coalesce(c.RefreshGrowthRate, DefaultRefreshGrowthRate)
	c.OriginCacheTTL = coalesce(c.OriginCacheTTL, DefaultOriginCacheTTL)
	return c
}

// Validate checks a Config after defaults are applied.
func (c Config) Validate() error {
	var errs []error
	if math.IsNaN(c.RefreshGrowthRate) || c.RefreshGrowthRate <= 1 {
		errs = append(errs, fmt.Errorf("refresh growth rate must be > 1, got %v", c.RefreshGrowthRate))
	}
	if c.FreshnessWindow < 0 {
		errs = append(errs, fmt.Errorf("freshness window must be >= 0, got %v", c.FreshnessWindow))
	}
	if c.OriginCacheTTL < c.FreshnessWindow {
		errs = append(errs, fmt.Errorf("origin cache ttl %v is shorter than freshness window %v",
			c.OriginCacheTTL, c.FreshnessWindow))
	}
	if c.EdgeTTL < 0 {
		errs = append(errs, fmt.Errorf("edge ttl must be >= 0, got %v", c.EdgeTTL))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Options wire a KV together. Origin and Edge are required; everything else
// has a default.
type Options struct {
	Config Config

	Origin origin.Store
	Edge   provider.Provider

	// Scheduler runs refreshes and edge writes. nil => an owned worker pool
	// that Close drains. A scheduler in the request context wins over both.
	Scheduler scheduler.Scheduler
	Clock     Clock        // nil => wall clock
	Rand      RandomSource // nil => math/rand/v2
	Logger    Logger       // nil => NopLogger
	Hooks     Hooks        // nil => NopHooks
	GenStore  genstore.GenStore

	StructuredCodec codec.Codec[any] // nil => JSON
	MetadataCodec   codec.Codec[any] // nil => JSON

	// DisableRefreshDedup lets concurrent readers schedule redundant
	// refreshes and origin loads for the same key.
	DisableRefreshDedup bool
}

// KV is the cache-aside engine. Safe for concurrent use.
type KV struct {
	cfg        Config
	origin     origin.Store
	edge       provider.Provider
	sched      scheduler.Scheduler
	ownedPool  *scheduler.Pool
	clock      Clock
	rand       RandomSource
	log        Logger
	hooks      Hooks
	gen        genstore.GenStore
	ownedGen   bool
	structured codec.Codec[any]
	meta       codec.Codec[any]

	dedup    bool
	loads    singleflight.Group
	inflight sync.Map // storage key -> struct{}, refreshes scheduled but not finished
}

func New(opts Options) (*KV, error) {
	if opts.Origin == nil {
		return nil, fmt.Errorf("%w: origin store is required", ErrInvalidConfig)
	}
	if opts.Edge == nil {
		return nil, fmt.Errorf("%w: edge provider is required", ErrInvalidConfig)
	}
	cfg := opts.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &KV{
		cfg:    cfg,
		origin: opts.Origin,
		edge:   opts.Edge,
		dedup:  !opts.DisableRefreshDedup,
	}

	// defaults
	k.clock, k.rand, k.log, k.hooks = opts.Clock, opts.Rand, opts.Logger, opts.Hooks
	k.structured, k.meta = opts.StructuredCodec, opts.MetadataCodec
	if k.clock == nil {
		k.clock = systemClock{}
	}
	if k.rand == nil {
		k.rand = systemRand{}
	}
	if k.log == nil {
		k.log = NopLogger{}
	}
	if k.hooks == nil {
		k.hooks = NopHooks{}
	}
	if k.structured == nil {
		k.structured = codec.JSON[any]{}
	}
	if k.meta == nil {
		k.meta = codec.JSON[any]{}
	}

	if opts.GenStore != nil {
		k.gen = opts.GenStore
	} else {
		k.gen = genstore.NewLocal(defaultSweep, defaultGenRetention)
		k.ownedGen = true
	}

	if opts.Scheduler != nil {
		k.sched = opts.Scheduler
	} else {
		k.ownedPool = scheduler.NewPool(scheduler.PoolOptions{OnError: k.taskFailed})
		k.sched = k.ownedPool
	}
	return k, nil
}

// Config returns the effective configuration.
func (k *KV) Config() Config { return k.cfg }

func (k *KV) taskFailed(name string, err error) {
	k.log.Error("edgekv: deferred task failed", Fields{"task": name, "err": err})
}

func (k *KV) schedule(ctx context.Context, name string, t scheduler.Task) {
	s := k.sched
	if o, ok := scheduler.FromContext(ctx); ok {
		s = o
	}
	s.Schedule(name, t)
}

// Close drains the owned scheduler, then releases the gen store and the edge provider.
func (k *KV) Close(ctx context.Context) error {
	var errs []error
	if k.ownedPool != nil {
		if err := k.ownedPool.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain scheduler: %w", err))
		}
	}
	if k.ownedGen {
		_ = k.gen.Close(ctx)
	}
	if err := k.edge.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close edge: %w", err))
	}
	return errors.Join(errs...)
}
