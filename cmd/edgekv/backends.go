package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/edgekv"
	"github.com/unkn0wn-root/edgekv/codec"
	"github.com/unkn0wn-root/edgekv/genstore"
	asynchook "github.com/unkn0wn-root/edgekv/hooks/async"
	sloghook "github.com/unkn0wn-root/edgekv/hooks/slog"
	"github.com/unkn0wn-root/edgekv/internal/config"
	kvlogrus "github.com/unkn0wn-root/edgekv/log/logrus"
	"github.com/unkn0wn-root/edgekv/origin"
	"github.com/unkn0wn-root/edgekv/origin/memory"
	originredis "github.com/unkn0wn-root/edgekv/origin/redis"
	origins3 "github.com/unkn0wn-root/edgekv/origin/s3"
	"github.com/unkn0wn-root/edgekv/provider"
	"github.com/unkn0wn-root/edgekv/provider/bigcache"
	edgeredis "github.com/unkn0wn-root/edgekv/provider/redis"
	"github.com/unkn0wn-root/edgekv/provider/ristretto"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

const (
	memorySweep      = time.Minute
	genSweep         = time.Hour
	hookWorkers      = 1
	hookQueue        = 4096
	refreshHookEvery = 100
)

type closer func(context.Context) error

// runtime holds the KV and everything that must be torn down after it.
type runtime struct {
	kv      *edgekv.KV
	pool    *scheduler.Pool
	hooks   *asynchook.Hooks
	closers []closer
}

// Close drains background tasks before closing the KV, so queued edge
// writes still have a live provider.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.pool != nil {
		if err := r.pool.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.kv != nil {
		if err := r.kv.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.hooks != nil {
		r.hooks.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newRedisClient(c config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	})
}

func clientCloser(c *goredis.Client) closer {
	return func(context.Context) error { return c.Close() }
}

func buildRuntime(cfg *config.Config, logger *logrus.Logger) (*runtime, error) {
	rt := &runtime{}
	fail := func(err error) (*runtime, error) {
		_ = rt.Close(context.Background())
		return nil, err
	}

	store, err := buildOrigin(cfg.Origin, rt)
	if err != nil {
		return fail(fmt.Errorf("origin: %w", err))
	}
	edge, err := buildEdge(cfg.Edge)
	if err != nil {
		return fail(fmt.Errorf("edge: %w", err))
	}
	gen := buildGenStore(cfg.GenStore, rt)
	structured, err := buildCodec(cfg.Cache.StructuredCodec, cfg.Cache.MaxValueSize)
	if err != nil {
		_ = edge.Close(context.Background())
		return fail(fmt.Errorf("structured codec: %w", err))
	}
	meta, err := buildCodec(cfg.Cache.MetadataCodec, 0)
	if err != nil {
		_ = edge.Close(context.Background())
		return fail(fmt.Errorf("metadata codec: %w", err))
	}

	entry := logger.WithField("component", "edgekv")
	rt.pool = scheduler.NewPool(scheduler.PoolOptions{
		Workers:     cfg.Cache.Workers,
		Queue:       cfg.Cache.QueueSize,
		TaskTimeout: cfg.Cache.Timeout(),
		OnError: func(name string, err error) {
			entry.WithError(err).WithField("task", name).Warn("deferred_task_failed")
		},
	})
	hookLog := slog.New(slog.NewJSONHandler(logger.Out, nil)).With("component", "edgekv.hooks")
	rt.hooks = asynchook.New(sloghook.New(hookLog, sloghook.Options{
		RefreshScheduledEvery: refreshHookEvery,
	}), hookWorkers, hookQueue)

	kv, err := edgekv.New(edgekv.Options{
		Config:              cfg.Cache.Engine(),
		Origin:              store,
		Edge:                edge,
		Scheduler:           rt.pool,
		Logger:              kvlogrus.LogrusLogger{E: entry},
		Hooks:               rt.hooks,
		GenStore:            gen,
		StructuredCodec:     structured,
		MetadataCodec:       meta,
		DisableRefreshDedup: cfg.Cache.DisableRefreshDedup,
	})
	if err != nil {
		_ = edge.Close(context.Background())
		return fail(err)
	}
	rt.kv = kv
	return rt, nil
}

func buildOrigin(c config.OriginConfig, rt *runtime) (origin.Store, error) {
	switch c.Type {
	case "redis":
		client := newRedisClient(c.Redis)
		rt.closers = append(rt.closers, clientCloser(client))
		return originredis.New(originredis.Config{Client: client, Namespace: c.RedisNamespace})
	case "s3":
		return origins3.New(origins3.Config{
			Endpoint:  c.S3.Endpoint,
			Bucket:    c.S3.Bucket,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			UseSSL:    c.S3.UseSSL,
			Prefix:    c.S3.Prefix,
		})
	case "memory":
		return memory.New(memorySweep), nil
	}
	return nil, fmt.Errorf("unknown origin type %q", c.Type)
}

func buildEdge(c config.EdgeConfig) (provider.Provider, error) {
	switch c.Type {
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: c.RistrettoNumCounters,
			MaxCost:     c.RistrettoMaxCost,
			BufferItems: 64,
		})
	case "bigcache":
		return bigcache.New(bigcache.Config{
			LifeWindow:         c.BigcacheLifeWindow.DurationValue(),
			HardMaxCacheSizeMB: c.BigcacheMaxSizeMB,
		})
	case "redis":
		return edgeredis.New(edgeredis.Config{
			Client:      newRedisClient(c.Redis),
			Prefix:      c.RedisPrefix,
			CloseClient: true,
		})
	}
	return nil, fmt.Errorf("unknown edge type %q", c.Type)
}

func buildGenStore(c config.GenStoreConfig, rt *runtime) genstore.GenStore {
	if c.Type == "redis" {
		client := newRedisClient(c.Redis)
		rt.closers = append(rt.closers, clientCloser(client))
		return genstore.NewRedis(client, genstore.RedisConfig{Prefix: c.Prefix, TTL: c.TTL.DurationValue()})
	}
	local := genstore.NewLocal(genSweep, c.TTL.DurationValue())
	rt.closers = append(rt.closers, local.Close)
	return local
}

func buildCodec(name string, maxDecode int) (codec.Codec[any], error) {
	c, err := codec.ByName(name)
	if err != nil {
		return nil, err
	}
	if maxDecode > 0 {
		c = codec.LimitCodec[any]{Inner: c, MaxDecode: maxDecode}
	}
	return c, nil
}
