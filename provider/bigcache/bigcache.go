// Package bigcache keeps edge entries in process with allegro/bigcache.
//
// BigCache evicts by a single LifeWindow instead of per-entry TTLs. A write
// whose TTL is shorter than LifeWindow is rejected (ok=false) rather than
// kept past its deadline; non-expiring writes always qualify.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/edgekv/provider"
)

var ErrNoLifeWindow = errors.New("bigcache provider: life window must be positive")

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
}

type Provider struct {
	cache *bc.BigCache
	life  time.Duration
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, ErrNoLifeWindow
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	conf.HardMaxCacheSize = max(cfg.HardMaxCacheSizeMB, 0)

	cache, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{cache: cache, life: cfg.LifeWindow}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.cache.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl > 0 && ttl < p.life {
		return false, nil
	}
	if err := p.cache.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.cache.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Len reports the number of live entries.
func (p *Provider) Len() int { return p.cache.Len() }

func (p *Provider) Close(context.Context) error { return p.cache.Close() }
