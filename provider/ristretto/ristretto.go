// Package ristretto keeps edge entries in process with dgraph-io/ristretto.
//
// Ristretto admits writes probabilistically, so Set may report ok=false. An
// accepted write becomes visible only after its buffers drain unless
// SyncWrites is set.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/edgekv/provider"
)

var ErrInvalidConfig = errors.New("ristretto provider: counters, cost and buffer items must be positive")

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// MaxItemBytes rejects envelopes larger than this; 0 disables the check.
	MaxItemBytes int
	// SyncWrites waits for each admitted write so the next Get observes it.
	SyncWrites bool
}

type Provider struct {
	cache   *rc.Cache
	maxItem int
	sync    bool
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, ErrInvalidConfig
	}
	cache, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{cache: cache, maxItem: cfg.MaxItemBytes, sync: cfg.SyncWrites}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := p.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	if b, isBytes := v.([]byte); isBytes && b != nil {
		return b, true, nil
	}
	// someone else's value under our key; drop it
	p.cache.Del(key)
	return nil, false, nil
}

// Set charges the envelope length when cost is not given.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if p.maxItem > 0 && len(value) > p.maxItem {
		return false, nil
	}
	if cost <= 0 {
		cost = int64(len(value))
	}
	admitted := p.cache.SetWithTTL(key, value, cost, max(ttl, 0))
	if admitted && p.sync {
		p.cache.Wait()
	}
	return admitted, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.cache.Del(key)
	if p.sync {
		p.cache.Wait()
	}
	return nil
}

// Wait blocks until buffered writes are applied.
func (p *Provider) Wait() { p.cache.Wait() }

func (p *Provider) Close(context.Context) error {
	p.cache.Wait()
	p.cache.Close()
	return nil
}

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.cache.Metrics }
