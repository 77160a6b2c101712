package config

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/edgekv"
	"github.com/unkn0wn-root/edgekv/codec"
)

const (
	supportedEdgeTypes   = "ristretto|bigcache|redis"
	supportedOriginTypes = "memory|redis|s3"
	supportedGenTypes    = "local|redis"
)

// Validate reports the first semantic problem as a FieldError.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Edge.validate(); err != nil {
		return err
	}
	if err := c.Origin.validate(); err != nil {
		return err
	}
	return c.GenStore.validate()
}

func (s ServerConfig) validate() error {
	if s.ListenAddr == "" {
		return newFieldError("ListenAddr", "must not be empty")
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return newFieldError("LogLevel", err.Error())
	}
	if s.LogFilePath != "" && (s.LogMaxSize <= 0 || s.LogMaxBackups < 0) {
		return newFieldError("LogMaxSize", "must be positive when LogFilePath is set")
	}
	return nil
}

func (c CacheConfig) validate() error {
	if c.FreshnessWindow.DurationValue() < 0 {
		return newFieldError("Cache.FreshnessWindow", "must not be negative")
	}
	if math.IsNaN(c.RefreshGrowthRate) || c.RefreshGrowthRate <= 1 {
		return newFieldError("Cache.RefreshGrowthRate", "must be greater than 1")
	}
	if c.OriginCacheTTL < c.FreshnessWindow {
		return newFieldError("Cache.OriginCacheTTL", "must be at least Cache.FreshnessWindow")
	}
	if c.EdgeTTL.DurationValue() < 0 {
		return newFieldError("Cache.EdgeTTL", "must not be negative")
	}
	if _, err := codec.ByName(c.StructuredCodec); err != nil {
		return newFieldError("Cache.StructuredCodec", "must be one of "+codec.Names)
	}
	if _, err := codec.ByName(c.MetadataCodec); err != nil {
		return newFieldError("Cache.MetadataCodec", "must be one of "+codec.Names)
	}
	if c.MaxValueSize < 0 {
		return newFieldError("Cache.MaxValueSize", "must not be negative")
	}
	if c.Workers <= 0 {
		return newFieldError("Cache.Workers", "must be positive")
	}
	if c.QueueSize < 0 {
		return newFieldError("Cache.QueueSize", "must not be negative")
	}
	if c.TaskTimeout.DurationValue() < 0 {
		return newFieldError("Cache.TaskTimeout", "must not be negative")
	}
	return nil
}

func (e EdgeConfig) validate() error {
	switch e.Type {
	case "ristretto":
		if e.RistrettoMaxCost <= 0 || e.RistrettoNumCounters <= 0 {
			return newFieldError("Edge.RistrettoMaxCost", "cost and counters must be positive")
		}
	case "bigcache":
		if e.BigcacheLifeWindow.DurationValue() <= 0 {
			return newFieldError("Edge.BigcacheLifeWindow", "must be positive")
		}
		if e.BigcacheMaxSizeMB < 0 {
			return newFieldError("Edge.BigcacheMaxSizeMB", "must not be negative")
		}
	case "redis":
		if !e.Redis.Enabled() {
			return newFieldError("Edge.Redis.Addr", "required for redis edge")
		}
	default:
		return newFieldError("Edge.Type", "must be one of "+supportedEdgeTypes)
	}
	return nil
}

func (o OriginConfig) validate() error {
	switch o.Type {
	case "memory":
	case "redis":
		if !o.Redis.Enabled() {
			return newFieldError("Origin.Redis.Addr", "required for redis origin")
		}
	case "s3":
		if o.S3.Endpoint == "" {
			return newFieldError("Origin.S3.Endpoint", "required for s3 origin")
		}
		if o.S3.Bucket == "" {
			return newFieldError("Origin.S3.Bucket", "required for s3 origin")
		}
		if o.S3.AccessKey == "" || o.S3.SecretKey == "" {
			return newFieldError("Origin.S3.AccessKey", "credentials required for s3 origin")
		}
	default:
		return newFieldError("Origin.Type", "must be one of "+supportedOriginTypes)
	}
	return nil
}

func (g GenStoreConfig) validate() error {
	switch g.Type {
	case "local":
	case "redis":
		if !g.Redis.Enabled() {
			return newFieldError("GenStore.Redis.Addr", "required for redis generation store")
		}
	default:
		return newFieldError("GenStore.Type", "must be one of "+supportedGenTypes)
	}
	if g.TTL.DurationValue() < 0 {
		return newFieldError("GenStore.TTL", "must not be negative")
	}
	return nil
}

// Engine converts the cache section into the engine's Config.
func (c CacheConfig) Engine() edgekv.Config {
	return edgekv.Config{
		Space:             c.Space,
		FreshnessWindow:   c.FreshnessWindow.DurationValue(),
		RefreshGrowthRate: c.RefreshGrowthRate,
		OriginCacheTTL:    c.OriginCacheTTL.DurationValue(),
		EdgeTTL:           c.EdgeTTL.DurationValue(),
	}
}

// Timeout returns the per-task deadline for background work.
func (c CacheConfig) Timeout() time.Duration { return c.TaskTimeout.DurationValue() }
