package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts Go duration strings ("30s") or plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

func (d Duration) DurationValue() time.Duration { return time.Duration(d) }

// ServerConfig holds process-wide settings; it is squashed into the top level
// of the TOML file.
type ServerConfig struct {
	ListenAddr      string   `mapstructure:"ListenAddr"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
}

// CacheConfig maps onto edgekv.Config plus the engine's scheduler knobs.
type CacheConfig struct {
	Space               string   `mapstructure:"Space"`
	FreshnessWindow     Duration `mapstructure:"FreshnessWindow"`
	RefreshGrowthRate   float64  `mapstructure:"RefreshGrowthRate"`
	OriginCacheTTL      Duration `mapstructure:"OriginCacheTTL"`
	EdgeTTL             Duration `mapstructure:"EdgeTTL"`
	StructuredCodec     string   `mapstructure:"StructuredCodec"`
	MetadataCodec       string   `mapstructure:"MetadataCodec"`
	MaxValueSize        int      `mapstructure:"MaxValueSize"`
	Workers             int      `mapstructure:"Workers"`
	QueueSize           int      `mapstructure:"QueueSize"`
	TaskTimeout         Duration `mapstructure:"TaskTimeout"`
	DisableRefreshDedup bool     `mapstructure:"DisableRefreshDedup"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"Addr"`
	Username string `mapstructure:"Username"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// EdgeConfig selects the edge cache backend.
type EdgeConfig struct {
	Type string `mapstructure:"Type"`

	RistrettoMaxCost     int64 `mapstructure:"RistrettoMaxCost"`
	RistrettoNumCounters int64 `mapstructure:"RistrettoNumCounters"`

	BigcacheLifeWindow Duration `mapstructure:"BigcacheLifeWindow"`
	BigcacheMaxSizeMB  int      `mapstructure:"BigcacheMaxSizeMB"`

	Redis       RedisConfig `mapstructure:"Redis"`
	RedisPrefix string      `mapstructure:"RedisPrefix"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"Endpoint"`
	Bucket    string `mapstructure:"Bucket"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	UseSSL    bool   `mapstructure:"UseSSL"`
	Prefix    string `mapstructure:"Prefix"`
}

// OriginConfig selects the authoritative store.
type OriginConfig struct {
	Type           string      `mapstructure:"Type"`
	Redis          RedisConfig `mapstructure:"Redis"`
	RedisNamespace string      `mapstructure:"RedisNamespace"`
	S3             S3Config    `mapstructure:"S3"`
}

// GenStoreConfig selects where per-key generations live.
type GenStoreConfig struct {
	Type   string      `mapstructure:"Type"`
	Redis  RedisConfig `mapstructure:"Redis"`
	Prefix string      `mapstructure:"Prefix"`
	TTL    Duration    `mapstructure:"TTL"`
}

// Config mirrors the TOML file.
type Config struct {
	Server   ServerConfig   `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:"Cache"`
	Edge     EdgeConfig     `mapstructure:"Edge"`
	Origin   OriginConfig   `mapstructure:"Origin"`
	GenStore GenStoreConfig `mapstructure:"GenStore"`
}
