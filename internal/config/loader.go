package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. EDGEKV_ORIGIN_S3_SECRETKEY.
const EnvPrefix = "EDGEKV"

// Load reads a TOML file, layers defaults and environment overrides under it,
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenAddr", ":8787")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("ShutdownTimeout", "15s")

	v.SetDefault("Cache.Space", "default")
	v.SetDefault("Cache.FreshnessWindow", "50s")
	v.SetDefault("Cache.RefreshGrowthRate", 1.28)
	v.SetDefault("Cache.OriginCacheTTL", 31_557_600)
	v.SetDefault("Cache.EdgeTTL", 0)
	v.SetDefault("Cache.StructuredCodec", "json")
	v.SetDefault("Cache.MetadataCodec", "json")
	v.SetDefault("Cache.MaxValueSize", 0)
	v.SetDefault("Cache.Workers", 4)
	v.SetDefault("Cache.QueueSize", 1024)
	v.SetDefault("Cache.TaskTimeout", "30s")
	v.SetDefault("Cache.DisableRefreshDedup", false)

	v.SetDefault("Edge.Type", "ristretto")
	v.SetDefault("Edge.RistrettoMaxCost", 256<<20)
	v.SetDefault("Edge.RistrettoNumCounters", 1_000_000)
	v.SetDefault("Edge.BigcacheLifeWindow", "24h")
	v.SetDefault("Edge.BigcacheMaxSizeMB", 0)
	v.SetDefault("Edge.RedisPrefix", "edgekv:edge:")
	setRedisDefaults(v, "Edge.Redis")

	v.SetDefault("Origin.Type", "memory")
	v.SetDefault("Origin.RedisNamespace", "edgekv:origin")
	setRedisDefaults(v, "Origin.Redis")
	v.SetDefault("Origin.S3.Endpoint", "")
	v.SetDefault("Origin.S3.Bucket", "")
	v.SetDefault("Origin.S3.AccessKey", "")
	v.SetDefault("Origin.S3.SecretKey", "")
	v.SetDefault("Origin.S3.UseSSL", false)
	v.SetDefault("Origin.S3.Prefix", "")

	v.SetDefault("GenStore.Type", "local")
	v.SetDefault("GenStore.Prefix", "edgekv:gen:")
	v.SetDefault("GenStore.TTL", "720h")
	setRedisDefaults(v, "GenStore.Redis")
}

// setRedisDefaults registers every redis key so env overrides reach Unmarshal.
func setRedisDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".Addr", "")
	v.SetDefault(prefix+".Username", "")
	v.SetDefault(prefix+".Password", "")
	v.SetDefault(prefix+".DB", 0)
}

func applyDefaults(cfg *Config) {
	cfg.Edge.Type = normalize(cfg.Edge.Type)
	cfg.Origin.Type = normalize(cfg.Origin.Type)
	cfg.GenStore.Type = normalize(cfg.GenStore.Type)
	cfg.Cache.StructuredCodec = normalize(cfg.Cache.StructuredCodec)
	cfg.Cache.MetadataCodec = normalize(cfg.Cache.MetadataCodec)
	cfg.Server.LogLevel = normalize(cfg.Server.LogLevel)
	if cfg.Server.ShutdownTimeout.DurationValue() <= 0 {
		cfg.Server.ShutdownTimeout = Duration(15 * time.Second)
	}
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("cannot parse duration: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type: %T", v)
		}
	}
}
