package edgekv

import "time"

const (
	DefaultFreshnessWindow   = 50 * time.Second
	DefaultRefreshGrowthRate = 1.28
	// DefaultOriginCacheTTL is one Julian year.
	DefaultOriginCacheTTL = 31_557_600 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
