package keys

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultSpace is used when no cache space is configured.
const DefaultSpace = "default"

func space(s string) string {
	if s == "" {
		return DefaultSpace
	}
	return s
}

// Single returns the edge storage key for a logical key.
func Single(cacheSpace, key string) string {
	return "kv:" + space(cacheSpace) + ":" + key
}

// Canonical serializes a list query. Unset fields are omitted, so two
// queries map to the same string iff prefix, limit and cursor are all equal.
func Canonical(prefix string, limit int, cursor string) string {
	v := url.Values{}
	if prefix != "" {
		v.Set("prefix", prefix)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	return v.Encode() // sorted by field name
}

// List returns a bounded-length storage key for a canonical list query.
func List(cacheSpace, canonical string) string {
	prefix := "list:" + space(cacheSpace)
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%s:%x", prefix, sum)[:len(prefix)+1+32] // prefix + ":" + first 32 hex chars
}
