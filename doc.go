// Package edgekv is a read-through cache-aside layer that puts an ephemeral
// edge cache in front of a durable, eventually consistent key-value origin.
//
// Reads are served from the edge whenever an entry exists. Each hit draws
// against a refresh probability that grows with the entry's age:
//
//	p = RefreshGrowthRate ^ (now - createdAt - FreshnessWindow)   (seconds)
//
// Below the freshness window p is small; past it p quickly exceeds 1 and a
// refresh becomes certain. A winning draw schedules a background re-fetch
// through a scheduler.Scheduler and the reader still gets the cached value
// right away, so refreshes are spread across readers instead of all of them
// missing at once when a hard TTL runs out.
//
// Components:
//   - origin.Store: the durable store (memory, Redis, S3).
//   - provider.Provider: the edge byte store with TTLs (Redis, BigCache, Ristretto).
//   - scheduler.Scheduler: runs deferred refreshes and cache writes.
//   - genstore.GenStore: per-key write generations that fence background
//     writes against newer Put and Delete calls.
//
// Keys:
//
//	kv:<space>:<key>     - point entries
//	list:<space>:<hash>  - list pages (hash over prefix, limit and cursor)
package edgekv
