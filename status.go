package edgekv

// CacheStatus tags every read with where its answer came from.
type CacheStatus string

const (
	// StatusMiss: fetched from the origin.
	StatusMiss CacheStatus = "MISS"
	// StatusHit: served from the edge, no refresh scheduled.
	StatusHit CacheStatus = "HIT"
	// StatusRevalidated: served from the edge and a background refresh was scheduled.
	StatusRevalidated CacheStatus = "REVALIDATED"
)

func (s CacheStatus) String() string { return string(s) }
