package edgekv

// Hooks are lightweight callbacks for high-signal events.
// Implementations must be cheap and non-blocking; they run on the read path.
type Hooks interface {
	// An edge entry was deleted on read.
	// reason ∈ {"corrupt", "query_mismatch", "origin_not_found"}
	SelfHeal(storageKey, reason string)

	// The edge cache failed; the read fell through to the origin.
	// op ∈ {"get", "set", "del"}
	EdgeUnavailable(storageKey, op string, err error)

	// Provider returned ok=false on Set (admission/eviction pressure).
	EdgeSetRejected(storageKey string, isList bool)

	// A background refresh was handed to the scheduler with probability p.
	RefreshScheduled(storageKey string, p float64)

	// A refresh did not write. reason ∈ {"in_flight", "gen_mismatch"}
	RefreshSkipped(storageKey, reason string)

	// GenStore snapshot or bump failed.
	GenStoreError(storageKey string, err error)
}

// NopHooks is the default.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) EdgeUnavailable(string, string, error) {}
func (NopHooks) EdgeSetRejected(string, bool)          {}
func (NopHooks) RefreshScheduled(string, float64)      {}
func (NopHooks) RefreshSkipped(string, string)         {}
func (NopHooks) GenStoreError(string, error)           {}
