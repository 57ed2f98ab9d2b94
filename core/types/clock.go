package types

// Height is an on-chain block height. Epoch boundaries, lease expiry for
// on-chain-anchored flows, and stake unlocks are all expressed in heights
// rather than wall-clock time so they stay deterministic across replays.
type Height uint64

// UnixMillis is a millisecond-precision wall-clock timestamp, used for
// off-chain bookkeeping (job TTLs, heartbeat staleness, lease expiry) where
// sub-block granularity matters.
type UnixMillis int64

// Add returns the timestamp advanced by the given number of milliseconds.
func (t UnixMillis) Add(ms int64) UnixMillis { return t + UnixMillis(ms) }

// Before reports whether t occurs strictly before other.
func (t UnixMillis) Before(other UnixMillis) bool { return t < other }

// Sub returns t-other in milliseconds.
func (t UnixMillis) Sub(other UnixMillis) int64 { return int64(t) - int64(other) }
