// Package state provides the durable key-value store backing the sync
// pipeline: enabled flag, sync cursor, baseline marker, and dedup cache.
//
// All keys are owned exclusively by this subsystem. Readers must treat
// malformed values as absent; the store itself never validates them.
package state

// Keys owned by the sync pipeline.
const (
	KeyEnabled    = "sync.enabled"
	KeyCursor     = "sync.cursor"
	KeyBaseline   = "sync.baseline"
	KeyDedupCache = "dedup.cache"
)

// Store is a small durable key-value store.
//
// SetMany must apply all writes atomically: either every key is durably
// visible or none is. The baseline marker and the cursor+cache updates
// depend on this.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)
	// Set writes a single key.
	Set(key, value string) error
	// SetMany writes all keys in one atomic unit.
	SetMany(values map[string]string) error
	Close() error
}
