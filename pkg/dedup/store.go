package dedup

import (
	"encoding/json"
	"fmt"

	"github.com/BarnBuilder412/smsync/pkg/state"
)

// DefaultCap is the dedup cache capacity. Older signatures belong to older,
// already-synced messages that have left the fetch window, so a small bound
// is enough.
const DefaultCap = 400

// Store is the in-memory working copy of the persisted signature cache.
//
// Insertion order is preserved; when the capacity is exceeded the
// oldest-inserted signatures are evicted first. The store itself does not
// persist anything: callers obtain the encoded payload via Encode and write
// it through the state store, so the cache can be committed atomically with
// the sync cursor.
//
// Not safe for concurrent use; the sync cycle is its only mutator.
type Store struct {
	sigs []string
	seen map[string]struct{}
	cap  int
}

// Load reads the persisted cache from st. A missing or corrupt value yields
// an empty cache rather than an error; the pipeline is self-healing with
// respect to its own state.
func Load(st state.Store, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCap
	}

	s := &Store{
		sigs: make([]string, 0, capacity),
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}

	raw, ok, err := st.Get(state.KeyDedupCache)
	if err != nil {
		return nil, fmt.Errorf("reading dedup cache: %w", err)
	}
	if !ok {
		return s, nil
	}

	var sigs []string
	if err := json.Unmarshal([]byte(raw), &sigs); err != nil {
		// Corrupt persisted state is treated as absent.
		return s, nil
	}
	for _, sig := range sigs {
		s.Insert(sig)
	}
	return s, nil
}

// Contains reports whether sig has already been synchronized.
func (s *Store) Contains(sig string) bool {
	_, ok := s.seen[sig]
	return ok
}

// Insert appends sig, evicting from the front when the capacity is exceeded.
// Inserting a signature already present is a no-op.
func (s *Store) Insert(sig string) {
	if s.Contains(sig) {
		return
	}

	s.sigs = append(s.sigs, sig)
	s.seen[sig] = struct{}{}

	for len(s.sigs) > s.cap {
		evicted := s.sigs[0]
		s.sigs = s.sigs[1:]
		delete(s.seen, evicted)
	}
}

// Encode returns the JSON payload to persist under state.KeyDedupCache.
func (s *Store) Encode() (string, error) {
	raw, err := json.Marshal(s.sigs)
	if err != nil {
		return "", fmt.Errorf("encoding dedup cache: %w", err)
	}
	return string(raw), nil
}

// Len returns the number of cached signatures.
func (s *Store) Len() int {
	return len(s.sigs)
}
