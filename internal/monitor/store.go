package monitor

import "sync"

// Store keeps the most recent snapshot for readers outside the loop, such as
// the HTTP API and the metrics collector.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the stored snapshot.
func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.set = true
}

// Latest returns the stored snapshot and whether one was ever set.
func (s *Store) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.set
}
