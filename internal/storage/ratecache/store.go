// Package ratecache persists the rate snapshot document.
package ratecache

import (
	"sync"

	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/storage/docstore"
)

const snapshotDoc = "rates.json"

// Store reads and writes the whole rate snapshot. Writes are serialized;
// an absent document reads as an empty snapshot.
type Store struct {
	db *docstore.Store
	mu sync.Mutex
}

// New creates a snapshot store over db.
func New(db *docstore.Store) *Store {
	return &Store{db: db}
}

// Load returns the persisted snapshot, or an empty one if none exists yet.
func (s *Store) Load() (domain.RateSnapshot, error) {
	var snapshot domain.RateSnapshot
	ok, err := s.db.Read(snapshotDoc, &snapshot)
	if err != nil {
		return domain.RateSnapshot{}, err
	}
	if !ok || snapshot.Pairs == nil {
		snapshot.Pairs = make(map[string]domain.SnapshotEntry)
	}
	return snapshot, nil
}

// Save replaces the persisted snapshot wholesale.
func (s *Store) Save(snapshot domain.RateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Write(snapshotDoc, snapshot)
}
