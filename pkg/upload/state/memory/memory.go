// Package memory provides an in-memory snapshot store, used in tests and
// for ephemeral captures where restart resumability is not needed.
package memory

import (
	"sync"

	"github.com/evidentia/custody/pkg/upload/state"
)

// Store is an in-memory state.Store. The zero value is not usable; use New.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*state.Snapshot
}

var _ state.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{snapshots: make(map[string]*state.Snapshot)}
}

// Save stores a deep copy of the snapshot so later mutations by the caller
// do not leak into the store.
func (s *Store) Save(snapshot *state.Snapshot) error {
	clone := *snapshot
	clone.Parts = append([]state.Part(nil), snapshot.Parts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.CaptureID] = &clone
	return nil
}

// Load returns a copy of the stored snapshot, or state.ErrNotFound.
func (s *Store) Load(captureID string) (*state.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[captureID]
	if !ok {
		return nil, state.ErrNotFound
	}

	clone := *snapshot
	clone.Parts = append([]state.Part(nil), snapshot.Parts...)
	return &clone, nil
}

// Clear removes the snapshot for the capture.
func (s *Store) Clear(captureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, captureID)
	return nil
}
