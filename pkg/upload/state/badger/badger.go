// Package badger provides a BadgerDB-backed snapshot store. Snapshots
// survive process restarts, which is what lets an interrupted capture resume
// its transfer instead of re-uploading parts it already confirmed.
package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/evidentia/custody/pkg/upload/state"
)

// Store persists snapshots in a BadgerDB database.
type Store struct {
	db *badgerdb.DB
}

var _ state.Store = (*Store)(nil)

// Open opens (or creates) the database at dir and returns a store backed by
// it. The caller owns the store and must Close it.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).
		WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database at %s: %w", dir, err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open database. Used when the database is shared
// with other components.
func NewWithDB(db *badgerdb.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes or replaces the snapshot for its capture.
func (s *Store) Save(snapshot *state.Snapshot) error {
	data, err := state.Encode(snapshot)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(state.Key(snapshot.CaptureID), data); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
}

// Load returns the snapshot for the capture, or state.ErrNotFound.
func (s *Store) Load(captureID string) (*state.Snapshot, error) {
	var snapshot *state.Snapshot

	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(state.Key(captureID))
		if err == badgerdb.ErrKeyNotFound {
			return state.ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			decoded, decErr := state.Decode(val)
			if decErr != nil {
				return decErr
			}
			snapshot = decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Clear removes the snapshot for the capture. Clearing a missing snapshot
// is not an error.
func (s *Store) Clear(captureID string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(state.Key(captureID))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
