package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

// CentroidStore implements storage.CentroidStore for BadgerDB.
type CentroidStore struct {
	backend *Backend
}

var _ storage.CentroidStore = (*CentroidStore)(nil)

// NewCentroidStore creates a new CentroidStore.
func NewCentroidStore(backend *Backend) *CentroidStore {
	return &CentroidStore{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database.
func (s *CentroidStore) Close() error {
	return nil
}

// GetCentroids returns the stored centroid set.
// Returns nil, nil if no set has been stored.
func (s *CentroidStore) GetCentroids(ctx context.Context) (core.CentroidSet, error) {
	var centroids core.CentroidSet
	err := s.backend.read(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeCentroidKey())
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			centroids, unmarshalErr = storage.UnmarshalCentroidSet(val)
			return unmarshalErr
		})
	})
	if err != nil {
		return nil, err
	}
	return centroids, nil
}

// SetCentroids replaces the stored centroid set.
func (s *CentroidStore) SetCentroids(ctx context.Context, centroids core.CentroidSet) error {
	value, err := storage.MarshalCentroidSet(centroids)
	if err != nil {
		return err
	}
	return s.backend.write(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeCentroidKey(), value)
	})
}
