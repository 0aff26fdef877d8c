package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

// LevelRepository implements storage.LevelRepository for BadgerDB.
type LevelRepository struct {
	backend *Backend
}

var _ storage.LevelRepository = (*LevelRepository)(nil)

// NewLevelRepository creates a new LevelRepository.
func NewLevelRepository(backend *Backend) *LevelRepository {
	return &LevelRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database.
func (r *LevelRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *LevelRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// GetLevel returns the stored level of id.
func (r *LevelRepository) GetLevel(ctx context.Context, id core.ID) (core.Level, bool, error) {
	var level core.Level
	found := false
	err := r.backend.read(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeLevelKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			level, err = storage.UnmarshalLevel(val)
			if err != nil {
				return fmt.Errorf("level of record %d: %w", id, err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, err
	}
	return level, found, nil
}

// SetLevel stores level for id.
func (r *LevelRepository) SetLevel(ctx context.Context, id core.ID, level core.Level) error {
	value := storage.MarshalLevel(level)
	return r.backend.write(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeLevelKey(id), value)
	})
}
