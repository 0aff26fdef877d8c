package badger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

// VectorIndex implements storage.VectorIndex for BadgerDB.
// Points are scanned in ID order; the cursor is the decimal ID of the next point.
// Only the level, type and job_id payload fields are stored.
type VectorIndex struct {
	backend *Backend
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates a new VectorIndex.
func NewVectorIndex(backend *Backend) *VectorIndex {
	return &VectorIndex{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database.
func (x *VectorIndex) Close() error {
	return nil
}

// Upsert stores vector and payload under id.
func (x *VectorIndex) Upsert(ctx context.Context, id core.ID, vector core.Vector, payload map[string]any) error {
	value := storage.MarshalPoint(storage.NewPoint(vector, payload))
	return x.backend.write(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeIndexPointKey(id), value)
	})
}

// Retrieve returns the points that exist among ids, in the order requested.
func (x *VectorIndex) Retrieve(ctx context.Context, ids []core.ID, withVector bool) ([]*core.Record, error) {
	records := make([]*core.Record, 0, len(ids))
	err := x.backend.read(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeIndexPointKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			record, err := readRecord(item, id, withVector)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Scroll returns up to pageSize points starting at cursor.
func (x *VectorIndex) Scroll(ctx context.Context, pageSize int, cursor storage.Cursor) ([]*core.Record, storage.Cursor, error) {
	if pageSize <= 0 {
		return nil, "", fmt.Errorf("%w: page size %d", storage.ErrInvalidQuery, pageSize)
	}
	start := makeIndexPointKey(0)
	if cursor != "" {
		n, err := strconv.ParseUint(string(cursor), 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: cursor %q", storage.ErrInvalidQuery, cursor)
		}
		start = makeIndexPointKey(core.ID(n))
	}

	var records []*core.Record
	var next storage.Cursor
	err := x.backend.read(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPointPrefix)
		opts.PrefetchSize = pageSize
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(start); iter.Valid(); iter.Next() {
			item := iter.Item()
			id, err := idFromKey(item.Key(), len(indexPointPrefix))
			if err != nil {
				return err
			}
			if len(records) == pageSize {
				next = storage.Cursor(strconv.FormatUint(uint64(id), 10))
				return nil
			}
			record, err := readRecord(item, id, true)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return records, next, nil
}

// SetPayload merges fields into the payload of id.
func (x *VectorIndex) SetPayload(ctx context.Context, id core.ID, fields map[string]any) error {
	return x.backend.write(ctx, func(tx *badger.Txn) error {
		key := makeIndexPointKey(id)
		item, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: point %d", storage.ErrNotFound, id)
			}
			return err
		}

		var point *core.Point
		err = item.Value(func(val []byte) error {
			var unmarshalErr error
			point, unmarshalErr = storage.UnmarshalPoint(val)
			return unmarshalErr
		})
		if err != nil {
			return err
		}

		storage.ApplyPayload(point, fields)
		return tx.Set(key, storage.MarshalPoint(point))
	})
}

// Count returns the number of stored points.
func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	count := 0
	err := x.backend.read(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPointPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// readRecord decodes an index point into a record.
func readRecord(item *badger.Item, id core.ID, withVector bool) (*core.Record, error) {
	record := &core.Record{Id: id}
	err := item.Value(func(val []byte) error {
		point, err := storage.UnmarshalPoint(val)
		if err != nil {
			return err
		}
		if withVector {
			record.Vector = point.Vector
		}
		record.Level, record.Labeled = point.Level, point.Labeled
		record.Type = point.Type
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
