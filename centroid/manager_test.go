package centroid

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poiesic/leveler/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory CentroidStore that detects overlapping read-modify-write cycles.
type memStore struct {
	mu      sync.Mutex
	data    core.CentroidSet
	getErr  error
	setErr  error
	sets    int
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *memStore) GetCentroids(ctx context.Context) (core.CentroidSet, error) {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		s.active.Add(-1)
		return nil, s.getErr
	}
	return s.data, nil
}

func (s *memStore) SetCentroids(ctx context.Context, cs core.CentroidSet) error {
	defer s.active.Add(-1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data = cs
	s.sets++
	return nil
}

func (s *memStore) Close() error { return nil }

// release balances a GetCentroids that was not followed by SetCentroids.
func (s *memStore) release() { s.active.Store(0) }

func newTestManager(t *testing.T, store *memStore, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(store, newTestAdjuster(t), opts...)
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(nil, newTestAdjuster(t))
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewManager(&memStore{}, nil)
	assert.ErrorIs(t, err, ErrAdjusterRequired)
}

func TestManager_SnapshotEmpty(t *testing.T) {
	m := newTestManager(t, &memStore{})

	_, err := m.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoCentroids)
}

func TestManager_SnapshotIsACopy(t *testing.T) {
	store := &memStore{data: core.CentroidSet{0: {1, 0}, 1: {0, 1}}}
	m := newTestManager(t, store)
	store.release()

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	store.release()

	snap[0][0] = 42
	delete(snap, 1)

	assert.Equal(t, float32(1), store.data[0][0])
	assert.True(t, store.data.Has(1))
}

func TestManager_Seed(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store, WithDimension(2))

	seeded, err := m.Seed(context.Background(), core.CentroidSet{0: {3, 4}, 1: {0, 2}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Generation())
	requireUnit(t, seeded)
	requireUnit(t, store.data)
	assert.InDelta(t, 0.6, float64(store.data[0][0]), 1e-6)
}

func TestManager_SeedRejectsInvalid(t *testing.T) {
	tests := []struct {
		name      string
		centroids core.CentroidSet
		wantErr   error
	}{
		{"empty", core.CentroidSet{}, core.ErrEmptyCentroidSet},
		{"wrong dimension", core.CentroidSet{0: {1, 0, 0}}, core.ErrDimensionMismatch},
		{"zero vector", core.CentroidSet{0: {1, 0}, 1: {0, 0}}, core.ErrInvalidVector},
		{"negative level", core.CentroidSet{-1: {1, 0}}, core.ErrInvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			m := newTestManager(t, store, WithDimension(2))

			_, err := m.Seed(context.Background(), tt.centroids)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.sets)
			assert.Zero(t, m.Generation())
		})
	}
}

func TestManager_ApplyFeedback(t *testing.T) {
	store := &memStore{data: core.CentroidSet{0: {1, 0}, 1: {0, 1}}}
	m := newTestManager(t, store)
	v := core.Vector{0.9, 0.1}

	update, err := m.ApplyFeedback(context.Background(), v, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), update.Generation)
	assert.True(t, update.Adjustment.Attracted)
	assert.True(t, update.Adjustment.Unlearned)
	assert.Equal(t, 1, store.sets)
	assert.Equal(t, update.Centroids, store.data)

	update.Centroids[0][0] = 42
	assert.NotEqual(t, float32(42), store.data[0][0], "returned set must not alias the stored one")
}

func TestManager_ApplyFeedbackNoChange(t *testing.T) {
	store := &memStore{data: core.CentroidSet{0: {1, 0}}}
	m := newTestManager(t, store)

	update, err := m.ApplyFeedback(context.Background(), core.Vector{0, 1}, 3, 3)
	require.NoError(t, err)
	assert.False(t, update.Adjustment.Changed())
	assert.Zero(t, store.sets)
	assert.Zero(t, update.Generation)
}

func TestManager_ApplyFeedbackErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("no centroids", func(t *testing.T) {
		m := newTestManager(t, &memStore{})
		_, err := m.ApplyFeedback(context.Background(), core.Vector{1, 0}, 0, 1)
		assert.ErrorIs(t, err, ErrNoCentroids)
	})

	t.Run("load failure", func(t *testing.T) {
		m := newTestManager(t, &memStore{getErr: boom})
		_, err := m.ApplyFeedback(context.Background(), core.Vector{1, 0}, 0, 1)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("store failure", func(t *testing.T) {
		store := &memStore{data: core.CentroidSet{0: {1, 0}, 1: {0, 1}}, setErr: boom}
		m := newTestManager(t, store)
		_, err := m.ApplyFeedback(context.Background(), core.Vector{1, 0}, 1, 0)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, m.Generation())
		assert.Equal(t, core.Vector{0, 1}, store.data[1])
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		m := newTestManager(t, &memStore{data: core.CentroidSet{0: {1, 0}}})
		_, err := m.ApplyFeedback(context.Background(), core.Vector{1, 0, 0}, 0, 0)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})
}

func TestManager_SerializesConcurrentFeedback(t *testing.T) {
	store := &memStore{data: core.CentroidSet{
		0: {1, 0, 0},
		1: {0, 1, 0},
		2: {0, 0, 1},
	}}
	m := newTestManager(t, store)

	const workers = 16
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			corrected := core.Level(i % 3)
			_, err := m.ApplyFeedback(context.Background(), core.Vector{0.5, 0.3, 0.2}, (corrected+1)%3, corrected)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, store.overlap.Load(), "read-adjust-persist cycles overlapped")
	assert.Equal(t, workers, store.sets)
	assert.Equal(t, uint64(workers), m.Generation())
	requireUnit(t, store.data)
}
