// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package centroid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

// Manager owns the persisted centroid set. All writes go through it and are
// serialized, so concurrent feedback never computes an update from a stale base.
type Manager struct {
	store     storage.CentroidStore
	adjuster  *Adjuster
	dimension int
	logger    *slog.Logger

	mu         sync.Mutex // serializes read-adjust-persist
	generation atomic.Uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger.
// Default is slog.Default().
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
	}
}

// WithDimension makes Seed reject centroids of any other width.
// Default is 0, which accepts any consistent width.
func WithDimension(dim int) ManagerOption {
	return func(m *Manager) {
		if dim < 0 {
			dim = 0
		}
		m.dimension = dim
	}
}

// NewManager creates a manager persisting to store.
func NewManager(store storage.CentroidStore, adjuster *Adjuster, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if adjuster == nil {
		return nil, ErrAdjusterRequired
	}
	m := &Manager{
		store:    store,
		adjuster: adjuster,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "centroids")
	return m, nil
}

// Generation returns the number of centroid sets written through this manager.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

// Snapshot returns a private copy of the current centroid set.
// Returns ErrNoCentroids if none has been stored.
func (m *Manager) Snapshot(ctx context.Context) (core.CentroidSet, error) {
	cs, err := m.store.GetCentroids(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load centroids: %w", err)
	}
	if len(cs) == 0 {
		return nil, ErrNoCentroids
	}
	return cs.Clone(), nil
}

// Seed replaces the stored set with a normalized copy of centroids.
func (m *Manager) Seed(ctx context.Context, centroids core.CentroidSet) (core.CentroidSet, error) {
	if err := core.ValidateCentroidSet(centroids, m.dimension); err != nil {
		return nil, err
	}
	seeded := make(core.CentroidSet, len(centroids))
	for level, vec := range centroids {
		if Magnitude(vec) == 0 {
			return nil, fmt.Errorf("centroid %d: %w: zero vector has no direction", level, core.ErrInvalidVector)
		}
		seeded[level] = Normalize(vec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetCentroids(ctx, seeded); err != nil {
		return nil, fmt.Errorf("failed to store centroids: %w", err)
	}
	gen := m.generation.Add(1)
	m.logger.Info("centroids seeded", "levels", len(seeded), "dimension", seeded.Dimension(), "generation", gen)
	return seeded.Clone(), nil
}

// Update is the outcome of applying one feedback event.
type Update struct {
	Centroids  core.CentroidSet
	Adjustment *Adjustment
	Generation uint64
}

// ApplyFeedback moves the centroids for a vector the reviewer corrected from
// observed to corrected and persists the result with a single store call.
// Nothing is written if no centroid moved.
func (m *Manager) ApplyFeedback(ctx context.Context, vector core.Vector, observed, corrected core.Level) (*Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.GetCentroids(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load centroids: %w", err)
	}
	if len(current) == 0 {
		return nil, ErrNoCentroids
	}

	updated, adj, err := m.adjuster.Adjust(current, vector, observed, corrected)
	if err != nil {
		return nil, err
	}
	if !adj.Changed() {
		m.logger.Warn("feedback moved no centroid", "observed", observed, "corrected", corrected)
		return &Update{Centroids: current.Clone(), Adjustment: adj, Generation: m.generation.Load()}, nil
	}

	if err := m.store.SetCentroids(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to store centroids: %w", err)
	}
	gen := m.generation.Add(1)

	m.logger.Debug("centroids adjusted",
		"observed", observed,
		"corrected", corrected,
		"attracted", adj.Attracted,
		"unlearned", adj.Unlearned,
		"repelled", len(adj.Repelled),
		"generation", gen)

	return &Update{Centroids: updated.Clone(), Adjustment: adj, Generation: gen}, nil
}
