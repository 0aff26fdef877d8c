package badger

import "errors"

// Stores bundles the BadgerDB implementation of every collaborator over one backend.
type Stores struct {
	Backend   *Backend
	Centroids *CentroidStore
	Queue     *JobQueue
	Index     *VectorIndex
	Levels    *LevelRepository
}

// NewStores creates all collaborators over backend.
func NewStores(backend *Backend) *Stores {
	return &Stores{
		Backend:   backend,
		Centroids: NewCentroidStore(backend),
		Queue:     NewJobQueue(backend),
		Index:     NewVectorIndex(backend),
		Levels:    NewLevelRepository(backend),
	}
}

// Open opens the database at path and creates all collaborators over it.
func Open(path string, inMemory bool) (*Stores, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return NewStores(backend), nil
}

// Close releases the collaborators and closes the backend.
func (s *Stores) Close() error {
	return errors.Join(
		s.Queue.Close(),
		s.Centroids.Close(),
		s.Index.Close(),
		s.Levels.Close(),
		s.Backend.Close(),
	)
}
