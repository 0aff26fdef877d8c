package storage

import (
	"context"
	"time"

	"github.com/poiesic/leveler/core"
)

// CentroidStore persists the complete centroid set under a single key.
type CentroidStore interface {
	// GetCentroids returns the stored centroid set.
	// Returns nil and no error if nothing has been stored yet.
	GetCentroids(ctx context.Context) (core.CentroidSet, error)

	// SetCentroids replaces the stored set in a single write.
	SetCentroids(ctx context.Context, centroids core.CentroidSet) error

	Close() error
}

// JobQueue is a named FIFO of JSON messages.
type JobQueue interface {
	// Pop blocks for up to timeout waiting for a message on queue.
	// Returns nil and no error if the timeout elapsed without a message.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Push appends msg to the tail of queue.
	Push(ctx context.Context, queue string, msg []byte) error

	Close() error
}

// Cursor is an opaque continuation token for VectorIndex.Scroll.
// The empty cursor starts a scan; an empty next cursor ends it.
type Cursor string

// VectorIndex holds classified embeddings keyed by record ID.
type VectorIndex interface {
	// Upsert stores vector and payload under id, replacing any existing point.
	Upsert(ctx context.Context, id core.ID, vector core.Vector, payload map[string]any) error

	// Retrieve returns the records that exist among ids.
	// Missing ids are skipped. Vectors are only populated if withVector is set.
	Retrieve(ctx context.Context, ids []core.ID, withVector bool) ([]*core.Record, error)

	// Scroll returns up to pageSize records starting at cursor, in ascending
	// ID order, with vectors populated, and the cursor for the next page.
	Scroll(ctx context.Context, pageSize int, cursor Cursor) ([]*core.Record, Cursor, error)

	// SetPayload merges fields into the payload of id.
	// Returns ErrNotFound if the point does not exist.
	SetPayload(ctx context.Context, id core.ID, fields map[string]any) error

	// Count returns the number of stored points.
	Count(ctx context.Context) (int, error)

	Close() error
}

// LevelRepository is the relational record store holding the current level of each record.
type LevelRepository interface {
	// GetLevel returns the stored level of id.
	// The boolean is false if the record has no level.
	GetLevel(ctx context.Context, id core.ID) (core.Level, bool, error)

	// SetLevel stores level for id, creating the row if needed.
	SetLevel(ctx context.Context, id core.ID, level core.Level) error

	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn carries the transaction; repository calls
	// made with it join the transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	Close() error
}

// Payload keys written to the vector index.
const (
	PayloadLevel = "level"
	PayloadType  = "type"
	PayloadJobID = "job_id"
)

// Point types stored in the vector index.
const (
	PointTypePost     = "post"
	PointTypeCentroid = "centroid"
)
