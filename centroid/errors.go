package centroid

import "errors"

var (
	// ErrNoCentroids indicates that no centroid set has been stored yet.
	ErrNoCentroids = errors.New("no centroids stored")

	// ErrStoreRequired indicates that a centroid store is required but was not provided.
	ErrStoreRequired = errors.New("centroid store is required")

	// ErrAdjusterRequired indicates that an adjuster is required but was not provided.
	ErrAdjusterRequired = errors.New("adjuster is required")

	// ErrInvalidConfig indicates an out-of-range adjustment parameter.
	ErrInvalidConfig = errors.New("invalid adjustment config")
)
