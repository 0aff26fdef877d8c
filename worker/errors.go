package worker

import (
	"errors"

	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

var (
	// ErrQueueRequired is returned when a worker is created without a job queue.
	ErrQueueRequired = errors.New("job queue is required")

	// ErrManagerRequired is returned when a worker is created without a centroid manager.
	ErrManagerRequired = errors.New("centroid manager is required")

	// ErrClassifierRequired is returned when a worker is created without a classifier.
	ErrClassifierRequired = errors.New("classifier is required")

	// ErrIndexRequired is returned when a worker is created without a vector index.
	ErrIndexRequired = errors.New("vector index is required")

	// ErrLevelRepositoryRequired is returned when a worker is created without a level repository.
	ErrLevelRepositoryRequired = errors.New("level repository is required")

	// ErrMalformedJob indicates a job that cannot be parsed or validated.
	ErrMalformedJob = errors.New("malformed job")

	// ErrRecordNotFound indicates feedback for a record missing from the vector index.
	ErrRecordNotFound = errors.New("record not found in index")

	// ErrJobFailed indicates an inference job the provider reported as failed.
	ErrJobFailed = errors.New("inference job failed")

	// ErrInvalidMaxAttempts is returned when RetryWithBackoff is called with maxAttempts <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// isDroppable reports whether err means the job can never succeed.
// Such jobs are dropped without backoff; everything else is treated as transient.
func isDroppable(err error) bool {
	for _, target := range []error{
		ErrMalformedJob,
		ErrRecordNotFound,
		ErrJobFailed,
		storage.ErrSerializationFailed,
		centroid.ErrNoCentroids,
		core.ErrInvalidJob,
		core.ErrInvalidVector,
		core.ErrInvalidLevel,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
