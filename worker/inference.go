package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/poiesic/leveler/telemetry"
)

// Classify labels vector against the current centroid snapshot.
// With no centroids stored the default level is returned as degraded.
func (w *Worker) Classify(ctx context.Context, id core.ID, vector core.Vector) (core.Classification, error) {
	centroids, err := w.manager.Snapshot(ctx)
	if err != nil && !errors.Is(err, centroid.ErrNoCentroids) {
		return core.Classification{}, err
	}

	level, matched := w.classifier.Classify(vector, centroids)
	return core.Classification{
		RecordID:  id,
		Level:     level,
		Degraded:  !matched,
		DecidedAt: time.Now().UTC(),
	}, nil
}

// handleInference classifies a completed inference job and hands the result
// to the write pool without waiting for it.
func (w *Worker) handleInference(ctx context.Context, msg []byte) error {
	job, err := storage.DecodeInferenceJob(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	if err := core.ValidateInferenceJob(job, w.dimension); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	if job.Status == core.JobStatusFailed {
		return fmt.Errorf("%w: %s", ErrJobFailed, job.JobID)
	}

	result, err := w.Classify(ctx, job.RecordID(), job.Vector)
	if err != nil {
		return err
	}
	w.classified.Add(1)
	if result.Degraded {
		w.degraded.Add(1)
		w.logger.Warn("no centroid matched, using default level", "job_id", job.JobID, "level", result.Level)
	} else {
		w.logger.Debug("job classified", "job_id", job.JobID, "record_id", result.RecordID, "level", result.Level)
	}

	w.sink.Record(ctx, telemetry.Point{
		ID:     result.RecordID,
		Name:   job.JobID,
		Type:   telemetry.TypePost,
		Level:  result.Level,
		Vector: job.Vector,
		Time:   result.DecidedAt,
	})

	w.storeClassification(job, result)
	return nil
}

// storeClassification writes the level to the record store and the point to
// the index. The writes are independent; either may fail alone.
func (w *Worker) storeClassification(job *core.InferenceJob, result core.Classification) {
	attrs := []any{"job_id", job.JobID, "record_id", result.RecordID, "level", result.Level}

	w.submit("level", attrs, func(ctx context.Context) error {
		err := w.levels.SetLevel(ctx, result.RecordID, result.Level)
		if errors.Is(err, storage.ErrNotFound) {
			// the record table is not ours to grow
			w.logger.Warn("record has no level row, level not stored", attrs...)
			return nil
		}
		return err
	})

	payload := map[string]any{
		storage.PayloadLevel: result.Level,
		storage.PayloadType:  storage.PointTypePost,
		storage.PayloadJobID: job.JobID,
	}
	w.submit("index", attrs, func(ctx context.Context) error {
		return w.index.Upsert(ctx, result.RecordID, job.Vector, payload)
	})
}
