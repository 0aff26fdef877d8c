package worker

import (
	"context"
	"fmt"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/poiesic/leveler/telemetry"
)

// handleFeedback applies a reviewer correction to the centroids and
// schedules a sweep if anything moved.
func (w *Worker) handleFeedback(ctx context.Context, msg []byte) error {
	job, err := storage.DecodeFeedbackJob(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	if err := core.ValidateFeedbackJob(job); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	records, err := w.index.Retrieve(ctx, []core.ID{job.RecordID}, true)
	if err != nil {
		return fmt.Errorf("failed to retrieve record %d: %w", job.RecordID, err)
	}
	if len(records) == 0 || len(records[0].Vector) == 0 {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, job.RecordID)
	}
	record := records[0]

	observed, err := w.observedLevel(ctx, record)
	if err != nil {
		return err
	}

	w.logger.Info("feedback received",
		"record_id", job.RecordID,
		"observed", observed,
		"corrected", job.CorrectLevel)

	update, err := w.manager.ApplyFeedback(ctx, record.Vector, observed, job.CorrectLevel)
	if err != nil {
		return fmt.Errorf("failed to apply feedback for record %d: %w", job.RecordID, err)
	}
	if !update.Adjustment.Changed() {
		return nil
	}
	w.adjusted.Add(1)

	for _, level := range update.Centroids.Levels() {
		w.sink.Record(ctx, telemetry.CentroidPoint(level, update.Centroids[level], ""))
	}
	if w.scheduler != nil {
		w.scheduler.Trigger(update.Centroids)
	}
	return nil
}

// observedLevel returns the level the record currently has: the record
// store's if set, else the index payload's, else a fresh classification.
func (w *Worker) observedLevel(ctx context.Context, record *core.Record) (core.Level, error) {
	level, found, err := w.levels.GetLevel(ctx, record.Id)
	if err != nil {
		return 0, fmt.Errorf("failed to read level of record %d: %w", record.Id, err)
	}
	if found {
		return level, nil
	}
	if record.Labeled {
		return record.Level, nil
	}
	result, err := w.Classify(ctx, record.Id, record.Vector)
	if err != nil {
		return 0, err
	}
	return result.Level, nil
}
