package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/poiesic/leveler/sweep"
	"github.com/urfave/cli/v2"
)

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	w, err := engine.NewWorker()
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	defer w.Release()

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}

	stats := w.Stats()
	fmt.Fprintf(os.Stderr, "Classified: %d (%d degraded)\n", stats.Classified, stats.Degraded)
	fmt.Fprintf(os.Stderr, "Adjusted: %d\n", stats.Adjusted)
	fmt.Fprintf(os.Stderr, "Dropped: %d, failed: %d, requeued: %d\n", stats.Dropped, stats.Failed, stats.Requeued)
	fmt.Fprintf(os.Stderr, "Writes: %d applied, %d lost\n", stats.WritesApplied, stats.WritesFailed)
	return nil
}

func seedCommand(c *cli.Context) error {
	ctx := context.Background()

	centroids, err := loadCentroids(c.String("file"))
	if err != nil {
		return err
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	seeded, err := engine.Seed(ctx, centroids, c.Bool("index-centroids"))
	if seeded == nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Seeded %d levels (dimension %d)\n", len(seeded), seeded.Dimension())
	if err != nil {
		return fmt.Errorf("failed to index centroids: %w", err)
	}
	return nil
}

func sweepCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	centroids, err := engine.Manager().Snapshot(ctx)
	if err != nil {
		return err
	}

	tracker := sweep.NewProgressTracker(os.Stderr, c.Int("report-interval"))
	sweeper, err := engine.NewSweeper(sweep.WithProgress(tracker))
	if err != nil {
		return err
	}

	result, err := sweeper.Sweep(ctx, centroids)
	if result != nil {
		writeSweepResult(os.Stderr, result)
	}
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return nil
}

func classifyCommand(c *cli.Context) error {
	ctx := context.Background()

	vector, err := parseVector(c.String("vector"))
	if err != nil {
		return err
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	level, matched, err := engine.Classify(ctx, vector)
	if err != nil {
		return err
	}
	if matched {
		fmt.Println(level)
	} else {
		fmt.Printf("%d (default)\n", level)
	}
	return nil
}

func pushInferenceCommand(c *cli.Context) error {
	ctx := context.Background()

	job := &core.InferenceJob{
		JobID:  c.String("job-id"),
		Status: core.JobStatus(c.String("status")),
	}
	if raw := c.String("vector"); raw != "" {
		vector, err := parseVector(raw)
		if err != nil {
			return err
		}
		job.Vector = vector
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := core.ValidateInferenceJob(job, engine.Config().Dimension); err != nil {
		return err
	}
	if err := engine.PushInference(ctx, job); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Pushed inference job %s to %s\n", job.JobID, engine.Config().InferenceQueue)
	return nil
}

func pushFeedbackCommand(c *cli.Context) error {
	ctx := context.Background()

	job := &core.FeedbackJob{
		RecordID:     core.ID(c.Uint64("record-id")),
		CorrectLevel: core.Level(c.Int("level")),
	}
	if err := core.ValidateFeedbackJob(job); err != nil {
		return err
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.PushFeedback(ctx, job); err != nil {
		return fmt.Errorf("failed to push feedback: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Pushed feedback for record %d to %s\n", job.RecordID, engine.Config().FeedbackQueue)
	return nil
}

func centroidsCommand(c *cli.Context) error {
	ctx := context.Background()

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	centroids, err := engine.Manager().Snapshot(ctx)
	if errors.Is(err, centroid.ErrNoCentroids) {
		fmt.Println("No centroids stored")
		return nil
	}
	if err != nil {
		return err
	}
	writeCentroidReport(os.Stdout, centroids)
	return nil
}

// loadCentroids reads a JSON object mapping decimal levels to vectors.
func loadCentroids(path string) (core.CentroidSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read centroids: %w", err)
	}
	centroids, err := storage.UnmarshalCentroidSet(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(centroids) == 0 {
		return nil, fmt.Errorf("%s: %w", path, core.ErrEmptyCentroidSet)
	}
	return centroids, nil
}

func parseVector(raw string) (core.Vector, error) {
	var v core.Vector
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid vector: %w", err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("invalid vector: %w", core.ErrInvalidVector)
	}
	return v, nil
}

// writeCentroidReport prints each level's norm and the pairwise similarity matrix.
func writeCentroidReport(w io.Writer, centroids core.CentroidSet) {
	levels := centroids.Levels()
	fmt.Fprintf(w, "Levels: %d, dimension: %d\n\n", len(levels), centroids.Dimension())

	fmt.Fprintf(w, "%6s", "")
	for _, level := range levels {
		fmt.Fprintf(w, " %7s", "lv"+level.String())
	}
	fmt.Fprintln(w)
	for _, a := range levels {
		fmt.Fprintf(w, "%6s", "lv"+a.String())
		for _, b := range levels {
			fmt.Fprintf(w, " %7.4f", centroid.Similarity(centroids[a], centroids[b]))
		}
		fmt.Fprintln(w)
	}
}

func writeSweepResult(w io.Writer, result *sweep.Result) {
	fmt.Fprintf(w, "Scanned: %d, skipped: %d, changed: %d\n",
		result.Scanned, result.Skipped, result.ChangedCount())
	fmt.Fprintf(w, "Pages: %d committed, %d failed\n", result.PagesCommitted, result.PagesFailed)
	fmt.Fprintf(w, "Elapsed: %s\n", result.Elapsed.Round(time.Millisecond))
}
