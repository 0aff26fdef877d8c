package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

// Result summarizes one sweep.
type Result struct {
	// Scanned is the number of records read from the index.
	Scanned int

	// Skipped counts index points the sweep could not reconcile.
	// Centroid points and empty vectors are never records; a record with no
	// level row belongs to a table this process does not own.
	Skipped int

	// Changed holds the IDs whose level was rewritten in a committed page.
	Changed *roaring64.Bitmap

	PagesCommitted int
	PagesFailed    int

	Elapsed time.Duration
}

// ChangedCount returns the number of records whose level changed.
func (r *Result) ChangedCount() int {
	if r == nil || r.Changed == nil {
		return 0
	}
	return int(r.Changed.GetCardinality())
}

// Sweeper reclassifies every record in the vector index.
type Sweeper struct {
	index      storage.VectorIndex
	levels     storage.LevelRepository
	classifier *centroid.Classifier
	pageSize   int
	syncIndex  bool
	progress   *ProgressTracker
	logger     *slog.Logger

	running atomic.Bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPageSize sets the number of records per page and per transaction.
// Default is DefaultPageSize.
func WithPageSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// WithIndexSync controls whether the index payload level of changed records
// is updated after each committed page. Default is true.
func WithIndexSync(enabled bool) Option {
	return func(s *Sweeper) {
		s.syncIndex = enabled
	}
}

// WithProgress reports progress to tracker.
func WithProgress(tracker *ProgressTracker) Option {
	return func(s *Sweeper) {
		s.progress = tracker
	}
}

// NewSweeper creates a sweeper reading from index and writing levels to levels.
func NewSweeper(index storage.VectorIndex, levels storage.LevelRepository, classifier *centroid.Classifier, opts ...Option) (*Sweeper, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if levels == nil {
		return nil, ErrLevelRepositoryRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	s := &Sweeper{
		index:      index,
		levels:     levels,
		classifier: classifier,
		pageSize:   DefaultPageSize,
		syncIndex:  true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s, nil
}

// Running reports whether a sweep is in progress.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

type change struct {
	id    core.ID
	level core.Level
}

// Sweep classifies every record against centroids and rewrites the levels
// that differ from the stored ones.
//
// Each page is written in its own transaction. A failed page is rolled back
// and the sweep moves on; the returned error then wraps ErrPageFailed and the
// result still describes the committed pages. A scroll failure ends the sweep.
// Cancellation is observed between pages, never inside a page commit.
func (s *Sweeper) Sweep(ctx context.Context, centroids core.CentroidSet) (*Result, error) {
	if len(centroids) == 0 {
		return nil, centroid.ErrNoCentroids
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	result := &Result{Changed: roaring64.New()}
	var pageErrs []error

	if s.progress != nil {
		total, err := s.index.Count(ctx)
		if err != nil {
			s.logger.Warn("failed to count records", "err", err)
		}
		s.progress.Start(total)
	}

	s.logger.Info("sweep started", "levels", len(centroids), "page_size", s.pageSize)

	page := 0
	iter := NewPageIterator(s.index, s.pageSize)
	err := iter.ForEach(ctx, func(records []*core.Record) error {
		page++
		result.Scanned += len(records)

		changes, skipped, err := s.reconcilePage(context.WithoutCancel(ctx), records, centroids)
		result.Skipped += skipped
		if err != nil {
			result.PagesFailed++
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %w", page, err))
			s.logger.Error("sweep page rolled back", "page", page, "records", len(records), "err", err)
			if s.progress != nil {
				s.progress.Add(len(records), 0)
			}
			return nil
		}

		result.PagesCommitted++
		for _, c := range changes {
			result.Changed.Add(uint64(c.id))
		}
		if s.syncIndex {
			s.syncPayloads(context.WithoutCancel(ctx), changes)
		}
		if s.progress != nil {
			s.progress.Add(len(records), len(changes))
		}
		return nil
	})
	result.Elapsed = time.Since(start)

	if s.progress != nil {
		s.progress.Finish()
	}

	if err != nil {
		s.logger.Error("sweep aborted",
			"scanned", result.Scanned,
			"changed", result.ChangedCount(),
			"err", err)
		return result, errors.Join(append([]error{err}, pageErrs...)...)
	}

	s.logger.Info("sweep finished",
		"scanned", result.Scanned,
		"changed", result.ChangedCount(),
		"skipped", result.Skipped,
		"pages", result.PagesCommitted,
		"failed_pages", result.PagesFailed,
		"elapsed", result.Elapsed)

	if len(pageErrs) > 0 {
		return result, fmt.Errorf("%w: %d of %d pages: %w",
			ErrPageFailed, result.PagesFailed, page, errors.Join(pageErrs...))
	}
	return result, nil
}

// reconcilePage classifies records and writes the changed levels in one transaction.
func (s *Sweeper) reconcilePage(ctx context.Context, records []*core.Record, centroids core.CentroidSet) ([]change, int, error) {
	var changes []change
	skipped := 0

	err := s.levels.WithTransaction(ctx, func(ctx context.Context) error {
		changes = changes[:0]
		skipped = 0
		for _, rec := range records {
			if len(rec.Vector) == 0 || rec.Type == storage.PointTypeCentroid {
				skipped++
				continue
			}
			level, matched := s.classifier.Classify(rec.Vector, centroids)
			if !matched {
				s.logger.Warn("no centroid matched, using default level", "record_id", rec.Id, "level", level)
			}

			stored, found, err := s.levels.GetLevel(ctx, rec.Id)
			if err != nil {
				return err
			}
			if !found && rec.Labeled {
				stored, found = rec.Level, true
			}
			if found && stored == level {
				continue
			}

			if err := s.levels.SetLevel(ctx, rec.Id, level); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					s.logger.Warn("record has no level row, skipping", "record_id", rec.Id)
					skipped++
					continue
				}
				return err
			}
			changes = append(changes, change{id: rec.Id, level: level})
		}
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return changes, skipped, nil
}

// syncPayloads mirrors committed level changes into the index payload.
// Failures are logged; the record store stays authoritative.
func (s *Sweeper) syncPayloads(ctx context.Context, changes []change) {
	for _, c := range changes {
		err := s.index.SetPayload(ctx, c.id, map[string]any{storage.PayloadLevel: c.level})
		if err != nil {
			s.logger.Warn("failed to update index payload", "record_id", c.id, "level", c.level, "err", err)
		}
	}
}
