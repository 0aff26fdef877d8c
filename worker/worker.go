package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/storage"
	"github.com/poiesic/leveler/sweep"
	"github.com/poiesic/leveler/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Default queue names and timings.
const (
	DefaultInferenceQueue  = "queue:inference"
	DefaultFeedbackQueue   = "queue:feedback"
	DefaultPopTimeout      = time.Second
	DefaultErrorBackoff    = time.Second
	DefaultMaxErrorBackoff = 30 * time.Second
	DefaultWriteRetries    = 3
	DefaultWriteRetryDelay = 200 * time.Millisecond
	DefaultPoolSize        = 10
)

// Stats counts jobs handled by each consumer.
type Stats struct {
	Classified    int64 // inference jobs classified
	Degraded      int64 // classifications that fell back to the default level
	Adjusted      int64 // feedback jobs that moved centroids
	Dropped       int64 // jobs discarded as malformed, failed or unknown
	Failed        int64 // transient processing failures
	Requeued      int64 // jobs pushed back after a transient failure
	WritesFailed  int64 // downstream writes lost after all retries
	WritesApplied int64
}

// Worker runs the inference and feedback consumers.
type Worker struct {
	queue      storage.JobQueue
	manager    *centroid.Manager
	classifier *centroid.Classifier
	index      storage.VectorIndex
	levels     storage.LevelRepository
	scheduler  *sweep.Scheduler
	sink       telemetry.Sink
	pool       *ants.Pool

	inferenceQueue  string
	feedbackQueue   string
	popTimeout      time.Duration
	errorBackoff    time.Duration
	maxErrorBackoff time.Duration
	writeRetries    int
	writeRetryDelay time.Duration
	dimension       int
	requeue         bool

	logger *slog.Logger
	writes sync.WaitGroup

	classified    atomic.Int64
	degraded      atomic.Int64
	adjusted      atomic.Int64
	dropped       atomic.Int64
	failed        atomic.Int64
	requeued      atomic.Int64
	writesFailed  atomic.Int64
	writesApplied atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker) error

// WithPoolSize sets the number of concurrent downstream writes.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(w *Worker) error {
		if size < 1 {
			size = 1
		}
		if w.pool != nil {
			w.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		w.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithQueues sets the inference and feedback queue names.
func WithQueues(inference, feedback string) Option {
	return func(w *Worker) error {
		if inference != "" {
			w.inferenceQueue = inference
		}
		if feedback != "" {
			w.feedbackQueue = feedback
		}
		return nil
	}
}

// WithPopTimeout sets how long each pop blocks.
// Default is DefaultPopTimeout.
func WithPopTimeout(d time.Duration) Option {
	return func(w *Worker) error {
		if d > 0 {
			w.popTimeout = d
		}
		return nil
	}
}

// WithErrorBackoff sets the first and maximum sleep after consecutive failures.
func WithErrorBackoff(initial, max time.Duration) Option {
	return func(w *Worker) error {
		if initial > 0 {
			w.errorBackoff = initial
		}
		if max > 0 {
			w.maxErrorBackoff = max
		}
		return nil
	}
}

// WithWriteRetries sets the attempts and base delay for downstream writes.
func WithWriteRetries(attempts int, delay time.Duration) Option {
	return func(w *Worker) error {
		if attempts < 1 {
			return ErrInvalidMaxAttempts
		}
		w.writeRetries = attempts
		w.writeRetryDelay = delay
		return nil
	}
}

// WithDimension rejects job vectors of any other width.
func WithDimension(dim int) Option {
	return func(w *Worker) error {
		w.dimension = dim
		return nil
	}
}

// WithScheduler triggers a reconciliation sweep after every centroid change.
// Run also runs the scheduler.
func WithScheduler(s *sweep.Scheduler) Option {
	return func(w *Worker) error {
		w.scheduler = s
		return nil
	}
}

// WithTelemetry records classified posts and updated centroids to sink.
// Default is telemetry.Noop.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(w *Worker) error {
		if sink == nil {
			sink = telemetry.Noop{}
		}
		w.sink = sink
		return nil
	}
}

// WithRequeue controls whether jobs that hit a transient failure are pushed
// back onto their queue. Default is false: every message is consumed once
// and a failed job is logged and lost.
func WithRequeue(enabled bool) Option {
	return func(w *Worker) error {
		w.requeue = enabled
		return nil
	}
}

// NewWorker creates the queue consumers.
func NewWorker(
	queue storage.JobQueue,
	manager *centroid.Manager,
	classifier *centroid.Classifier,
	index storage.VectorIndex,
	levels storage.LevelRepository,
	opts ...Option,
) (*Worker, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if manager == nil {
		return nil, ErrManagerRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if levels == nil {
		return nil, ErrLevelRepositoryRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		queue:           queue,
		manager:         manager,
		classifier:      classifier,
		index:           index,
		levels:          levels,
		sink:            telemetry.Noop{},
		pool:            pool,
		inferenceQueue:  DefaultInferenceQueue,
		feedbackQueue:   DefaultFeedbackQueue,
		popTimeout:      DefaultPopTimeout,
		errorBackoff:    DefaultErrorBackoff,
		maxErrorBackoff: DefaultMaxErrorBackoff,
		writeRetries:    DefaultWriteRetries,
		writeRetryDelay: DefaultWriteRetryDelay,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(w); optErr != nil {
			w.Release()
			return nil, optErr
		}
	}
	w.logger = w.logger.With("component", "worker")
	return w, nil
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Classified:    w.classified.Load(),
		Degraded:      w.degraded.Load(),
		Adjusted:      w.adjusted.Load(),
		Dropped:       w.dropped.Load(),
		Failed:        w.failed.Load(),
		Requeued:      w.requeued.Load(),
		WritesFailed:  w.writesFailed.Load(),
		WritesApplied: w.writesApplied.Load(),
	}
}

// Run starts both consumers, and the sweep scheduler if one is set, and
// blocks until ctx is cancelled. Each consumer finishes the job it is
// processing before returning. Pending downstream writes are awaited.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"inference_queue", w.inferenceQueue,
		"feedback_queue", w.feedbackQueue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.consume(gctx, "inference", w.inferenceQueue, w.handleInference)
	})
	g.Go(func() error {
		return w.consume(gctx, "feedback", w.feedbackQueue, w.handleFeedback)
	})
	if w.scheduler != nil {
		g.Go(func() error {
			return w.scheduler.Run(gctx)
		})
	}

	err := g.Wait()
	w.writes.Wait()
	w.logger.Info("worker stopped")
	return err
}

// Release releases the write pool. The worker must not be used afterwards.
func (w *Worker) Release() {
	if w.pool != nil {
		w.pool.Release()
	}
}

type handler func(ctx context.Context, msg []byte) error

// consume is the poll loop of one queue. It only returns when ctx ends.
func (w *Worker) consume(ctx context.Context, name, queue string, handle handler) error {
	logger := w.logger.With("consumer", name, "queue", queue)
	bo := newBackoff(w.errorBackoff, w.maxErrorBackoff)
	failures := rate.Sometimes{First: 3, Interval: 10 * time.Second}

	logger.Info("consumer started")
	defer logger.Info("consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := w.queue.Pop(ctx, queue, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures.Do(func() { logger.Error("pop failed", "err", err) })
			if !sleep(ctx, bo.Next()) {
				return nil
			}
			continue
		}
		if msg == nil {
			continue
		}

		// the popped job is finished even if shutdown starts meanwhile
		err = handle(context.WithoutCancel(ctx), msg)
		switch {
		case err == nil:
			bo.Reset()
		case isDroppable(err):
			w.dropped.Add(1)
			logger.Warn("job dropped", "err", err)
			bo.Reset()
		default:
			w.failed.Add(1)
			failures.Do(func() { logger.Error("job failed", "err", err) })
			w.requeueJob(ctx, logger, queue, msg)
			if !sleep(ctx, bo.Next()) {
				return nil
			}
		}
	}
}

func (w *Worker) requeueJob(ctx context.Context, logger *slog.Logger, queue string, msg []byte) {
	if !w.requeue {
		return
	}
	if err := w.queue.Push(context.WithoutCancel(ctx), queue, msg); err != nil {
		logger.Error("failed to requeue job, dropping it", "err", err)
		return
	}
	w.requeued.Add(1)
}

// submit runs fn on the write pool with bounded retries.
// A write that still fails is logged and lost.
func (w *Worker) submit(what string, attrs []any, fn func(ctx context.Context) error) {
	w.writes.Add(1)
	err := w.pool.Submit(func() {
		defer w.writes.Done()
		ctx := context.Background()
		err := RetryWithBackoff(ctx, func() error { return fn(ctx) }, w.writeRetries, w.writeRetryDelay)
		if err != nil {
			w.writesFailed.Add(1)
			w.logger.Error("downstream write dropped", append([]any{"write", what, "attempts", w.writeRetries, "err", err}, attrs...)...)
			return
		}
		w.writesApplied.Add(1)
	})
	if err != nil {
		w.writes.Done()
		w.writesFailed.Add(1)
		if errors.Is(err, ants.ErrPoolClosed) {
			w.logger.Error("write pool closed, dropping write", append([]any{"write", what}, attrs...)...)
			return
		}
		w.logger.Error("failed to submit write", append([]any{"write", what, "err", err}, attrs...)...)
	}
}
