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

// Package leveler wires the level classifier, the centroid manager, the
// reconciliation sweeper and the queue consumers over a set of stores.
package leveler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/config"
	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/poiesic/leveler/storage/badger"
	"github.com/poiesic/leveler/storage/qdrant"
	"github.com/poiesic/leveler/storage/redis"
	"github.com/poiesic/leveler/storage/sqlstore"
	"github.com/poiesic/leveler/sweep"
	"github.com/poiesic/leveler/telemetry"
	"github.com/poiesic/leveler/worker"
)

// closeTimeout bounds the final telemetry flush.
const closeTimeout = 10 * time.Second

type Engine struct {
	cfg        *config.Config
	centroids  storage.CentroidStore
	queue      storage.JobQueue
	index      storage.VectorIndex
	levels     storage.LevelRepository
	sink       telemetry.Sink
	manager    *centroid.Manager
	classifier *centroid.Classifier
	closers    []func() error
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger *slog.Logger
	sink   telemetry.Sink
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTelemetrySink replaces the sink built from the configuration.
// The engine closes it on Close.
func WithTelemetrySink(sink telemetry.Sink) EngineOption {
	return func(o *engineOptions) {
		o.sink = sink
	}
}

func applyOptions(opts []EngineOption) *engineOptions {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func validConfig(cfg *config.Config) (*config.Config, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenLocal opens an engine backed entirely by BadgerDB at path.
// An empty path keeps everything in memory.
func OpenLocal(path string, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	cfg, err := validConfig(cfg)
	if err != nil {
		return nil, err
	}
	options := applyOptions(opts)

	stores, err := badger.Open(path, path == "")
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		centroids: stores.Centroids,
		queue:     stores.Queue,
		index:     stores.Index,
		levels:    stores.Levels,
		closers:   []func() error{stores.Close},
		logger:    options.logger,
	}
	if err := e.init(options); err != nil {
		e.closeAll()
		return nil, err
	}
	return e, nil
}

// OpenRemote connects to Redis, Qdrant and the relational store named by cfg.
// The Qdrant collection is created if it does not exist. Telemetry goes to
// the S3-compatible endpoint in cfg when one is set.
func OpenRemote(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	cfg, err := validConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("config: DatabaseDSN is required")
	}
	options := applyOptions(opts)
	e := &Engine{cfg: cfg, logger: options.logger}

	if err := e.connect(ctx, options); err != nil {
		e.closeAll()
		return nil, err
	}
	if err := e.init(options); err != nil {
		e.closeAll()
		return nil, err
	}
	return e, nil
}

func (e *Engine) connect(ctx context.Context, options *engineOptions) error {
	cfg := e.cfg

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TLS:      cfg.RedisTLS,
	})
	if err != nil {
		return err
	}
	e.closers = append(e.closers, rdb.Close)
	e.centroids = redis.NewCentroidStore(rdb, cfg.CentroidKey)
	e.queue = redis.NewJobQueue(rdb)

	qc, err := qdrant.NewClient(qdrant.Options{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		TLS:    cfg.QdrantTLS,
	})
	if err != nil {
		return err
	}
	e.closers = append(e.closers, qc.Close)
	index := qdrant.New(qc, qdrant.Config{Collection: cfg.Collection, Wait: true})
	created, err := index.EnsureCollection(ctx, cfg.Dimension)
	if err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", cfg.Collection, err)
	}
	if created {
		e.logger.Info("collection created", "collection", cfg.Collection, "dimension", cfg.Dimension)
	}
	e.index = index

	driver := cfg.DatabaseDriver
	if driver == "" {
		driver = sqlstore.DriverPostgres
	}
	sqlCfg := sqlstore.DefaultConfig()
	if cfg.PostsTable != "" {
		sqlCfg.Table = cfg.PostsTable
	}
	levels, err := sqlstore.Open(ctx, driver, cfg.DatabaseDSN, sqlCfg)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, levels.Close)
	if driver == sqlstore.DriverSQLite {
		if err := levels.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	e.levels = levels

	if options.sink == nil && cfg.TelemetryEndpoint != "" {
		sink, err := openObjectSink(ctx, cfg, e.logger)
		if err != nil {
			return err
		}
		options.sink = sink
	}
	return nil
}

func openObjectSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*telemetry.ObjectSink, error) {
	client, err := telemetry.NewMinioClient(telemetry.MinioOptions{
		Endpoint:  cfg.TelemetryEndpoint,
		AccessKey: cfg.TelemetryAccessKey,
		SecretKey: cfg.TelemetrySecretKey,
		UseSSL:    cfg.TelemetryUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry client: %w", err)
	}
	if err := telemetry.EnsureBucket(ctx, client, cfg.TelemetryBucket); err != nil {
		return nil, fmt.Errorf("failed to ensure telemetry bucket %s: %w", cfg.TelemetryBucket, err)
	}
	sinkCfg := telemetry.DefaultObjectSinkConfig()
	sinkCfg.Bucket = cfg.TelemetryBucket
	sinkCfg.Prefix = cfg.TelemetryPrefix
	return telemetry.NewObjectSink(client, sinkCfg, telemetry.WithObjectSinkLogger(logger))
}

// init builds the centroid manager and classifier over the opened stores.
func (e *Engine) init(options *engineOptions) error {
	e.sink = options.sink
	if e.sink == nil {
		e.sink = telemetry.Noop{}
	}

	adjuster, err := centroid.NewAdjuster(e.cfg.Adjuster(), centroid.WithAdjusterLogger(e.logger))
	if err != nil {
		return err
	}
	manager, err := centroid.NewManager(e.centroids, adjuster,
		centroid.WithManagerLogger(e.logger),
		centroid.WithDimension(e.cfg.Dimension))
	if err != nil {
		return err
	}
	e.manager = manager
	e.classifier = centroid.NewClassifier(e.cfg.DefaultLevel)
	return nil
}

func (e *Engine) closeAll() error {
	var errs []error
	if e.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := e.sink.Close(ctx); err != nil {
			e.logger.Error("error closing telemetry sink", "err", err)
			errs = append(errs, err)
		}
		cancel()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Close flushes telemetry and closes every store in reverse opening order.
func (e *Engine) Close() error {
	return e.closeAll()
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) CentroidStore() storage.CentroidStore {
	return e.centroids
}

func (e *Engine) JobQueue() storage.JobQueue {
	return e.queue
}

func (e *Engine) VectorIndex() storage.VectorIndex {
	return e.index
}

func (e *Engine) LevelRepository() storage.LevelRepository {
	return e.levels
}

func (e *Engine) Manager() *centroid.Manager {
	return e.manager
}

func (e *Engine) Classifier() *centroid.Classifier {
	return e.classifier
}

// Seed normalizes and stores a new centroid set. With indexCentroids set,
// each centroid is also written to the vector index as a centroid point.
// Index failures are returned after the set has been stored.
func (e *Engine) Seed(ctx context.Context, centroids core.CentroidSet, indexCentroids bool) (core.CentroidSet, error) {
	seeded, err := e.manager.Seed(ctx, centroids)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, level := range seeded.Levels() {
		vec := seeded[level]
		e.sink.Record(ctx, telemetry.CentroidPoint(level, vec, fmt.Sprintf("init_centroid_lv%d", level)))
		if !indexCentroids {
			continue
		}
		err := e.index.Upsert(ctx, telemetry.CentroidID(level), vec, map[string]any{
			storage.PayloadType:  storage.PointTypeCentroid,
			storage.PayloadLevel: level,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("centroid %d: %w", level, err))
		}
	}
	return seeded, errors.Join(errs...)
}

// Classify labels vector against the current centroids.
// The boolean is false when the default level was used.
func (e *Engine) Classify(ctx context.Context, vector core.Vector) (core.Level, bool, error) {
	if err := core.ValidateVector(vector, e.cfg.Dimension); err != nil {
		return 0, false, err
	}
	centroids, err := e.manager.Snapshot(ctx)
	if err != nil && !errors.Is(err, centroid.ErrNoCentroids) {
		return 0, false, err
	}
	level, matched := e.classifier.Classify(vector, centroids)
	return level, matched, nil
}

// PushInference enqueues an inference completion job.
func (e *Engine) PushInference(ctx context.Context, job *core.InferenceJob) error {
	data, err := storage.EncodeInferenceJob(job)
	if err != nil {
		return err
	}
	return e.queue.Push(ctx, e.cfg.InferenceQueue, data)
}

// PushFeedback enqueues a level correction.
func (e *Engine) PushFeedback(ctx context.Context, job *core.FeedbackJob) error {
	data, err := storage.EncodeFeedbackJob(job)
	if err != nil {
		return err
	}
	return e.queue.Push(ctx, e.cfg.FeedbackQueue, data)
}

// NewSweeper creates a sweeper over the engine's index and level store.
// Options are applied after the configured page size.
func (e *Engine) NewSweeper(opts ...sweep.Option) (*sweep.Sweeper, error) {
	base := []sweep.Option{
		sweep.WithPageSize(e.cfg.SweepPageSize),
		sweep.WithLogger(e.logger),
	}
	return sweep.NewSweeper(e.index, e.levels, e.classifier, append(base, opts...)...)
}

// NewWorker creates both queue consumers with a sweep scheduler attached.
// The caller must Release the worker when done.
func (e *Engine) NewWorker(opts ...worker.Option) (*worker.Worker, error) {
	sweeper, err := e.NewSweeper()
	if err != nil {
		return nil, err
	}
	scheduler := sweep.NewScheduler(sweeper, sweep.WithSchedulerLogger(e.logger))

	cfg := e.cfg
	base := []worker.Option{
		worker.WithLogger(e.logger),
		worker.WithPoolSize(cfg.PoolSize),
		worker.WithQueues(cfg.InferenceQueue, cfg.FeedbackQueue),
		worker.WithPopTimeout(cfg.PopTimeout),
		worker.WithErrorBackoff(cfg.ErrorBackoff, cfg.MaxErrorBackoff),
		worker.WithWriteRetries(cfg.WriteRetries, cfg.WriteRetryDelay),
		worker.WithDimension(cfg.Dimension),
		worker.WithScheduler(scheduler),
		worker.WithTelemetry(e.sink),
	}
	return worker.NewWorker(e.queue, e.manager, e.classifier, e.index, e.levels, append(base, opts...)...)
}
