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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/poiesic/leveler"
	"github.com/poiesic/leveler/config"
	"github.com/poiesic/leveler/core"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:   "leveler",
		Usage:  "Nearest-centroid level classification with feedback-driven centroid updates",
		Flags:  globalFlags(),
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Consume inference and feedback queues until interrupted",
				Action: serveCommand,
			},
			{
				Name:   "seed",
				Usage:  "Replace the centroid set from a JSON file of level to vector",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Path to the centroid JSON file",
						Value:   "initial_centroids.json",
					},
					&cli.BoolFlag{
						Name:  "index-centroids",
						Usage: "Also write each centroid to the vector index as a centroid point",
					},
				},
			},
			{
				Name:   "sweep",
				Usage:  "Reclassify every indexed record against the current centroids",
				Action: sweepCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 1000,
					},
				},
			},
			{
				Name:   "classify",
				Usage:  "Classify a vector against the current centroids",
				Action: classifyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "vector",
						Usage:    "Vector as a JSON array",
						Required: true,
					},
				},
			},
			{
				Name:   "push-inference",
				Usage:  "Enqueue an inference completion job",
				Action: pushInferenceCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job-id",
						Usage:    "Job identifier, usually the post ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "vector",
						Usage: "Vector as a JSON array (required unless status is failed)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Job status (completed, failed)",
						Value: string(core.JobStatusCompleted),
					},
				},
			},
			{
				Name:   "push-feedback",
				Usage:  "Enqueue a level correction",
				Action: pushFeedbackCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:     "record-id",
						Usage:    "Record (post) ID",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "level",
						Usage:    "Correct level",
						Required: true,
					},
				},
			},
			{
				Name:   "centroids",
				Usage:  "Print the current centroids and their pairwise similarity",
				Action: centroidsCommand,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	d := config.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to a BadgerDB directory; when set, every store is local and the remote flags are ignored",
			EnvVars: []string{"LEVELER_DB"},
		},
		&cli.IntFlag{
			Name:    "dimension",
			Usage:   "Embedding width",
			Value:   d.Dimension,
			EnvVars: []string{"EMBEDDING_DIMENSION"},
		},
		&cli.IntFlag{
			Name:    "default-level",
			Usage:   "Level assigned when no centroid matches",
			Value:   int(d.DefaultLevel),
			EnvVars: []string{"DEFAULT_LEVEL"},
		},
		&cli.Float64Flag{
			Name:    "learning-rate",
			Usage:   "Attraction and unlearning step size",
			Value:   d.LearningRate,
			EnvVars: []string{"LEARNING_RATE"},
		},
		&cli.Float64Flag{
			Name:    "repulsion-rate",
			Usage:   "Step size pushing crowded centroids apart",
			Value:   d.RepulsionRate,
			EnvVars: []string{"REPULSION_RATE"},
		},
		&cli.Float64Flag{
			Name:    "similarity-threshold",
			Usage:   "Similarity above which neighboring centroids are repelled",
			Value:   d.SimilarityThreshold,
			EnvVars: []string{"SIMILARITY_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "inference-queue",
			Usage:   "Queue of completed inference jobs",
			Value:   d.InferenceQueue,
			EnvVars: []string{"REDIS_QUEUE_NAME"},
		},
		&cli.StringFlag{
			Name:    "feedback-queue",
			Usage:   "Queue of level corrections",
			Value:   d.FeedbackQueue,
			EnvVars: []string{"REDIS_FEEDBACK_QUEUE_NAME"},
		},
		&cli.StringFlag{
			Name:    "centroid-key",
			Usage:   "Key holding the centroid set",
			Value:   d.CentroidKey,
			EnvVars: []string{"CENTROID_KEY"},
		},
		&cli.DurationFlag{
			Name:    "pop-timeout",
			Usage:   "Maximum wait for one queue pop",
			Value:   d.PopTimeout,
			EnvVars: []string{"POP_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "sweep-page-size",
			Usage:   "Records reclassified per transaction",
			Value:   d.SweepPageSize,
			EnvVars: []string{"SWEEP_PAGE_SIZE"},
		},
		&cli.IntFlag{
			Name:    "pool-size",
			Usage:   "Concurrent downstream writes",
			Value:   d.PoolSize,
			EnvVars: []string{"WRITE_POOL_SIZE"},
		},
		&cli.StringFlag{
			Name:    "redis-host",
			Usage:   "Redis host",
			Value:   "localhost",
			EnvVars: []string{"REDIS_HOST"},
		},
		&cli.IntFlag{
			Name:    "redis-port",
			Usage:   "Redis port",
			Value:   6379,
			EnvVars: []string{"REDIS_PORT"},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{"REDIS_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{"REDIS_DB"},
		},
		&cli.BoolFlag{
			Name:    "redis-tls",
			Usage:   "Connect to Redis over TLS",
			EnvVars: []string{"REDIS_TLS"},
		},
		&cli.StringFlag{
			Name:    "qdrant-host",
			Usage:   "Qdrant host",
			Value:   d.QdrantHost,
			EnvVars: []string{"QDRANT_HOST"},
		},
		&cli.IntFlag{
			Name:    "qdrant-port",
			Usage:   "Qdrant gRPC port",
			Value:   d.QdrantPort,
			EnvVars: []string{"QDRANT_GRPC_PORT"},
		},
		&cli.StringFlag{
			Name:    "qdrant-api-key",
			Usage:   "Qdrant API key",
			EnvVars: []string{"QDRANT_API_KEY"},
		},
		&cli.BoolFlag{
			Name:    "qdrant-tls",
			Usage:   "Connect to Qdrant over TLS",
			EnvVars: []string{"QDRANT_TLS"},
		},
		&cli.StringFlag{
			Name:    "collection",
			Usage:   "Qdrant collection holding the classified vectors",
			Value:   d.Collection,
			EnvVars: []string{"QDRANT_COLLECTION"},
		},
		&cli.StringFlag{
			Name:    "database-driver",
			Usage:   "Record store driver (postgres, sqlite)",
			Value:   d.DatabaseDriver,
			EnvVars: []string{"DATABASE_DRIVER"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Record store DSN",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "posts-table",
			Usage:   "Table holding post levels",
			Value:   d.PostsTable,
			EnvVars: []string{"POSTS_TABLE"},
		},
		&cli.StringFlag{
			Name:    "telemetry-endpoint",
			Usage:   "S3-compatible endpoint receiving telemetry points; disabled when empty",
			EnvVars: []string{"TELEMETRY_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "telemetry-access-key",
			Usage:   "Telemetry access key",
			EnvVars: []string{"AWS_ACCESS_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "telemetry-secret-key",
			Usage:   "Telemetry secret key",
			EnvVars: []string{"AWS_SECRET_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "telemetry-bucket",
			Usage:   "Telemetry bucket",
			Value:   d.TelemetryBucket,
			EnvVars: []string{"TELEMETRY_BUCKET"},
		},
		&cli.BoolFlag{
			Name:    "telemetry-ssl",
			Usage:   "Use TLS for the telemetry endpoint",
			EnvVars: []string{"TELEMETRY_USE_SSL"},
		},
	}
}

// configFromFlags builds and validates the engine configuration.
func configFromFlags(c *cli.Context) (*config.Config, error) {
	cfg := config.NewConfig(
		config.WithDimension(c.Int("dimension")),
		config.WithDefaultLevel(core.Level(c.Int("default-level"))),
		config.WithLearningRate(c.Float64("learning-rate")),
		config.WithRepulsionRate(c.Float64("repulsion-rate")),
		config.WithSimilarityThreshold(c.Float64("similarity-threshold")),
		config.WithQueues(c.String("inference-queue"), c.String("feedback-queue")),
		config.WithCentroidKey(c.String("centroid-key")),
		config.WithPopTimeout(c.Duration("pop-timeout")),
		config.WithSweepPageSize(c.Int("sweep-page-size")),
		config.WithPoolSize(c.Int("pool-size")),
		config.WithRedis(
			net.JoinHostPort(c.String("redis-host"), strconv.Itoa(c.Int("redis-port"))),
			c.String("redis-password"),
			c.Int("redis-db")),
		config.WithQdrant(c.String("qdrant-host"), c.Int("qdrant-port")),
		config.WithCollection(c.String("collection")),
		config.WithDatabase(c.String("database-driver"), c.String("database-url")),
		config.WithTelemetry(
			c.String("telemetry-endpoint"),
			c.String("telemetry-access-key"),
			c.String("telemetry-secret-key"),
			c.String("telemetry-bucket")),
	)
	cfg.RedisTLS = c.Bool("redis-tls")
	cfg.QdrantAPIKey = c.String("qdrant-api-key")
	cfg.QdrantTLS = c.Bool("qdrant-tls")
	cfg.PostsTable = c.String("posts-table")
	cfg.TelemetryUseSSL = c.Bool("telemetry-ssl")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openEngine opens a local engine when --db is set and a remote one otherwise.
func openEngine(ctx context.Context, c *cli.Context) (*leveler.Engine, error) {
	cfg, err := configFromFlags(c)
	if err != nil {
		return nil, err
	}
	if path := c.String("db"); path != "" {
		engine, err := leveler.OpenLocal(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return engine, nil
	}
	engine, err := leveler.OpenRemote(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return engine, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
