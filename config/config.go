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

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/core"
)

// Config holds runtime configuration for the engine and its collaborators.
type Config struct {
	// Dimension is the embedding width. Centroids and job vectors of any
	// other width are rejected.
	// Default: 1152
	Dimension int

	// DefaultLevel is returned when no centroid matches a vector.
	// Default: 0
	DefaultLevel core.Level

	// LearningRate is the attraction and unlearning step size.
	// Default: 0.02
	LearningRate float64

	// RepulsionRate is the step size used to push crowded centroids apart.
	// Default: 0.01
	RepulsionRate float64

	// SimilarityThreshold is the similarity above which neighbors are repelled.
	// Default: 0.95
	SimilarityThreshold float64

	// InferenceQueue receives completed inference jobs.
	InferenceQueue string

	// FeedbackQueue receives reviewer corrections.
	FeedbackQueue string

	// CentroidKey is the key holding the centroid set.
	CentroidKey string

	// PopTimeout bounds each blocking pop.
	// Default: 1s
	PopTimeout time.Duration

	// ErrorBackoff is the first sleep after a failed iteration. It doubles on
	// each consecutive failure up to MaxErrorBackoff.
	ErrorBackoff    time.Duration
	MaxErrorBackoff time.Duration

	// SweepPageSize is the number of records reclassified per transaction.
	// Default: 100
	SweepPageSize int

	// WriteRetries is the number of attempts for each downstream write.
	WriteRetries    int
	WriteRetryDelay time.Duration

	// PoolSize bounds concurrent downstream writes.
	// Default: 10
	PoolSize int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantTLS    bool
	Collection   string

	// DatabaseDriver is "postgres" or "sqlite".
	DatabaseDriver string
	DatabaseDSN    string
	PostsTable     string

	// TelemetryEndpoint enables the object sink when set.
	TelemetryEndpoint  string
	TelemetryAccessKey string
	TelemetrySecretKey string
	TelemetryBucket    string
	TelemetryPrefix    string
	TelemetryUseSSL    bool
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithDimension sets the embedding width.
func WithDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dim
	}
}

// WithDefaultLevel sets the fallback classification level.
func WithDefaultLevel(level core.Level) ConfigOption {
	return func(c *Config) {
		c.DefaultLevel = level
	}
}

// WithLearningRate sets the attraction and unlearning step size.
func WithLearningRate(rate float64) ConfigOption {
	return func(c *Config) {
		c.LearningRate = rate
	}
}

// WithRepulsionRate sets the repulsion step size.
func WithRepulsionRate(rate float64) ConfigOption {
	return func(c *Config) {
		c.RepulsionRate = rate
	}
}

// WithSimilarityThreshold sets the repulsion threshold.
func WithSimilarityThreshold(threshold float64) ConfigOption {
	return func(c *Config) {
		c.SimilarityThreshold = threshold
	}
}

// WithQueues sets the inference and feedback queue names.
func WithQueues(inference, feedback string) ConfigOption {
	return func(c *Config) {
		c.InferenceQueue = inference
		c.FeedbackQueue = feedback
	}
}

// WithCentroidKey sets the centroid store key.
func WithCentroidKey(key string) ConfigOption {
	return func(c *Config) {
		c.CentroidKey = key
	}
}

// WithPopTimeout sets the blocking pop timeout.
func WithPopTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.PopTimeout = d
	}
}

// WithErrorBackoff sets the initial and maximum failure backoff.
func WithErrorBackoff(initial, max time.Duration) ConfigOption {
	return func(c *Config) {
		c.ErrorBackoff = initial
		c.MaxErrorBackoff = max
	}
}

// WithSweepPageSize sets the reconciliation page size.
func WithSweepPageSize(n int) ConfigOption {
	return func(c *Config) {
		c.SweepPageSize = n
	}
}

// WithWriteRetries sets the attempts and base delay for downstream writes.
func WithWriteRetries(attempts int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.WriteRetries = attempts
		c.WriteRetryDelay = delay
	}
}

// WithPoolSize sets the downstream write concurrency.
func WithPoolSize(n int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = n
	}
}

// WithRedis sets the Redis connection.
func WithRedis(addr, password string, db int) ConfigOption {
	return func(c *Config) {
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
	}
}

// WithQdrant sets the Qdrant connection.
func WithQdrant(host string, port int) ConfigOption {
	return func(c *Config) {
		c.QdrantHost = host
		c.QdrantPort = port
	}
}

// WithCollection sets the Qdrant collection.
func WithCollection(name string) ConfigOption {
	return func(c *Config) {
		c.Collection = name
	}
}

// WithDatabase sets the relational database driver and DSN.
func WithDatabase(driver, dsn string) ConfigOption {
	return func(c *Config) {
		c.DatabaseDriver = driver
		c.DatabaseDSN = dsn
	}
}

// WithTelemetry enables the object sink.
func WithTelemetry(endpoint, accessKey, secretKey, bucket string) ConfigOption {
	return func(c *Config) {
		c.TelemetryEndpoint = endpoint
		c.TelemetryAccessKey = accessKey
		c.TelemetrySecretKey = secretKey
		c.TelemetryBucket = bucket
	}
}

// DefaultConfig returns a Config matching a local deployment.
func DefaultConfig() *Config {
	return &Config{
		Dimension:           core.DefaultDimension,
		DefaultLevel:        0,
		LearningRate:        centroid.DefaultLearningRate,
		RepulsionRate:       centroid.DefaultRepulsionRate,
		SimilarityThreshold: centroid.DefaultSimilarityThreshold,
		InferenceQueue:      "queue:inference",
		FeedbackQueue:       "queue:feedback",
		CentroidKey:         "system:centroids",
		PopTimeout:          time.Second,
		ErrorBackoff:        time.Second,
		MaxErrorBackoff:     30 * time.Second,
		SweepPageSize:       100,
		WriteRetries:        3,
		WriteRetryDelay:     200 * time.Millisecond,
		PoolSize:            10,
		RedisAddr:           "localhost:6379",
		QdrantHost:          "localhost",
		QdrantPort:          6334,
		Collection:          "santa_images",
		DatabaseDriver:      "postgres",
		PostsTable:          "posts",
		TelemetryBucket:     "leveler-telemetry",
		TelemetryPrefix:     "points",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithRedis("redis:6379", "", 0),
//	    WithQueues("queue:inference", "queue:feedback"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// Names are trimmed, a Redis address without a port gets 6379, and the
// maximum backoff is raised to at least the initial backoff.
func (c *Config) Normalize() {
	c.InferenceQueue = strings.TrimSpace(c.InferenceQueue)
	c.FeedbackQueue = strings.TrimSpace(c.FeedbackQueue)
	c.CentroidKey = strings.TrimSpace(c.CentroidKey)
	c.Collection = strings.TrimSpace(c.Collection)
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))

	if c.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			c.RedisAddr = net.JoinHostPort(c.RedisAddr, "6379")
		}
	}
	if c.MaxErrorBackoff < c.ErrorBackoff {
		c.MaxErrorBackoff = c.ErrorBackoff
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Dimension <= 0 {
		return errors.New("config: Dimension must be positive")
	}
	if c.DefaultLevel < 0 {
		return errors.New("config: DefaultLevel must not be negative")
	}
	if err := c.Adjuster().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.InferenceQueue == "" {
		return errors.New("config: InferenceQueue is required")
	}
	if c.FeedbackQueue == "" {
		return errors.New("config: FeedbackQueue is required")
	}
	if c.InferenceQueue == c.FeedbackQueue {
		return errors.New("config: InferenceQueue and FeedbackQueue must differ")
	}
	if c.CentroidKey == "" {
		return errors.New("config: CentroidKey is required")
	}
	if c.PopTimeout <= 0 {
		return errors.New("config: PopTimeout must be positive")
	}
	if c.ErrorBackoff <= 0 {
		return errors.New("config: ErrorBackoff must be positive")
	}
	if c.SweepPageSize <= 0 {
		return errors.New("config: SweepPageSize must be positive")
	}
	if c.WriteRetries < 1 {
		return errors.New("config: WriteRetries must be at least 1")
	}
	if c.PoolSize < 1 {
		return errors.New("config: PoolSize must be at least 1")
	}
	switch c.DatabaseDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DatabaseDriver %q", c.DatabaseDriver)
	}
	if c.TelemetryEndpoint != "" && c.TelemetryBucket == "" {
		return errors.New("config: TelemetryBucket is required when TelemetryEndpoint is set")
	}
	return nil
}

// Adjuster returns the centroid adjustment parameters.
func (c *Config) Adjuster() centroid.Config {
	return centroid.Config{
		LearningRate:        c.LearningRate,
		RepulsionRate:       c.RepulsionRate,
		SimilarityThreshold: c.SimilarityThreshold,
	}
}
