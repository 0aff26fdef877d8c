package config

import (
	"testing"
	"time"

	"github.com/poiesic/leveler/centroid"
	"github.com/poiesic/leveler/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 1152, cfg.Dimension)
	assert.Equal(t, core.Level(0), cfg.DefaultLevel)
	assert.Equal(t, 0.02, cfg.LearningRate)
	assert.Equal(t, 0.01, cfg.RepulsionRate)
	assert.Equal(t, 0.95, cfg.SimilarityThreshold)
	assert.Equal(t, "queue:inference", cfg.InferenceQueue)
	assert.Equal(t, "queue:feedback", cfg.FeedbackQueue)
	assert.Equal(t, "system:centroids", cfg.CentroidKey)
	assert.Equal(t, time.Second, cfg.PopTimeout)
	assert.Equal(t, 100, cfg.SweepPageSize)
	assert.Equal(t, "santa_images", cfg.Collection)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom queues", func(t *testing.T) {
		cfg := NewConfig(WithQueues("in", "fb"))

		assert.Equal(t, "in", cfg.InferenceQueue)
		assert.Equal(t, "fb", cfg.FeedbackQueue)
	})

	t.Run("with custom adjustment", func(t *testing.T) {
		cfg := NewConfig(
			WithLearningRate(0.1),
			WithRepulsionRate(0.05),
			WithSimilarityThreshold(0.9),
		)

		assert.Equal(t, centroid.Config{
			LearningRate:        0.1,
			RepulsionRate:       0.05,
			SimilarityThreshold: 0.9,
		}, cfg.Adjuster())
	})

	t.Run("with connections", func(t *testing.T) {
		cfg := NewConfig(
			WithRedis("redis:6380", "secret", 2),
			WithQdrant("qdrant", 7334),
			WithDatabase("sqlite", "file:levels.db"),
		)

		assert.Equal(t, "redis:6380", cfg.RedisAddr)
		assert.Equal(t, "secret", cfg.RedisPassword)
		assert.Equal(t, 2, cfg.RedisDB)
		assert.Equal(t, "qdrant", cfg.QdrantHost)
		assert.Equal(t, 7334, cfg.QdrantPort)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	})
}

func TestNormalize(t *testing.T) {
	cfg := NewConfig(
		WithRedis("redis", "", 0),
		WithQueues(" queue:a ", "queue:b\n"),
		WithErrorBackoff(5*time.Second, time.Second),
		WithDatabase(" SQLite ", ""),
	)
	cfg.Normalize()

	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "queue:a", cfg.InferenceQueue)
	assert.Equal(t, "queue:b", cfg.FeedbackQueue)
	assert.Equal(t, 5*time.Second, cfg.MaxErrorBackoff)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ConfigOption
		wantErr string
	}{
		{"zero dimension", []ConfigOption{WithDimension(0)}, "Dimension"},
		{"negative default level", []ConfigOption{WithDefaultLevel(-1)}, "DefaultLevel"},
		{"learning rate", []ConfigOption{WithLearningRate(1.5)}, "learning rate"},
		{"threshold", []ConfigOption{WithSimilarityThreshold(2)}, "similarity threshold"},
		{"empty queue", []ConfigOption{WithQueues("", "fb")}, "InferenceQueue"},
		{"same queues", []ConfigOption{WithQueues("q", "q")}, "must differ"},
		{"empty centroid key", []ConfigOption{WithCentroidKey(" ")}, "CentroidKey"},
		{"pop timeout", []ConfigOption{WithPopTimeout(0)}, "PopTimeout"},
		{"page size", []ConfigOption{WithSweepPageSize(0)}, "SweepPageSize"},
		{"retries", []ConfigOption{WithWriteRetries(0, time.Second)}, "WriteRetries"},
		{"pool", []ConfigOption{WithPoolSize(0)}, "PoolSize"},
		{"driver", []ConfigOption{WithDatabase("mysql", "dsn")}, "DatabaseDriver"},
		{"telemetry bucket", []ConfigOption{WithTelemetry("minio:9000", "a", "b", "")}, "TelemetryBucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opts...).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
