// Package redis implements the job queue and centroid store on Redis.
//
// Jobs are JSON messages in Redis lists, pushed with RPUSH and consumed with
// BLPOP. The centroid set is a single JSON string key.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultCentroidKey is the key holding the centroid set.
const DefaultCentroidKey = "system:centroids"

// Client defines the Redis client interface used by this package.
// This allows for easy mocking in tests.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Client = (*redis.Client)(nil)

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	ro := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.TLS {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// CentroidStore implements storage.CentroidStore on a single Redis key.
type CentroidStore struct {
	client Client
	key    string
}

var _ storage.CentroidStore = (*CentroidStore)(nil)

// NewCentroidStore creates a store on key, or DefaultCentroidKey if key is empty.
func NewCentroidStore(client Client, key string) *CentroidStore {
	if key == "" {
		key = DefaultCentroidKey
	}
	return &CentroidStore{
		client: client,
		key:    key,
	}
}

// Close is a no-op; the client is owned by the caller.
func (s *CentroidStore) Close() error {
	return nil
}

// GetCentroids returns the stored set, or nil if the key does not exist.
func (s *CentroidStore) GetCentroids(ctx context.Context) (core.CentroidSet, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return storage.UnmarshalCentroidSet(data)
}

// SetCentroids replaces the stored set with one SET.
func (s *CentroidStore) SetCentroids(ctx context.Context, centroids core.CentroidSet) error {
	data, err := storage.MarshalCentroidSet(centroids)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// JobQueue implements storage.JobQueue on Redis lists.
type JobQueue struct {
	client Client
}

var _ storage.JobQueue = (*JobQueue)(nil)

// NewJobQueue creates a queue over client.
func NewJobQueue(client Client) *JobQueue {
	return &JobQueue{
		client: client,
	}
}

// Close is a no-op; the client is owned by the caller.
func (q *JobQueue) Close() error {
	return nil
}

// Pop blocks on BLPOP for up to timeout. Returns nil, nil on timeout.
func (q *JobQueue) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	// BLPOP replies with the list name followed by the element
	if len(result) != 2 {
		return nil, fmt.Errorf("%w: unexpected BLPOP reply of %d elements", storage.ErrSerializationFailed, len(result))
	}
	return []byte(result[1]), nil
}

// Push appends msg with RPUSH.
func (q *JobQueue) Push(ctx context.Context, queue string, msg []byte) error {
	return q.client.RPush(ctx, queue, msg).Err()
}

// Len returns the length of the list backing queue.
func (q *JobQueue) Len(ctx context.Context, queue string) (int, error) {
	n, err := q.client.LLen(ctx, queue).Result()
	return int(n), err
}
