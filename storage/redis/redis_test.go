package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client holding string keys and lists.
type fakeClient struct {
	mu       sync.Mutex
	values   map[string]string
	lists    map[string][]string
	timeouts []time.Duration
	err      error
	closed   bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}
}

func (f *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, timeout)
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	for _, key := range keys {
		if list := f.lists[key]; len(list) > 0 {
			f.lists[key] = list[1:]
			return redis.NewStringSliceResult([]string{key, list[0]}, nil)
		}
	}
	return redis.NewStringSliceResult(nil, redis.Nil)
}

func (f *fakeClient) RPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, value := range values {
		switch v := value.(type) {
		case []byte:
			f.lists[key] = append(f.lists[key], string(v))
		case string:
			f.lists[key] = append(f.lists[key], v)
		}
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeClient) LLen(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestCentroidStore_GetMissing(t *testing.T) {
	store := NewCentroidStore(newFakeClient(), "")

	cs, err := store.GetCentroids(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cs)
}

func TestCentroidStore_SetGet(t *testing.T) {
	client := newFakeClient()
	store := NewCentroidStore(client, "")
	ctx := context.Background()

	original := core.CentroidSet{0: {1, 0}, 2: {0, 1}}
	require.NoError(t, store.SetCentroids(ctx, original))
	assert.Contains(t, client.values, DefaultCentroidKey)
	assert.JSONEq(t, `{"0":[1,0],"2":[0,1]}`, client.values[DefaultCentroidKey])

	got, err := store.GetCentroids(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestCentroidStore_ReadsExistingFormat(t *testing.T) {
	client := newFakeClient()
	client.values["custom:key"] = `{"0": [0.6, 0.8], "1": [1.0, 0.0]}`
	store := NewCentroidStore(client, "custom:key")

	got, err := store.GetCentroids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.CentroidSet{0: {0.6, 0.8}, 1: {1, 0}}, got)
}

func TestCentroidStore_Errors(t *testing.T) {
	client := newFakeClient()
	client.values[DefaultCentroidKey] = "not json"
	store := NewCentroidStore(client, "")

	_, err := store.GetCentroids(context.Background())
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)

	boom := errors.New("connection refused")
	client.err = boom
	_, err = store.GetCentroids(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.SetCentroids(context.Background(), core.CentroidSet{0: {1}}), boom)
}

func TestJobQueue_PushPop(t *testing.T) {
	client := newFakeClient()
	queue := NewJobQueue(client)
	ctx := context.Background()

	require.NoError(t, queue.Push(ctx, "queue:inference", []byte(`{"job_id":"a"}`)))
	require.NoError(t, queue.Push(ctx, "queue:inference", []byte(`{"job_id":"b"}`)))

	n, err := queue.Len(ctx, "queue:inference")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msg, err := queue.Pop(ctx, "queue:inference", time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"job_id":"a"}`, string(msg))

	msg, err = queue.Pop(ctx, "queue:inference", time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"job_id":"b"}`, string(msg))

	assert.Equal(t, []time.Duration{time.Second, time.Second}, client.timeouts)
}

func TestJobQueue_PopTimeout(t *testing.T) {
	queue := NewJobQueue(newFakeClient())

	msg, err := queue.Pop(context.Background(), "queue:feedback", time.Second)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestJobQueue_PopError(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("i/o timeout")
	queue := NewJobQueue(client)

	_, err := queue.Pop(context.Background(), "queue:feedback", time.Second)
	assert.ErrorIs(t, err, client.err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = queue.Pop(ctx, "queue:feedback", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
