package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_FIFO(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, stores.Queue.Push(ctx, "queue:inference", []byte(fmt.Sprintf("job-%d", i))))
	}

	n, err := stores.Queue.Len(ctx, "queue:inference")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for i := range 3 {
		msg, err := stores.Queue.Pop(ctx, "queue:inference", time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("job-%d", i), string(msg))
	}

	n, err = stores.Queue.Len(ctx, "queue:inference")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobQueue_PopTimeout(t *testing.T) {
	stores := setupStores(t)

	start := time.Now()
	msg, err := stores.Queue.Pop(context.Background(), "queue:empty", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestJobQueue_PopWakesOnPush(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	done := make(chan []byte, 1)
	go func() {
		msg, err := stores.Queue.Pop(ctx, "queue:feedback", 5*time.Second)
		assert.NoError(t, err)
		done <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stores.Queue.Push(ctx, "queue:feedback", []byte("hello")))

	select {
	case msg := <-done:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestJobQueue_PopCancelled(t *testing.T) {
	stores := setupStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stores.Queue.Pop(ctx, "queue:inference", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobQueue_QueuesAreIndependent(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	require.NoError(t, stores.Queue.Push(ctx, "a", []byte("for a")))
	require.NoError(t, stores.Queue.Push(ctx, "a:b", []byte("for a:b")))

	msg, err := stores.Queue.Pop(ctx, "a", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "for a", string(msg))

	msg, err = stores.Queue.Pop(ctx, "a", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg, "a must not see messages of a:b")
}

func TestJobQueue_ConcurrentPoppersDeliverOnce(t *testing.T) {
	stores := setupStores(t)
	ctx := context.Background()

	const total = 50
	for i := range total {
		require.NoError(t, stores.Queue.Push(ctx, "q", []byte(fmt.Sprintf("%d", i))))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, err := stores.Queue.Pop(ctx, "q", 20*time.Millisecond)
				if !assert.NoError(t, err) || msg == nil {
					return
				}
				mu.Lock()
				seen[string(msg)]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for msg, count := range seen {
		assert.Equal(t, 1, count, "message %s delivered %d times", msg, count)
	}
}
