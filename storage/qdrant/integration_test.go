//go:build integration

package qdrant

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcqdrant "github.com/testcontainers/testcontainers-go/modules/qdrant"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupQdrant(t *testing.T) *VectorIndex {
	t.Helper()

	ctx := context.Background()

	container, err := tcqdrant.Run(ctx,
		"qdrant/qdrant:v1.12.0",
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/readyz").
				WithPort("6333/tcp").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start qdrant: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.GRPCEndpoint(ctx)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(endpoint)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := NewClient(Options{Host: host, Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	index := New(client, Config{Collection: "levels_test", Wait: true})
	created, err := index.EnsureCollection(ctx, 2)
	require.NoError(t, err)
	require.True(t, created)
	return index
}

func TestIntegration_VectorIndex(t *testing.T) {
	index := setupQdrant(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, index.Upsert(ctx, core.ID(i), core.Vector{float32(i), 1}, map[string]any{
			storage.PayloadLevel: i % 3,
			storage.PayloadType:  storage.PointTypePost,
		}))
	}

	n, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	var seen []core.ID
	var cursor storage.Cursor
	for {
		page, next, err := index.Scroll(ctx, 2, cursor)
		require.NoError(t, err)
		for _, r := range page {
			assert.Len(t, r.Vector, 2)
			assert.True(t, r.Labeled)
			seen = append(seen, r.Id)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, []core.ID{1, 2, 3, 4, 5}, seen)

	require.NoError(t, index.SetPayload(ctx, 4, map[string]any{storage.PayloadLevel: 2}))
	records, err := index.Retrieve(ctx, []core.ID{4}, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.Level(2), records[0].Level)
}
