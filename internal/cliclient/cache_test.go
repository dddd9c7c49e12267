package cliclient_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/cliclient"
)

func TestCachePutAndGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := cliclient.OpenCache(path)
	require.NoError(t, err)
	defer c.Close()

	_, _, ok, err := c.Get(ctx, "status")
	require.NoError(t, err)
	assert.False(t, ok, "nothing cached yet")

	payload := json.RawMessage(`{"queue":{"total":3}}`)
	require.NoError(t, c.Put(ctx, "status", payload))

	got, fetchedAt, ok, err := c.Get(ctx, "status")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))
	assert.False(t, fetchedAt.IsZero())
}

func TestCachePutOverwritesPriorSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := cliclient.OpenCache(path)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(ctx, "queue", json.RawMessage(`[1]`)))
	require.NoError(t, c.Put(ctx, "queue", json.RawMessage(`[1,2]`)))

	got, _, ok, err := c.Get(ctx, "queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[1,2]`, string(got))
}

func TestCacheKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := cliclient.OpenCache(path)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(ctx, "queue", json.RawMessage(`[]`)))
	_, _, ok, err := c.Get(ctx, "workers")
	require.NoError(t, err)
	assert.False(t, ok)
}
