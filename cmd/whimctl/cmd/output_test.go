package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/cliclient"
)

func withCache(t *testing.T) *cliclient.Cache {
	t.Helper()
	c, err := cliclient.OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestColumnOrderIsSortedUnionOfKeys(t *testing.T) {
	rows := []map[string]any{
		{"b": 1, "a": 2},
		{"c": 3},
	}
	assert.Equal(t, []string{"a", "b", "c"}, columnOrder(rows))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "hello", formatCell("hello"))
	assert.Equal(t, "3", formatCell(float64(3)))
	assert.Equal(t, `["x","y"]`, formatCell([]any{"x", "y"}))
}

func TestCacheKeyFor(t *testing.T) {
	assert.Equal(t, "whimctl:dlq", cacheKeyFor("dlq"))
	assert.Equal(t, "whimctl:learnings:o/r:s1", cacheKeyFor("learnings", "o/r", "s1"))
}

func TestFetchOrCacheLiveFetchPopulatesCache(t *testing.T) {
	cache = withCache(t)
	offline = false
	defer func() { offline = false }()

	ctx := context.Background()
	payload, err := fetchOrCache(ctx, "k1", func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(payload))

	cached, _, ok, err := cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(cached))
}

func TestFetchOrCacheFallsBackOnFetchError(t *testing.T) {
	cache = withCache(t)
	offline = false
	defer func() { offline = false }()

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "k2", json.RawMessage(`{"stale":true}`)))

	payload, err := fetchOrCache(ctx, "k2", func(context.Context) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stale":true}`, string(payload))
}

func TestFetchOrCachePropagatesErrorWithNoCacheFallback(t *testing.T) {
	cache = withCache(t)
	offline = false
	defer func() { offline = false }()

	_, err := fetchOrCache(context.Background(), "never-cached", func(context.Context) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	})
	assert.Error(t, err)
}

func TestFetchOrCacheOfflineServesCacheOnly(t *testing.T) {
	cache = withCache(t)
	offline = true
	defer func() { offline = false }()

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "k3", json.RawMessage(`{"offline":true}`)))

	fetchCalled := false
	payload, err := fetchOrCache(ctx, "k3", func(context.Context) (json.RawMessage, error) {
		fetchCalled = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, fetchCalled, "offline mode must never call the live fetch")
	assert.JSONEq(t, `{"offline":true}`, string(payload))
}

func TestFetchOrCacheOfflineErrorsWithoutSnapshot(t *testing.T) {
	cache = withCache(t)
	offline = true
	defer func() { offline = false }()

	_, err := fetchOrCache(context.Background(), "missing-key", func(context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestPrintPayloadTableAndJSON(t *testing.T) {
	outputFormat = "json"
	defer func() { outputFormat = "table" }()

	out := captureStdout(t, func() {
		require.NoError(t, printPayload(json.RawMessage(`{"a":1}`)))
	})
	assert.Contains(t, out, `"a": 1`)

	outputFormat = "table"
	out = captureStdout(t, func() {
		require.NoError(t, printPayload(json.RawMessage(`[{"id":"w1","status":"queued"}]`)))
	})
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "w1")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}
