package filelock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/filelock"
	"github.com/skylarbarrera/whim/internal/storage/memstore"
)

func TestLockConflict(t *testing.T) {
	s := filelock.New(memstore.New())
	ctx := context.Background()

	r1, err := s.Acquire(ctx, "W1", "o/r", []string{"src/a", "src/b"})
	require.NoError(t, err)
	assert.True(t, r1.Acquired)

	r2, err := s.Acquire(ctx, "W2", "o/r", []string{"src/b", "src/c"})
	require.NoError(t, err)
	assert.False(t, r2.Acquired)
	assert.Equal(t, "W1", r2.ConflictingWorker)

	// src/c must not have been reserved by the failed all-or-nothing request.
	r3, err := s.Acquire(ctx, "W3", "o/r", []string{"src/c"})
	require.NoError(t, err)
	assert.True(t, r3.Acquired)
}

func TestReacquireBySameWorkerIsNoop(t *testing.T) {
	s := filelock.New(memstore.New())
	ctx := context.Background()

	_, err := s.Acquire(ctx, "W1", "o/r", []string{"src/a"})
	require.NoError(t, err)

	r, err := s.Acquire(ctx, "W1", "o/r", []string{"src/a"})
	require.NoError(t, err)
	assert.True(t, r.Acquired)
}

func TestReleaseAllOfFreesEveryPath(t *testing.T) {
	s := filelock.New(memstore.New())
	ctx := context.Background()

	_, err := s.Acquire(ctx, "W1", "o/r", []string{"src/a", "src/b"})
	require.NoError(t, err)

	require.NoError(t, s.ReleaseAllOf(ctx, "W1"))

	r, err := s.Acquire(ctx, "W2", "o/r", []string{"src/a", "src/b"})
	require.NoError(t, err)
	assert.True(t, r.Acquired)
}
