// Package filelock implements the File-Lock Service: at-most-one
// concurrent writer per (repo, path) across workers that may be
// operating on the same repository concurrently.
package filelock

import (
	"context"
	"time"

	"github.com/skylarbarrera/whim/internal/store"
)

// Service is the File-Lock Service described in the core design.
type Service struct {
	store store.Store
	now   func() time.Time
}

// New constructs a Service backed by s.
func New(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// AcquireResult is the outcome of an Acquire call.
type AcquireResult struct {
	Acquired          bool
	ConflictingWorker string
}

// Acquire reserves every path in paths for workerID, all-or-nothing. If
// any path is already held by a different worker, nothing is reserved
// and the first conflicting holder is reported. Re-acquiring a path
// already held by the same worker is a no-op success.
func (s *Service) Acquire(ctx context.Context, workerID, repo string, paths []string) (AcquireResult, error) {
	acquired, conflict, err := s.store.AcquireLocks(ctx, workerID, repo, paths, s.now())
	if err != nil {
		return AcquireResult{}, err
	}
	return AcquireResult{Acquired: acquired, ConflictingWorker: conflict}, nil
}

// Release drops workerID's locks over the given paths.
func (s *Service) Release(ctx context.Context, workerID, repo string, paths []string) error {
	return s.store.ReleaseLocks(ctx, workerID, repo, paths)
}

// ReleaseAllOf drops every lock held by workerID, regardless of repo.
// Invoked by the registry on any terminal worker transition.
func (s *Service) ReleaseAllOf(ctx context.Context, workerID string) error {
	return s.store.ReleaseAllLocksOf(ctx, workerID)
}
