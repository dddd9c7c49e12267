package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

// AcquireLocks reserves every path in paths for workerID, all-or-nothing.
// Each path is inserted with ON CONFLICT DO NOTHING; the first path that
// fails to insert and isn't already held by workerID aborts the whole
// transaction so no partial lock set survives.
func (s *Store) AcquireLocks(ctx context.Context, workerID, repo string, paths []string, now time.Time) (acquired bool, conflictingWorker string, err error) {
	err = s.withTx(ctx, "acquire_locks", func(q *sqlcgen.Queries) error {
		for _, p := range paths {
			inserted, err := q.InsertFileLock(ctx, repo, p, workerID, now)
			if err != nil {
				return err
			}
			if inserted {
				continue
			}
			holder, err := q.GetFileLockHolder(ctx, repo, p)
			if err != nil {
				return err
			}
			if holder != workerID {
				conflictingWorker = holder
				return errLockConflict
			}
		}
		acquired = true
		return nil
	})
	if err == errLockConflict {
		return false, conflictingWorker, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("acquire locks: %w", err)
	}
	return acquired, "", nil
}

// errLockConflict signals withTx to roll back without surfacing an
// error to the caller; AcquireLocks translates it into a clean false
// result instead of propagating it.
var errLockConflict = fmt.Errorf("file lock held by another worker")

func (s *Store) ReleaseLocks(ctx context.Context, workerID, repo string, paths []string) error {
	return s.withTx(ctx, "release_locks", func(q *sqlcgen.Queries) error {
		for _, p := range paths {
			if err := q.ReleaseFileLock(ctx, repo, p, workerID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReleaseAllLocksOf(ctx context.Context, workerID string) error {
	if err := s.queries.ReleaseAllFileLocksOf(ctx, workerID); err != nil {
		return fmt.Errorf("release all locks of: %w", err)
	}
	return nil
}
