package sqlcgen

import (
	"context"
	"time"
)

// insertFileLock relies on the (repo, path) primary key plus ON
// CONFLICT DO NOTHING to make acquisition a single statement per path:
// a row that already exists (held by anyone, including the same
// worker) is left untouched rather than erroring.
const insertFileLock = `
INSERT INTO file_locks (repo, path, worker_id, acquired_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (repo, path) DO NOTHING`

func (q *Queries) InsertFileLock(ctx context.Context, repo, path, workerID string, now time.Time) (inserted bool, err error) {
	tag, err := q.db.Exec(ctx, insertFileLock, repo, path, workerID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const getFileLockHolder = `SELECT worker_id FROM file_locks WHERE repo = $1 AND path = $2`

func (q *Queries) GetFileLockHolder(ctx context.Context, repo, path string) (string, error) {
	var holder string
	err := q.db.QueryRow(ctx, getFileLockHolder, repo, path).Scan(&holder)
	return holder, err
}

const releaseFileLock = `DELETE FROM file_locks WHERE repo = $1 AND path = $2 AND worker_id = $3`

func (q *Queries) ReleaseFileLock(ctx context.Context, repo, path, workerID string) error {
	_, err := q.db.Exec(ctx, releaseFileLock, repo, path, workerID)
	return err
}

const releaseAllFileLocksOf = `DELETE FROM file_locks WHERE worker_id = $1`

func (q *Queries) ReleaseAllFileLocksOf(ctx context.Context, workerID string) error {
	_, err := q.db.Exec(ctx, releaseAllFileLocksOf, workerID)
	return err
}
