package sqlcgen

import (
	"context"
	"time"
)

const workerColumns = `id, work_item_id, status, iteration, last_heartbeat, started_at, tokens_in, tokens_out`

func scanWorker(row rowScanner) (Worker, error) {
	var w Worker
	err := row.Scan(&w.ID, &w.WorkItemID, &w.Status, &w.Iteration, &w.LastHeartbeat, &w.StartedAt, &w.TokensIn, &w.TokensOut)
	return w, err
}

const insertWorker = `
INSERT INTO workers (id, work_item_id, status, iteration, last_heartbeat, started_at, tokens_in, tokens_out)
VALUES ($1, $2, 'starting', 0, $3, $3, 0, 0)
RETURNING ` + workerColumns

func (q *Queries) InsertWorker(ctx context.Context, id, workItemID string, now time.Time) (Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, insertWorker, id, workItemID, now))
}

const markWorkItemInProgress = `
UPDATE work_items SET status = 'in_progress', worker_id = $2, updated_at = $3 WHERE id = $1`

func (q *Queries) MarkWorkItemInProgress(ctx context.Context, workItemID, workerID string, now time.Time) error {
	_, err := q.db.Exec(ctx, markWorkItemInProgress, workItemID, workerID, now)
	return err
}

const getWorker = `SELECT ` + workerColumns + ` FROM workers WHERE id = $1`

func (q *Queries) GetWorker(ctx context.Context, id string) (Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, getWorker, id))
}

// getWorkerForUpdate locks the worker row so a terminal-status check and
// the subsequent transition happen atomically against concurrent RPCs
// for the same workerID.
const getWorkerForUpdate = `SELECT ` + workerColumns + ` FROM workers WHERE id = $1 FOR UPDATE`

func (q *Queries) GetWorkerForUpdate(ctx context.Context, id string) (Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, getWorkerForUpdate, id))
}

const heartbeat = `
UPDATE workers SET status = 'running', iteration = $2, last_heartbeat = $5, tokens_in = $3, tokens_out = $4
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'stuck', 'killed')
RETURNING ` + workerColumns

func (q *Queries) Heartbeat(ctx context.Context, workerID string, iteration int32, tokensIn, tokensOut int64, now time.Time) (Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, heartbeat, workerID, iteration, tokensIn, tokensOut, now))
}

const setWorkerStatus = `UPDATE workers SET status = $2::worker_status, iteration = $3 WHERE id = $1`

func (q *Queries) SetWorkerStatus(ctx context.Context, id, status string, iteration int32) error {
	_, err := q.db.Exec(ctx, setWorkerStatus, id, status, iteration)
	return err
}

const listStaleWorkers = `
SELECT ` + workerColumns + `
FROM workers
WHERE status NOT IN ('completed', 'failed', 'stuck', 'killed')
  AND last_heartbeat < $1
FOR UPDATE SKIP LOCKED`

func (q *Queries) ListStaleWorkers(ctx context.Context, staleBefore time.Time) ([]Worker, error) {
	rows, err := q.db.Query(ctx, listStaleWorkers, staleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const listWorkers = `SELECT ` + workerColumns + ` FROM workers ORDER BY started_at DESC`

func (q *Queries) ListWorkers(ctx context.Context) ([]Worker, error) {
	rows, err := q.db.Query(ctx, listWorkers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
