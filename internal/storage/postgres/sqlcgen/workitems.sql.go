package sqlcgen

import (
	"context"
	"database/sql"
	"time"
)

const insertWorkItem = `
INSERT INTO work_items (
	id, repo, type, status, priority, spec, description, branch,
	parent_work_item_id, iteration, max_iterations, source, source_ref,
	metadata, created_at, updated_at
) VALUES (
	$1, $2, $3::work_item_type, $4::work_item_status, $5::priority, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)
RETURNING ` + workItemColumns

// InsertWorkItemParams binds every insertable work_items column.
type InsertWorkItemParams struct {
	ID               string
	Repo             string
	Type             string
	Status           string
	Priority         string
	Spec             sql.Null[string]
	Description      sql.Null[string]
	Branch           sql.Null[string]
	ParentWorkItemID sql.Null[string]
	Iteration        int32
	MaxIterations    int32
	Source           sql.Null[string]
	SourceRef        sql.Null[string]
	Metadata         []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (q *Queries) InsertWorkItem(ctx context.Context, p InsertWorkItemParams) (WorkItem, error) {
	row := q.db.QueryRow(ctx, insertWorkItem,
		p.ID, p.Repo, p.Type, p.Status, p.Priority, p.Spec, p.Description, p.Branch,
		p.ParentWorkItemID, p.Iteration, p.MaxIterations, p.Source, p.SourceRef,
		p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	return scanWorkItem(row)
}

const workItemColumns = `
	id, repo, type, status, priority, spec, description, branch, pr_number, pr_url,
	parent_work_item_id, verification_passed, iteration, max_iterations, retry_count,
	stuck_count, next_retry_at, source, source_ref, metadata, worker_id, created_at,
	updated_at, completed_at, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (WorkItem, error) {
	var w WorkItem
	err := row.Scan(
		&w.ID, &w.Repo, &w.Type, &w.Status, &w.Priority, &w.Spec, &w.Description, &w.Branch,
		&w.PRNumber, &w.PRURL, &w.ParentWorkItemID, &w.VerificationPassed, &w.Iteration,
		&w.MaxIterations, &w.RetryCount, &w.StuckCount, &w.NextRetryAt, &w.Source,
		&w.SourceRef, &w.Metadata, &w.WorkerID, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt,
		&w.Error,
	)
	return w, err
}

const getWorkItem = `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1`

func (q *Queries) GetWorkItem(ctx context.Context, id string) (WorkItem, error) {
	return scanWorkItem(q.db.QueryRow(ctx, getWorkItem, id))
}

// claimNextWorkItem selects the single highest-priority visible queued
// item and locks its row, skipping rows already locked by a concurrent
// claimer, per the claim ordering in spec section 4.1. $1 is a nullable
// type filter ("" means no filter); $2 is the reference clock.
const claimNextWorkItem = `
SELECT ` + workItemColumns + `
FROM work_items
WHERE status = 'queued'
  AND (next_retry_at IS NULL OR next_retry_at <= $2)
  AND ($1 = '' OR type::text = $1)
ORDER BY
	(CASE WHEN $1 = '' AND type = 'execution' THEN 0 ELSE 1 END),
	(CASE priority
		WHEN 'critical' THEN 0
		WHEN 'high' THEN 1
		WHEN 'medium' THEN 2
		WHEN 'low' THEN 3
		ELSE 2
	END),
	created_at ASC
FOR UPDATE SKIP LOCKED
LIMIT 1`

const markWorkItemAssigned = `
UPDATE work_items SET status = 'assigned', updated_at = $2 WHERE id = $1
RETURNING ` + workItemColumns

func (q *Queries) ClaimNextWorkItem(ctx context.Context, typeFilter string, now time.Time) (WorkItem, error) {
	row := q.db.QueryRow(ctx, claimNextWorkItem, typeFilter, now)
	candidate, err := scanWorkItem(row)
	if err != nil {
		return WorkItem{}, err
	}
	return scanWorkItem(q.db.QueryRow(ctx, markWorkItemAssigned, candidate.ID, now))
}

const cancelWorkItem = `
UPDATE work_items SET status = 'cancelled', updated_at = $2
WHERE id = $1 AND status IN ('queued', 'assigned')
RETURNING ` + workItemColumns

func (q *Queries) CancelWorkItem(ctx context.Context, id string, now time.Time) (WorkItem, error) {
	return scanWorkItem(q.db.QueryRow(ctx, cancelWorkItem, id, now))
}

const listActiveWorkItems = `
SELECT ` + workItemColumns + `
FROM work_items
WHERE status NOT IN ('completed', 'failed', 'cancelled')
  AND ($1 = '' OR type::text = $1)
ORDER BY
	(CASE WHEN $1 = '' AND type = 'execution' THEN 0 ELSE 1 END),
	(CASE priority
		WHEN 'critical' THEN 0
		WHEN 'high' THEN 1
		WHEN 'medium' THEN 2
		WHEN 'low' THEN 3
		ELSE 2
	END),
	created_at ASC`

func (q *Queries) ListActiveWorkItems(ctx context.Context, typeFilter string) ([]WorkItem, error) {
	rows, err := q.db.Query(ctx, listActiveWorkItems, typeFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const listWorkItemsByStatus = `
SELECT ` + workItemColumns + `
FROM work_items
WHERE status::text = $1
ORDER BY updated_at DESC`

func (q *Queries) ListWorkItemsByStatus(ctx context.Context, status string) ([]WorkItem, error) {
	rows, err := q.db.Query(ctx, listWorkItemsByStatus, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const queueStatsByStatus = `SELECT status, count(*) FROM work_items GROUP BY status`
const queueStatsByPriority = `SELECT priority, count(*) FROM work_items GROUP BY priority`

type StatusCount struct {
	Status string
	Count  int64
}

type PriorityCount struct {
	Priority string
	Count    int64
}

func (q *Queries) QueueStatsByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := q.db.Query(ctx, queueStatsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) QueueStatsByPriority(ctx context.Context) ([]PriorityCount, error) {
	rows, err := q.db.Query(ctx, queueStatsByPriority)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriorityCount
	for rows.Next() {
		var c PriorityCount
		if err := rows.Scan(&c.Priority, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const updateGenerationResult = `
UPDATE work_items SET spec = $2, branch = $3, status = 'queued', updated_at = $4
WHERE id = $1`

func (q *Queries) UpdateGenerationResult(ctx context.Context, id, spec, branch string, now time.Time) error {
	_, err := q.db.Exec(ctx, updateGenerationResult, id, spec, branch, now)
	return err
}

const scheduleGenerationRetry = `
UPDATE work_items SET retry_count = $2, updated_at = $3 WHERE id = $1`

func (q *Queries) ScheduleGenerationRetry(ctx context.Context, id string, attempts int32, now time.Time) error {
	_, err := q.db.Exec(ctx, scheduleGenerationRetry, id, attempts, now)
	return err
}

const failGeneration = `
UPDATE work_items SET status = 'failed', error = $2, updated_at = $3, completed_at = $3
WHERE id = $1`

func (q *Queries) FailGeneration(ctx context.Context, id, errMsg string, now time.Time) error {
	_, err := q.db.Exec(ctx, failGeneration, id, errMsg, now)
	return err
}

const cancelGeneration = `
UPDATE work_items SET status = 'cancelled', updated_at = $2 WHERE id = $1`

func (q *Queries) CancelGeneration(ctx context.Context, id string, now time.Time) error {
	_, err := q.db.Exec(ctx, cancelGeneration, id, now)
	return err
}

const insertVerificationWorkItem = `
INSERT INTO work_items (
	id, repo, type, status, priority, branch, pr_number, parent_work_item_id,
	max_iterations, created_at, updated_at
) VALUES (
	$1, $2, 'verification', 'queued', $3::priority, $4, $5, $6, $7, $8, $8
)
RETURNING ` + workItemColumns

type InsertVerificationWorkItemParams struct {
	ID               string
	Repo             string
	Priority         string
	Branch           sql.Null[string]
	PRNumber         int32
	ParentWorkItemID string
	MaxIterations    int32
	Now              time.Time
}

func (q *Queries) InsertVerificationWorkItem(ctx context.Context, p InsertVerificationWorkItemParams) (WorkItem, error) {
	row := q.db.QueryRow(ctx, insertVerificationWorkItem,
		p.ID, p.Repo, p.Priority, p.Branch, p.PRNumber, p.ParentWorkItemID, p.MaxIterations, p.Now)
	return scanWorkItem(row)
}

const setVerificationPassed = `
UPDATE work_items SET
	status = 'completed', updated_at = $3, completed_at = $3
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
RETURNING parent_work_item_id`

// SetVerificationPassed completes the verification item and returns its
// parent id, or sql.ErrNoRows if the item was already terminal
// (the idempotent no-op path).
func (q *Queries) SetVerificationPassed(ctx context.Context, verificationItemID string, passed bool, now time.Time) (sql.Null[string], error) {
	var parentID sql.Null[string]
	err := q.db.QueryRow(ctx, setVerificationPassed, verificationItemID, passed, now).Scan(&parentID)
	return parentID, err
}

const setParentVerificationResult = `
UPDATE work_items SET verification_passed = $2::tri_state, updated_at = $3 WHERE id = $1`

func (q *Queries) SetParentVerificationResult(ctx context.Context, parentID string, passed string, now time.Time) error {
	_, err := q.db.Exec(ctx, setParentVerificationResult, parentID, passed, now)
	return err
}

// selectStaleAssignedForUpdate locks every assigned item whose most
// recent update predates the registration grace window and that has no
// non-terminal registered worker, so the sweeper's revert-to-queued
// pass is itself concurrency-safe.
const selectStaleAssignedForUpdate = `
SELECT wi.id, wi.retry_count, wi.stuck_count
FROM work_items wi
WHERE wi.status = 'assigned'
  AND wi.updated_at < $1
  AND NOT EXISTS (
	SELECT 1 FROM workers w
	WHERE w.work_item_id = wi.id
	  AND w.status NOT IN ('completed', 'failed', 'stuck', 'killed')
  )
FOR UPDATE OF wi SKIP LOCKED`

type StaleAssignedRow struct {
	ID         string
	RetryCount int32
	StuckCount int32
}

func (q *Queries) SelectStaleAssignedForUpdate(ctx context.Context, olderThan time.Time) ([]StaleAssignedRow, error) {
	rows, err := q.db.Query(ctx, selectStaleAssignedForUpdate, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaleAssignedRow
	for rows.Next() {
		var r StaleAssignedRow
		if err := rows.Scan(&r.ID, &r.RetryCount, &r.StuckCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const revertAssignedToQueued = `
UPDATE work_items SET status = 'queued', next_retry_at = $2, retry_count = $3,
	stuck_count = $4, updated_at = $5
WHERE id = $1`

func (q *Queries) RevertAssignedToQueued(ctx context.Context, id string, nextRetryAt time.Time, retryCount, stuckCount int32, now time.Time) error {
	_, err := q.db.Exec(ctx, revertAssignedToQueued, id, nextRetryAt, retryCount, stuckCount, now)
	return err
}

const failAssigned = `
UPDATE work_items SET status = 'failed', retry_count = $2, stuck_count = $3,
	updated_at = $4, completed_at = $4
WHERE id = $1`

func (q *Queries) FailAssigned(ctx context.Context, id string, retryCount, stuckCount int32, now time.Time) error {
	_, err := q.db.Exec(ctx, failAssigned, id, retryCount, stuckCount, now)
	return err
}

const applyWorkItemRetryDecision = `
UPDATE work_items SET
	status = $2::work_item_status, retry_count = $3, stuck_count = $4, next_retry_at = $5,
	error = $6, updated_at = $7, completed_at = CASE WHEN $2 = 'failed' THEN $7 ELSE completed_at END
WHERE id = $1
RETURNING ` + workItemColumns

type ApplyRetryDecisionParams struct {
	ID          string
	Status      string
	RetryCount  int32
	StuckCount  int32
	NextRetryAt sql.Null[time.Time]
	Error       string
	Now         time.Time
}

func (q *Queries) ApplyWorkItemRetryDecision(ctx context.Context, p ApplyRetryDecisionParams) (WorkItem, error) {
	row := q.db.QueryRow(ctx, applyWorkItemRetryDecision,
		p.ID, p.Status, p.RetryCount, p.StuckCount, p.NextRetryAt, p.Error, p.Now)
	return scanWorkItem(row)
}

const completeWorkItem = `
UPDATE work_items SET
	status = 'completed', pr_number = $2, pr_url = $3, updated_at = $4, completed_at = $4
WHERE id = $1
RETURNING ` + workItemColumns

func (q *Queries) CompleteWorkItem(ctx context.Context, id string, prNumber sql.Null[int32], prURL sql.Null[string], now time.Time) (WorkItem, error) {
	row := q.db.QueryRow(ctx, completeWorkItem, id, prNumber, prURL, now)
	return scanWorkItem(row)
}

const revertWorkItemToQueued = `
UPDATE work_items SET status = 'queued', updated_at = $2 WHERE id = $1 AND status != ALL('{completed,failed,cancelled}'::work_item_status[])`

func (q *Queries) RevertWorkItemToQueued(ctx context.Context, id string, now time.Time) error {
	_, err := q.db.Exec(ctx, revertWorkItemToQueued, id, now)
	return err
}
