package sqlcgen

import (
	"context"
	"database/sql"
	"time"
)

const insertLearning = `
INSERT INTO learnings (id, repo, spec, content, created_at, work_item_id)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertLearningParams struct {
	ID         string
	Repo       string
	Spec       string
	Content    string
	CreatedAt  time.Time
	WorkItemID string
}

func (q *Queries) InsertLearning(ctx context.Context, p InsertLearningParams) error {
	_, err := q.db.Exec(ctx, insertLearning, p.ID, p.Repo, p.Spec, p.Content, p.CreatedAt, p.WorkItemID)
	return err
}

const listLearnings = `
SELECT id, repo, spec, content, created_at, work_item_id FROM learnings
WHERE ($1 = '' OR repo = $1) AND ($2 = '' OR spec = $2)
ORDER BY created_at DESC`

func (q *Queries) ListLearnings(ctx context.Context, repo, spec string) ([]Learning, error) {
	rows, err := q.db.Query(ctx, listLearnings, repo, spec)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Learning
	for rows.Next() {
		var l Learning
		if err := rows.Scan(&l.ID, &l.Repo, &l.Spec, &l.Content, &l.CreatedAt, &l.WorkItemID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const insertWorkerMetric = `
INSERT INTO worker_metrics (
	id, worker_id, work_item_id, iteration, tokens_in, tokens_out, duration_ms,
	files_modified, tests_run, tests_passed, "timestamp"
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type InsertWorkerMetricParams struct {
	ID            string
	WorkerID      string
	WorkItemID    string
	Iteration     int32
	TokensIn      int64
	TokensOut     int64
	DurationMS    int64
	FilesModified int32
	TestsRun      int32
	TestsPassed   int32
	Timestamp     time.Time
}

func (q *Queries) InsertWorkerMetric(ctx context.Context, p InsertWorkerMetricParams) error {
	_, err := q.db.Exec(ctx, insertWorkerMetric,
		p.ID, p.WorkerID, p.WorkItemID, p.Iteration, p.TokensIn, p.TokensOut, p.DurationMS,
		p.FilesModified, p.TestsRun, p.TestsPassed, p.Timestamp)
	return err
}

const listWorkerMetrics = `
SELECT id, worker_id, work_item_id, iteration, tokens_in, tokens_out, duration_ms,
	files_modified, tests_run, tests_passed, "timestamp"
FROM worker_metrics ORDER BY "timestamp" DESC`

func (q *Queries) ListWorkerMetrics(ctx context.Context) ([]WorkerMetric, error) {
	rows, err := q.db.Query(ctx, listWorkerMetrics)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkerMetric
	for rows.Next() {
		var m WorkerMetric
		if err := rows.Scan(&m.ID, &m.WorkerID, &m.WorkItemID, &m.Iteration, &m.TokensIn, &m.TokensOut,
			&m.DurationMS, &m.FilesModified, &m.TestsRun, &m.TestsPassed, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const upsertPRReview = `
INSERT INTO pr_reviews (work_item_id, spec_alignment, code_quality, overall_summary, findings, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (work_item_id) DO UPDATE SET
	spec_alignment = EXCLUDED.spec_alignment,
	code_quality = EXCLUDED.code_quality,
	overall_summary = EXCLUDED.overall_summary,
	findings = EXCLUDED.findings`

type UpsertPRReviewParams struct {
	WorkItemID     string
	SpecAlignment  string
	CodeQuality    string
	OverallSummary sql.Null[string]
	Findings       []byte
	CreatedAt      time.Time
}

func (q *Queries) UpsertPRReview(ctx context.Context, p UpsertPRReviewParams) error {
	_, err := q.db.Exec(ctx, upsertPRReview,
		p.WorkItemID, p.SpecAlignment, p.CodeQuality, p.OverallSummary, p.Findings, p.CreatedAt)
	return err
}

const listPRReviews = `
SELECT work_item_id, spec_alignment, code_quality, overall_summary, findings, created_at
FROM pr_reviews ORDER BY created_at DESC`

func (q *Queries) ListPRReviews(ctx context.Context) ([]PRReview, error) {
	rows, err := q.db.Query(ctx, listPRReviews)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PRReview
	for rows.Next() {
		var r PRReview
		if err := rows.Scan(&r.WorkItemID, &r.SpecAlignment, &r.CodeQuality, &r.OverallSummary, &r.Findings, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// upsertCronLease implements the TryAcquireExclusiveRun lease: a
// holder acquires or renews the lease unless another holder's lease is
// still unexpired.
const upsertCronLease = `
INSERT INTO cron_leases (name, holder, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE cron_leases.holder = EXCLUDED.holder OR cron_leases.expires_at <= $4
RETURNING holder`

func (q *Queries) UpsertCronLease(ctx context.Context, name, holder string, expiresAt, now time.Time) (string, error) {
	var actualHolder string
	err := q.db.QueryRow(ctx, upsertCronLease, name, holder, expiresAt, now).Scan(&actualHolder)
	return actualHolder, err
}
