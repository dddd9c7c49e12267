package sqlcgen

import (
	"database/sql"
	"time"
)

// WorkItem mirrors a work_items row.
type WorkItem struct {
	ID                 string
	Repo               string
	Type               string
	Status             string
	Priority           string
	Spec               sql.Null[string]
	Description        sql.Null[string]
	Branch             sql.Null[string]
	PRNumber           sql.Null[int32]
	PRURL              sql.Null[string]
	ParentWorkItemID   sql.Null[string]
	VerificationPassed string
	Iteration          int32
	MaxIterations      int32
	RetryCount         int32
	StuckCount         int32
	NextRetryAt        sql.Null[time.Time]
	Source             sql.Null[string]
	SourceRef          sql.Null[string]
	Metadata           []byte
	WorkerID           sql.Null[string]
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        sql.Null[time.Time]
	Error              sql.Null[string]
}

// Worker mirrors a workers row.
type Worker struct {
	ID            string
	WorkItemID    string
	Status        string
	Iteration     int32
	LastHeartbeat time.Time
	StartedAt     time.Time
	TokensIn      int64
	TokensOut     int64
}

// FileLock mirrors a file_locks row.
type FileLock struct {
	Repo       string
	Path       string
	WorkerID   string
	AcquiredAt time.Time
}

// Learning mirrors a learnings row.
type Learning struct {
	ID         string
	Repo       string
	Spec       string
	Content    string
	CreatedAt  time.Time
	WorkItemID string
}

// WorkerMetric mirrors a worker_metrics row.
type WorkerMetric struct {
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

// PRReview mirrors a pr_reviews row.
type PRReview struct {
	WorkItemID     string
	SpecAlignment  string
	CodeQuality    string
	OverallSummary sql.Null[string]
	Findings       []byte
	CreatedAt      time.Time
}

// CronLease mirrors a cron_leases row.
type CronLease struct {
	Name      string
	Holder    string
	ExpiresAt time.Time
}
