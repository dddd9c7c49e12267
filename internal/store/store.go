// Package store defines the single storage abstraction used by every
// component of the orchestrator. Exactly one interface is implemented by
// both a Postgres-backed store and an in-memory store used in tests,
// mirroring the teacher repo's single multi-backend storage interface.
package store

import (
	"context"
	"time"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/retry"
)

// QueueStats is the denormalized projection returned by the queue's
// stats read surface.
type QueueStats struct {
	Total      int
	ByStatus   map[domain.WorkItemStatus]int
	ByPriority map[domain.Priority]int
}

// CompleteResult bundles everything a worker may report on completion.
type CompleteResult struct {
	PRURL               *string
	PRNumber            *int
	VerificationEnabled bool
	Metrics             []domain.WorkerMetric
	Learnings           []domain.Learning
	Review              *domain.PRReview
}

// Store is the transactional persistence boundary for work items,
// workers, file locks, learnings, metrics, and PR reviews.
//
// Implementations must honor the claim ordering and locking discipline
// laid out for the Queue Manager and File-Lock Service: ClaimNextWorkItem
// must be safe under concurrent callers and must never return the same
// row to two callers; AcquireLocks must be all-or-nothing.
type Store interface {
	InsertWorkItem(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error)
	GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error)

	// ClaimNextWorkItem atomically selects and reserves the next
	// claimable item per the exact ordering rules, or returns
	// domain.ErrQueueEmpty when nothing is claimable.
	ClaimNextWorkItem(ctx context.Context, typeFilter *domain.WorkItemType, now time.Time) (domain.WorkItem, error)

	CancelWorkItem(ctx context.Context, id string, now time.Time) (bool, error)
	ListActiveWorkItems(ctx context.Context, typeFilter *domain.WorkItemType) ([]domain.WorkItem, error)
	// ListByStatus returns every work item in the given status,
	// including terminal ones; it backs the dead-letter review surface.
	ListByStatus(ctx context.Context, status domain.WorkItemStatus) ([]domain.WorkItem, error)
	QueueStats(ctx context.Context) (QueueStats, error)

	// UpdateGenerationResult transitions a generating item to queued
	// with the derived spec and branch.
	UpdateGenerationResult(ctx context.Context, id, spec, branch string, now time.Time) error
	// ScheduleGenerationRetry records a spec-gen attempt failure that
	// is still within budget.
	ScheduleGenerationRetry(ctx context.Context, id string, attempts int, now time.Time) error
	FailGeneration(ctx context.Context, id, errMsg string, now time.Time) error
	CancelGeneration(ctx context.Context, id string, now time.Time) error

	EnqueueVerification(ctx context.Context, parent domain.WorkItem, prNumber int, now time.Time) (domain.WorkItem, error)

	// RevertStaleAssigned reclaims items stuck in assigned with no
	// registered worker older than the registration grace window.
	RevertStaleAssigned(ctx context.Context, olderThan time.Time, p retry.Policy, now time.Time) (int, error)

	RegisterWorker(ctx context.Context, workItemID, workerID string, now time.Time) (domain.Worker, error)
	GetWorker(ctx context.Context, workerID string) (domain.Worker, error)
	Heartbeat(ctx context.Context, workerID string, iteration int, tokensIn, tokensOut int64, now time.Time) error
	CompleteWorker(ctx context.Context, workerID string, result CompleteResult, now time.Time) (domain.WorkItem, error)
	// CompleteVerification atomically completes the verification
	// worker and its work item and sets the parent execution item's
	// verificationPassed field. The worker's terminality is the sole
	// idempotency guard: a second call for an already-terminal worker
	// is a no-op and returns no error.
	CompleteVerification(ctx context.Context, workerID string, passed bool, now time.Time) error
	FailWorker(ctx context.Context, workerID, errMsg string, iteration int, p retry.Policy, now time.Time) (domain.WorkItem, error)
	MarkStuck(ctx context.Context, workerID, reason string, p retry.Policy, now time.Time) (domain.WorkItem, error)
	KillWorker(ctx context.Context, workerID string, now time.Time) error
	ListStaleWorkers(ctx context.Context, staleBefore time.Time) ([]domain.Worker, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)

	AcquireLocks(ctx context.Context, workerID, repo string, paths []string, now time.Time) (acquired bool, conflictingWorker string, err error)
	ReleaseLocks(ctx context.Context, workerID, repo string, paths []string) error
	ReleaseAllLocksOf(ctx context.Context, workerID string) error

	AppendLearning(ctx context.Context, l domain.Learning) error
	ListLearnings(ctx context.Context, repo, spec string) ([]domain.Learning, error)
	AppendWorkerMetric(ctx context.Context, m domain.WorkerMetric) error
	ListWorkerMetrics(ctx context.Context) ([]domain.WorkerMetric, error)
	UpsertPRReview(ctx context.Context, r domain.PRReview) error
	ListPRReviews(ctx context.Context) ([]domain.PRReview, error)

	// TryAcquireExclusiveRun implements the singleton-lease pattern
	// used by the staleness sweeper so only one orchestrator instance
	// runs a given periodic task at a time.
	TryAcquireExclusiveRun(ctx context.Context, leaseName, holder string, ttl time.Duration, now time.Time) (bool, error)
}
