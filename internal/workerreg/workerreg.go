// Package workerreg implements the Worker Registry: per-worker lifecycle
// records, heartbeat ingestion, and the completion/failure/stuck/kill
// RPCs that drive the worker and work-item state machines together.
package workerreg

import (
	"context"
	"time"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/store"
)

// Registry is the Worker Registry described in the core design.
type Registry struct {
	store  store.Store
	policy retry.Policy
	now    func() time.Time
}

// New constructs a Registry backed by s, applying policy to every
// failure and stuck transition.
func New(s store.Store, policy retry.Policy) *Registry {
	return &Registry{store: s, policy: policy, now: time.Now}
}

// Register creates a Worker in starting and transitions the work item to
// in_progress.
func (r *Registry) Register(ctx context.Context, workItemID, workerID string) (domain.Worker, error) {
	return r.store.RegisterWorker(ctx, workItemID, workerID, r.now())
}

// Heartbeat updates lastHeartbeat, iteration, and rolling token counters.
// Returns domain.ErrOwnershipLost if the worker is missing or terminal;
// the caller (HTTP handler) should instruct the worker to stop.
func (r *Registry) Heartbeat(ctx context.Context, workerID string, iteration int, tokensIn, tokensOut int64) error {
	return r.store.Heartbeat(ctx, workerID, iteration, tokensIn, tokensOut, r.now())
}

// CompleteRequest bundles the optional fields a worker may report on
// completion of an execution item.
type CompleteRequest struct {
	PRURL               *string
	PRNumber            *int
	VerificationEnabled bool
	Metrics             []domain.WorkerMetric
	Learnings           []domain.Learning
	Review              *domain.PRReview
}

// Complete transitions the worker and its work item to completed; if a
// PR number is present and verification is enabled, a verification item
// is atomically enqueued.
func (r *Registry) Complete(ctx context.Context, workerID string, req CompleteRequest) (domain.WorkItem, error) {
	return r.store.CompleteWorker(ctx, workerID, store.CompleteResult{
		PRURL:               req.PRURL,
		PRNumber:            req.PRNumber,
		VerificationEnabled: req.VerificationEnabled,
		Metrics:             req.Metrics,
		Learnings:           req.Learnings,
		Review:              req.Review,
	}, r.now())
}

// CompleteVerification is terminal for verification workers: it marks
// the worker and its verification item completed and sets the parent
// execution item's verificationPassed field, all as one atomic store
// operation gated on the worker's terminality. Idempotent: a second
// call for an already-terminal worker is a no-op.
func (r *Registry) CompleteVerification(ctx context.Context, workerID string, passed bool) error {
	return r.store.CompleteVerification(ctx, workerID, passed, r.now())
}

// Fail transitions the worker to failed and applies the retry policy to
// its work item.
func (r *Registry) Fail(ctx context.Context, workerID, errMsg string, iteration int) (domain.WorkItem, error) {
	return r.store.FailWorker(ctx, workerID, errMsg, iteration, r.policy, r.now())
}

// Stuck transitions the worker to stuck and applies the retry policy
// (tracked with the distinct stuck counter) to its work item.
func (r *Registry) Stuck(ctx context.Context, workerID, reason string, attempts int) (domain.WorkItem, error) {
	return r.store.MarkStuck(ctx, workerID, reason, r.policy, r.now())
}

// Kill is an operator-initiated transition to killed; it releases the
// worker's locks and returns its work item to queued.
func (r *Registry) Kill(ctx context.Context, workerID string) error {
	return r.store.KillWorker(ctx, workerID, r.now())
}

// ListWorkers returns every worker record for the status read surface.
func (r *Registry) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	return r.store.ListWorkers(ctx)
}
