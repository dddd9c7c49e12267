// Package queue implements the priority-ordered work-item queue: atomic
// submission, claim, cancellation, and the read surfaces backing the
// queue/status HTTP endpoints.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/store"
)

const (
	defaultMaxIterations = 50
	defaultPriority      = domain.PriorityMedium
)

// SubmitRequest mirrors the submission API body.
type SubmitRequest struct {
	Repo          string
	Description   *string
	Spec          *string
	Branch        *string
	Priority      domain.Priority
	MaxIterations int
	Source        *string
	SourceRef     *string
	Metadata      map[string]any
}

// Manager is the Queue Manager described in the core design: it owns
// submission, claim, cancellation, and the verification hand-off.
type Manager struct {
	store store.Store
	now   func() time.Time
}

// New constructs a Manager backed by the given store.Store.
func New(s store.Store) *Manager {
	return &Manager{store: s, now: time.Now}
}

// Submit validates and creates a new WorkItem.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (domain.WorkItem, error) {
	hasDescription := req.Description != nil && *req.Description != ""
	hasSpec := req.Spec != nil && *req.Spec != ""
	if hasDescription == hasSpec {
		return domain.WorkItem{}, fmt.Errorf("%w: exactly one of description or spec is required", domain.ErrInvalidTransition)
	}
	if req.Repo == "" {
		return domain.WorkItem{}, fmt.Errorf("%w: repo is required", domain.ErrInvalidTransition)
	}

	priority := req.Priority
	if !priority.Valid() {
		priority = defaultPriority
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	now := m.now()
	id := uuid.NewString()

	item := domain.WorkItem{
		ID:            id,
		Repo:          req.Repo,
		Type:          domain.WorkItemTypeExecution,
		Priority:      priority,
		MaxIterations: maxIterations,
		Source:        req.Source,
		SourceRef:     req.SourceRef,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if hasDescription {
		item.Status = domain.StatusGenerating
		item.Description = req.Description
	} else {
		item.Status = domain.StatusQueued
		item.Spec = req.Spec
		branch := req.Branch
		if branch == nil || *branch == "" {
			b := fmt.Sprintf("whim/%s", id[:8])
			branch = &b
		}
		item.Branch = branch
	}

	return m.store.InsertWorkItem(ctx, item)
}

// Get returns the work item by id.
func (m *Manager) Get(ctx context.Context, id string) (domain.WorkItem, error) {
	return m.store.GetWorkItem(ctx, id)
}

// ClaimNext atomically claims the single highest-priority visible item,
// optionally restricted to typeFilter.
func (m *Manager) ClaimNext(ctx context.Context, typeFilter *domain.WorkItemType) (domain.WorkItem, error) {
	return m.store.ClaimNextWorkItem(ctx, typeFilter, m.now())
}

// Cancel transitions {queued, assigned} -> cancelled. Returns whether the
// transition occurred.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	return m.store.CancelWorkItem(ctx, id, m.now())
}

// List returns active (non-terminal) items in claim order.
func (m *Manager) List(ctx context.Context, typeFilter *domain.WorkItemType) ([]domain.WorkItem, error) {
	return m.store.ListActiveWorkItems(ctx, typeFilter)
}

// Stats returns the denormalized queue projection.
func (m *Manager) Stats(ctx context.Context) (store.QueueStats, error) {
	return m.store.QueueStats(ctx)
}

// ListByStatus returns every item in the given status, including
// terminal ones. It backs the dead-letter review surface (failed
// items) without introducing a separate entity.
func (m *Manager) ListByStatus(ctx context.Context, status domain.WorkItemStatus) ([]domain.WorkItem, error) {
	return m.store.ListByStatus(ctx, status)
}

// EnqueueVerification creates the paired verification item for a
// completed execution item.
func (m *Manager) EnqueueVerification(ctx context.Context, parent domain.WorkItem, prNumber int) (domain.WorkItem, error) {
	return m.store.EnqueueVerification(ctx, parent, prNumber, m.now())
}
