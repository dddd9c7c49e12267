// Package memstore is a mutex-guarded, in-process implementation of
// store.Store used by tests and by the orchestrator's "memory" storage
// driver. It stands in
// for "select for update skip locked": the claim scan and the mutation
// that follows it happen while the single mutex is held, so no claimed
// row is ever released to a second caller before the claim completes.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/store"
)

type lockKey struct {
	repo string
	path string
}

type lease struct {
	holder    string
	expiresAt time.Time
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex

	items   map[string]domain.WorkItem
	workers map[string]domain.Worker
	locks   map[lockKey]domain.FileLock

	learnings []domain.Learning
	metrics   []domain.WorkerMetric
	reviews   map[string]domain.PRReview

	leases map[string]lease
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		items:   make(map[string]domain.WorkItem),
		workers: make(map[string]domain.Worker),
		locks:   make(map[lockKey]domain.FileLock),
		reviews: make(map[string]domain.PRReview),
		leases:  make(map[string]lease),
	}
}

func (s *Store) InsertWorkItem(_ context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if _, exists := s.items[item.ID]; exists {
		return domain.WorkItem{}, domain.ErrAlreadyExists
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) GetWorkItem(_ context.Context, id string) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}
	return item, nil
}

func claimLess(typeFilter *domain.WorkItemType) func(a, b domain.WorkItem) bool {
	return func(a, b domain.WorkItem) bool {
		if typeFilter == nil {
			aExec := a.Type == domain.WorkItemTypeExecution
			bExec := b.Type == domain.WorkItemTypeExecution
			if aExec != bExec {
				return aExec
			}
		}
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func (s *Store) ClaimNextWorkItem(_ context.Context, typeFilter *domain.WorkItemType, now time.Time) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []domain.WorkItem
	for _, item := range s.items {
		if item.Status != domain.StatusQueued {
			continue
		}
		if item.NextRetryAt != nil && item.NextRetryAt.After(now) {
			continue
		}
		if typeFilter != nil && item.Type != *typeFilter {
			continue
		}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return domain.WorkItem{}, domain.ErrQueueEmpty
	}

	less := claimLess(typeFilter)
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	winner := candidates[0]
	winner.Status = domain.StatusAssigned
	winner.UpdatedAt = now
	s.items[winner.ID] = winner
	return winner, nil
}

func (s *Store) CancelWorkItem(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if item.Status != domain.StatusQueued && item.Status != domain.StatusAssigned {
		return false, nil
	}
	item.Status = domain.StatusCancelled
	item.UpdatedAt = now
	s.items[id] = item
	return true, nil
}

func (s *Store) ListActiveWorkItems(_ context.Context, typeFilter *domain.WorkItemType) ([]domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WorkItem
	for _, item := range s.items {
		if item.Status.IsTerminal() {
			continue
		}
		if typeFilter != nil && item.Type != *typeFilter {
			continue
		}
		out = append(out, item)
	}
	less := claimLess(typeFilter)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func (s *Store) ListByStatus(_ context.Context, status domain.WorkItemStatus) ([]domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WorkItem
	for _, item := range s.items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) QueueStats(_ context.Context) (store.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := store.QueueStats{
		ByStatus:   make(map[domain.WorkItemStatus]int),
		ByPriority: make(map[domain.Priority]int),
	}
	for _, item := range s.items {
		stats.Total++
		stats.ByStatus[item.Status]++
		stats.ByPriority[item.Priority]++
	}
	return stats, nil
}

func (s *Store) UpdateGenerationResult(_ context.Context, id, spec, branch string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.Spec = &spec
	item.Branch = &branch
	item.Status = domain.StatusQueued
	item.UpdatedAt = now
	s.items[id] = item
	return nil
}

func (s *Store) ScheduleGenerationRetry(_ context.Context, id string, attempts int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.RetryCount = attempts
	item.UpdatedAt = now
	s.items[id] = item
	return nil
}

func (s *Store) FailGeneration(_ context.Context, id, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.Status = domain.StatusFailed
	item.Error = &errMsg
	item.UpdatedAt = now
	item.CompletedAt = &now
	s.items[id] = item
	return nil
}

func (s *Store) CancelGeneration(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.Status = domain.StatusCancelled
	item.UpdatedAt = now
	s.items[id] = item
	return nil
}

func (s *Store) EnqueueVerification(_ context.Context, parent domain.WorkItem, prNumber int, now time.Time) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	parentID := parent.ID
	verification := domain.WorkItem{
		ID:                id,
		Repo:              parent.Repo,
		Type:              domain.WorkItemTypeVerification,
		Status:            domain.StatusQueued,
		Priority:          parent.Priority,
		Branch:            parent.Branch,
		PRNumber:          &prNumber,
		ParentWorkItemID:  &parentID,
		MaxIterations:     parent.MaxIterations,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.items[id] = verification
	return verification, nil
}

// CompleteVerification atomically completes the verification worker and
// its work item and sets the parent execution item's verificationPassed
// field. The worker's terminality, checked before any mutation, is the
// sole idempotency guard: a second call for an already-terminal worker
// is a no-op.
func (s *Store) CompleteVerification(_ context.Context, workerID string, passed bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.ErrNotFound
	}
	if w.Status.IsTerminal() {
		// already completed: idempotent no-op.
		return nil
	}

	vItem, ok := s.items[w.WorkItemID]
	if !ok {
		return domain.ErrNotFound
	}

	w.Status = domain.WorkerCompleted
	s.workers[workerID] = w
	s.releaseAllLocksOfLocked(workerID)

	vItem.Status = domain.StatusCompleted
	vItem.UpdatedAt = now
	vItem.CompletedAt = &now
	s.items[vItem.ID] = vItem

	if vItem.ParentWorkItemID == nil {
		return nil
	}
	parent, ok := s.items[*vItem.ParentWorkItemID]
	if !ok {
		return nil
	}
	parent.VerificationPassed = domain.TriStateFromBool(passed)
	parent.UpdatedAt = now
	s.items[parent.ID] = parent
	return nil
}

func (s *Store) RevertStaleAssigned(_ context.Context, olderThan time.Time, p retry.Policy, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reverted := 0
	for id, item := range s.items {
		if item.Status != domain.StatusAssigned {
			continue
		}
		if _, hasWorker := s.workerFor(id); hasWorker {
			continue
		}
		if item.UpdatedAt.After(olderThan) {
			continue
		}
		d := retry.Apply(p, retry.Transient, item.RetryCount, item.StuckCount, now)
		if d.Failed {
			item.Status = domain.StatusFailed
			item.CompletedAt = &now
		} else {
			item.Status = domain.StatusQueued
			nra := d.NextRetryAt
			item.NextRetryAt = &nra
		}
		item.RetryCount = d.RetryCount
		item.StuckCount = d.StuckCount
		item.UpdatedAt = now
		s.items[id] = item
		reverted++
	}
	return reverted, nil
}

func (s *Store) workerFor(workItemID string) (domain.Worker, bool) {
	for _, w := range s.workers {
		if w.WorkItemID == workItemID && !w.Status.IsTerminal() {
			return w, true
		}
	}
	return domain.Worker{}, false
}

func (s *Store) RegisterWorker(_ context.Context, workItemID, workerID string, now time.Time) (domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[workItemID]
	if !ok {
		return domain.Worker{}, domain.ErrNotFound
	}
	w := domain.Worker{
		ID:            workerID,
		WorkItemID:    workItemID,
		Status:        domain.WorkerStarting,
		LastHeartbeat: now,
		StartedAt:     now,
	}
	s.workers[workerID] = w

	item.Status = domain.StatusInProgress
	item.WorkerID = &workerID
	item.UpdatedAt = now
	s.items[workItemID] = item
	return w, nil
}

func (s *Store) GetWorker(_ context.Context, workerID string) (domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.Worker{}, domain.ErrNotFound
	}
	return w, nil
}

func (s *Store) Heartbeat(_ context.Context, workerID string, iteration int, tokensIn, tokensOut int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.ErrNotFound
	}
	if w.Status.IsTerminal() {
		return domain.ErrOwnershipLost
	}
	w.Status = domain.WorkerRunning
	w.Iteration = iteration
	w.LastHeartbeat = now
	w.TokensIn = tokensIn
	w.TokensOut = tokensOut
	s.workers[workerID] = w
	return nil
}

func (s *Store) CompleteWorker(_ context.Context, workerID string, result store.CompleteResult, now time.Time) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}
	if w.Status.IsTerminal() {
		return domain.WorkItem{}, domain.ErrOwnershipLost
	}
	item, ok := s.items[w.WorkItemID]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}

	w.Status = domain.WorkerCompleted
	s.workers[workerID] = w
	s.releaseAllLocksOfLocked(workerID)

	item.Status = domain.StatusCompleted
	item.PRURL = result.PRURL
	item.PRNumber = result.PRNumber
	item.UpdatedAt = now
	item.CompletedAt = &now
	s.items[item.ID] = item

	for _, m := range result.Metrics {
		s.metrics = append(s.metrics, m)
	}
	s.learnings = append(s.learnings, result.Learnings...)
	if result.Review != nil {
		s.reviews[item.ID] = *result.Review
	}

	if result.PRNumber != nil && result.VerificationEnabled {
		id := uuid.NewString()
		parentID := item.ID
		verification := domain.WorkItem{
			ID:               id,
			Repo:             item.Repo,
			Type:             domain.WorkItemTypeVerification,
			Status:           domain.StatusQueued,
			Priority:         item.Priority,
			Branch:           item.Branch,
			PRNumber:         result.PRNumber,
			ParentWorkItemID: &parentID,
			MaxIterations:    item.MaxIterations,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		s.items[id] = verification
	}

	return item, nil
}

func (s *Store) FailWorker(_ context.Context, workerID, errMsg string, iteration int, p retry.Policy, now time.Time) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}
	item, ok := s.items[w.WorkItemID]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}

	w.Status = domain.WorkerFailed
	w.Iteration = iteration
	s.workers[workerID] = w
	s.releaseAllLocksOfLocked(workerID)

	d := retry.Apply(p, retry.Transient, item.RetryCount, item.StuckCount, now)
	item = applyRetryDecision(item, d, errMsg, now)
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) MarkStuck(_ context.Context, workerID, reason string, p retry.Policy, now time.Time) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}
	item, ok := s.items[w.WorkItemID]
	if !ok {
		return domain.WorkItem{}, domain.ErrNotFound
	}

	w.Status = domain.WorkerStuck
	s.workers[workerID] = w
	s.releaseAllLocksOfLocked(workerID)

	d := retry.Apply(p, retry.Stuck, item.RetryCount, item.StuckCount, now)
	item = applyRetryDecision(item, d, reason, now)
	s.items[item.ID] = item
	return item, nil
}

func applyRetryDecision(item domain.WorkItem, d retry.Decision, errMsg string, now time.Time) domain.WorkItem {
	item.RetryCount = d.RetryCount
	item.StuckCount = d.StuckCount
	item.Error = &errMsg
	item.UpdatedAt = now
	if d.Failed {
		item.Status = domain.StatusFailed
		item.CompletedAt = &now
	} else {
		item.Status = domain.StatusQueued
		nra := d.NextRetryAt
		item.NextRetryAt = &nra
	}
	return item
}

func (s *Store) KillWorker(_ context.Context, workerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return domain.ErrNotFound
	}
	w.Status = domain.WorkerKilled
	s.workers[workerID] = w
	s.releaseAllLocksOfLocked(workerID)

	if item, ok := s.items[w.WorkItemID]; ok && !item.Status.IsTerminal() {
		item.Status = domain.StatusQueued
		item.UpdatedAt = now
		s.items[item.ID] = item
	}
	return nil
}

func (s *Store) ListStaleWorkers(_ context.Context, staleBefore time.Time) ([]domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Worker
	for _, w := range s.workers {
		if w.Status.IsTerminal() {
			continue
		}
		if w.LastHeartbeat.Before(staleBefore) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) ListWorkers(_ context.Context) ([]domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out, nil
}

func (s *Store) AcquireLocks(_ context.Context, workerID, repo string, paths []string, now time.Time) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paths {
		key := lockKey{repo: repo, path: p}
		if held, ok := s.locks[key]; ok && held.WorkerID != workerID {
			return false, held.WorkerID, nil
		}
	}
	for _, p := range paths {
		key := lockKey{repo: repo, path: p}
		s.locks[key] = domain.FileLock{Repo: repo, Path: p, WorkerID: workerID, AcquiredAt: now}
	}
	return true, "", nil
}

func (s *Store) ReleaseLocks(_ context.Context, workerID, repo string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paths {
		key := lockKey{repo: repo, path: p}
		if held, ok := s.locks[key]; ok && held.WorkerID == workerID {
			delete(s.locks, key)
		}
	}
	return nil
}

func (s *Store) ReleaseAllLocksOf(_ context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseAllLocksOfLocked(workerID)
	return nil
}

func (s *Store) releaseAllLocksOfLocked(workerID string) {
	for key, held := range s.locks {
		if held.WorkerID == workerID {
			delete(s.locks, key)
		}
	}
}

func (s *Store) AppendLearning(_ context.Context, l domain.Learning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.learnings = append(s.learnings, l)
	return nil
}

func (s *Store) ListLearnings(_ context.Context, repo, spec string) ([]domain.Learning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Learning
	for _, l := range s.learnings {
		if repo != "" && l.Repo != repo {
			continue
		}
		if spec != "" && l.Spec != spec {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) AppendWorkerMetric(_ context.Context, m domain.WorkerMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *Store) ListWorkerMetrics(_ context.Context) ([]domain.WorkerMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkerMetric, len(s.metrics))
	copy(out, s.metrics)
	return out, nil
}

func (s *Store) UpsertPRReview(_ context.Context, r domain.PRReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.WorkItemID] = r
	return nil
}

func (s *Store) ListPRReviews(_ context.Context) ([]domain.PRReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PRReview, 0, len(s.reviews))
	for _, r := range s.reviews {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) TryAcquireExclusiveRun(_ context.Context, leaseName, holder string, ttl time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, held := s.leases[leaseName]
	if held && l.holder != holder && l.expiresAt.After(now) {
		return false, nil
	}
	s.leases[leaseName] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

var _ store.Store = (*Store)(nil)
