package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/store"
	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

func (s *Store) InsertWorkItem(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	row, err := s.queries.InsertWorkItem(ctx, sqlcgen.InsertWorkItemParams{
		ID:               item.ID,
		Repo:             item.Repo,
		Type:             string(item.Type),
		Status:           string(item.Status),
		Priority:         string(item.Priority),
		Spec:             ptrToNullString(item.Spec),
		Description:      ptrToNullString(item.Description),
		Branch:           ptrToNullString(item.Branch),
		ParentWorkItemID: ptrToNullString(item.ParentWorkItemID),
		Iteration:        int32(item.Iteration),
		MaxIterations:    int32(item.MaxIterations),
		Source:           ptrToNullString(item.Source),
		SourceRef:        ptrToNullString(item.SourceRef),
		Metadata:         metadataToJSON(item.Metadata),
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WorkItem{}, domain.ErrAlreadyExists
		}
		return domain.WorkItem{}, fmt.Errorf("insert work item: %w", err)
	}
	return dbWorkItemToDomain(row), nil
}

func (s *Store) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row, err := s.queries.GetWorkItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkItem{}, domain.ErrNotFound
		}
		return domain.WorkItem{}, fmt.Errorf("get work item: %w", err)
	}
	return dbWorkItemToDomain(row), nil
}

func (s *Store) ClaimNextWorkItem(ctx context.Context, typeFilter *domain.WorkItemType, now time.Time) (domain.WorkItem, error) {
	filter := ""
	if typeFilter != nil {
		filter = string(*typeFilter)
	}

	var claimed domain.WorkItem
	err := s.withTx(ctx, "claim_next_work_item", func(q *sqlcgen.Queries) error {
		row, err := q.ClaimNextWorkItem(ctx, filter, now)
		if err != nil {
			return err
		}
		claimed = dbWorkItemToDomain(row)
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkItem{}, domain.ErrQueueEmpty
		}
		return domain.WorkItem{}, fmt.Errorf("claim next work item: %w", err)
	}
	return claimed, nil
}

func (s *Store) CancelWorkItem(ctx context.Context, id string, now time.Time) (bool, error) {
	_, err := s.queries.CancelWorkItem(ctx, id, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gErr := s.GetWorkItem(ctx, id); gErr != nil {
				return false, gErr
			}
			return false, nil
		}
		return false, fmt.Errorf("cancel work item: %w", err)
	}
	return true, nil
}

func (s *Store) ListActiveWorkItems(ctx context.Context, typeFilter *domain.WorkItemType) ([]domain.WorkItem, error) {
	filter := ""
	if typeFilter != nil {
		filter = string(*typeFilter)
	}
	rows, err := s.queries.ListActiveWorkItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list active work items: %w", err)
	}
	out := make([]domain.WorkItem, len(rows))
	for i, r := range rows {
		out[i] = dbWorkItemToDomain(r)
	}
	return out, nil
}

// ListByStatus returns every work item in the given status, newest
// first, regardless of whether the status is terminal. It backs the
// dead-letter review surface (status=failed) without introducing a
// separate entity.
func (s *Store) ListByStatus(ctx context.Context, status domain.WorkItemStatus) ([]domain.WorkItem, error) {
	rows, err := s.queries.ListWorkItemsByStatus(ctx, string(status))
	if err != nil {
		return nil, fmt.Errorf("list work items by status: %w", err)
	}
	out := make([]domain.WorkItem, len(rows))
	for i, r := range rows {
		out[i] = dbWorkItemToDomain(r)
	}
	return out, nil
}

func (s *Store) QueueStats(ctx context.Context) (store.QueueStats, error) {
	byStatus, err := s.queries.QueueStatsByStatus(ctx)
	if err != nil {
		return store.QueueStats{}, fmt.Errorf("queue stats by status: %w", err)
	}
	byPriority, err := s.queries.QueueStatsByPriority(ctx)
	if err != nil {
		return store.QueueStats{}, fmt.Errorf("queue stats by priority: %w", err)
	}

	stats := store.QueueStats{
		ByStatus:   make(map[domain.WorkItemStatus]int),
		ByPriority: make(map[domain.Priority]int),
	}
	for _, c := range byStatus {
		stats.ByStatus[domain.WorkItemStatus(c.Status)] = int(c.Count)
		stats.Total += int(c.Count)
	}
	for _, c := range byPriority {
		stats.ByPriority[domain.Priority(c.Priority)] = int(c.Count)
	}
	return stats, nil
}

func (s *Store) UpdateGenerationResult(ctx context.Context, id, spec, branch string, now time.Time) error {
	if err := s.queries.UpdateGenerationResult(ctx, id, spec, branch, now); err != nil {
		return fmt.Errorf("update generation result: %w", err)
	}
	return nil
}

func (s *Store) ScheduleGenerationRetry(ctx context.Context, id string, attempts int, now time.Time) error {
	if err := s.queries.ScheduleGenerationRetry(ctx, id, int32(attempts), now); err != nil {
		return fmt.Errorf("schedule generation retry: %w", err)
	}
	return nil
}

func (s *Store) FailGeneration(ctx context.Context, id, errMsg string, now time.Time) error {
	if err := s.queries.FailGeneration(ctx, id, errMsg, now); err != nil {
		return fmt.Errorf("fail generation: %w", err)
	}
	return nil
}

func (s *Store) CancelGeneration(ctx context.Context, id string, now time.Time) error {
	if err := s.queries.CancelGeneration(ctx, id, now); err != nil {
		return fmt.Errorf("cancel generation: %w", err)
	}
	return nil
}

func (s *Store) EnqueueVerification(ctx context.Context, parent domain.WorkItem, prNumber int, now time.Time) (domain.WorkItem, error) {
	row, err := s.queries.InsertVerificationWorkItem(ctx, sqlcgen.InsertVerificationWorkItemParams{
		ID:               newID(),
		Repo:             parent.Repo,
		Priority:         string(parent.Priority),
		Branch:           ptrToNullString(parent.Branch),
		PRNumber:         int32(prNumber),
		ParentWorkItemID: parent.ID,
		MaxIterations:    int32(parent.MaxIterations),
		Now:              now,
	})
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("enqueue verification: %w", err)
	}
	return dbWorkItemToDomain(row), nil
}

func (s *Store) RevertStaleAssigned(ctx context.Context, olderThan time.Time, p retry.Policy, now time.Time) (int, error) {
	reverted := 0
	err := s.withTx(ctx, "revert_stale_assigned", func(q *sqlcgen.Queries) error {
		stale, err := q.SelectStaleAssignedForUpdate(ctx, olderThan)
		if err != nil {
			return err
		}
		for _, item := range stale {
			d := retry.Apply(p, retry.Transient, int(item.RetryCount), int(item.StuckCount), now)
			if d.Failed {
				if err := q.FailAssigned(ctx, item.ID, int32(d.RetryCount), int32(d.StuckCount), now); err != nil {
					return err
				}
			} else {
				if err := q.RevertAssignedToQueued(ctx, item.ID, d.NextRetryAt, int32(d.RetryCount), int32(d.StuckCount), now); err != nil {
					return err
				}
			}
			reverted++
		}
		return nil
	})
	return reverted, err
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
