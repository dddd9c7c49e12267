package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/store"
	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

func (s *Store) RegisterWorker(ctx context.Context, workItemID, workerID string, now time.Time) (domain.Worker, error) {
	var worker domain.Worker
	err := s.withTx(ctx, "register_worker", func(q *sqlcgen.Queries) error {
		row, err := q.InsertWorker(ctx, workerID, workItemID, now)
		if err != nil {
			return err
		}
		if err := q.MarkWorkItemInProgress(ctx, workItemID, workerID, now); err != nil {
			return err
		}
		worker = dbWorkerToDomain(row)
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Worker{}, domain.ErrNotFound
		}
		return domain.Worker{}, fmt.Errorf("register worker: %w", err)
	}
	return worker, nil
}

func (s *Store) GetWorker(ctx context.Context, workerID string) (domain.Worker, error) {
	row, err := s.queries.GetWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Worker{}, domain.ErrNotFound
		}
		return domain.Worker{}, fmt.Errorf("get worker: %w", err)
	}
	return dbWorkerToDomain(row), nil
}

func (s *Store) Heartbeat(ctx context.Context, workerID string, iteration int, tokensIn, tokensOut int64, now time.Time) error {
	_, err := s.queries.Heartbeat(ctx, workerID, int32(iteration), tokensIn, tokensOut, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gErr := s.GetWorker(ctx, workerID); gErr != nil {
				return gErr
			}
			return domain.ErrOwnershipLost
		}
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *Store) CompleteWorker(ctx context.Context, workerID string, result store.CompleteResult, now time.Time) (domain.WorkItem, error) {
	var item domain.WorkItem
	err := s.withTx(ctx, "complete_worker", func(q *sqlcgen.Queries) error {
		worker, err := q.GetWorkerForUpdate(ctx, workerID)
		if err != nil {
			return err
		}
		if domain.WorkerStatus(worker.Status).IsTerminal() {
			return domain.ErrOwnershipLost
		}

		if err := q.SetWorkerStatus(ctx, workerID, string(domain.WorkerCompleted), worker.Iteration); err != nil {
			return err
		}
		if err := q.ReleaseAllFileLocksOf(ctx, workerID); err != nil {
			return err
		}

		row, err := q.CompleteWorkItem(ctx, worker.WorkItemID, ptrToNullInt32(result.PRNumber), ptrToNullString(result.PRURL), now)
		if err != nil {
			return err
		}
		item = dbWorkItemToDomain(row)

		for _, m := range result.Metrics {
			if err := q.InsertWorkerMetric(ctx, sqlcgen.InsertWorkerMetricParams{
				ID:            newID(),
				WorkerID:      workerID,
				WorkItemID:    item.ID,
				Iteration:     int32(m.Iteration),
				TokensIn:      m.TokensIn,
				TokensOut:     m.TokensOut,
				DurationMS:    m.Duration.Milliseconds(),
				FilesModified: int32(m.FilesModified),
				TestsRun:      int32(m.TestsRun),
				TestsPassed:   int32(m.TestsPassed),
				Timestamp:     now,
			}); err != nil {
				return err
			}
		}
		for _, l := range result.Learnings {
			if l.ID == "" {
				l.ID = newID()
			}
			if err := q.InsertLearning(ctx, sqlcgen.InsertLearningParams{
				ID:         l.ID,
				Repo:       l.Repo,
				Spec:       l.Spec,
				Content:    l.Content,
				CreatedAt:  now,
				WorkItemID: item.ID,
			}); err != nil {
				return err
			}
		}
		if result.Review != nil {
			if err := q.UpsertPRReview(ctx, sqlcgen.UpsertPRReviewParams{
				WorkItemID:     item.ID,
				SpecAlignment:  result.Review.SpecAlignment,
				CodeQuality:    result.Review.CodeQuality,
				OverallSummary: ptrToNullString(result.Review.OverallSummary),
				Findings:       metadataToJSON(result.Review.Findings),
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		if result.PRNumber != nil && result.VerificationEnabled {
			vRow, err := q.InsertVerificationWorkItem(ctx, sqlcgen.InsertVerificationWorkItemParams{
				ID:               newID(),
				Repo:             item.Repo,
				Priority:         string(item.Priority),
				Branch:           ptrToNullString(item.Branch),
				PRNumber:         int32(*result.PRNumber),
				ParentWorkItemID: item.ID,
				MaxIterations:    int32(item.MaxIterations),
				Now:              now,
			})
			if err != nil {
				return err
			}
			_ = vRow // the verification item is readable via Queue.Get/List; Complete returns the parent
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkItem{}, domain.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	return item, nil
}

// CompleteVerification atomically completes the verification worker and
// its work item and sets the parent execution item's verificationPassed
// field. The worker's terminality, locked and checked before any
// mutation, is the sole idempotency guard: a second call for an
// already-terminal worker is a no-op.
func (s *Store) CompleteVerification(ctx context.Context, workerID string, passed bool, now time.Time) error {
	err := s.withTx(ctx, "complete_verification", func(q *sqlcgen.Queries) error {
		worker, err := q.GetWorkerForUpdate(ctx, workerID)
		if err != nil {
			return err
		}
		if domain.WorkerStatus(worker.Status).IsTerminal() {
			return nil
		}

		if err := q.SetWorkerStatus(ctx, workerID, string(domain.WorkerCompleted), worker.Iteration); err != nil {
			return err
		}
		if err := q.ReleaseAllFileLocksOf(ctx, workerID); err != nil {
			return err
		}

		parentID, err := q.SetVerificationPassed(ctx, worker.WorkItemID, passed, now)
		if err != nil {
			return err
		}
		if !parentID.Valid {
			return nil
		}
		return q.SetParentVerificationResult(ctx, parentID.V, triStateToDB(domain.TriStateFromBool(passed)), now)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) applyFailureLikeTransition(ctx context.Context, workerID, workerStatus, errMsg string, iteration int, class retry.Class, p retry.Policy, now time.Time) (domain.WorkItem, error) {
	var item domain.WorkItem
	err := s.withTx(ctx, "worker_failure_transition", func(q *sqlcgen.Queries) error {
		worker, err := q.GetWorkerForUpdate(ctx, workerID)
		if err != nil {
			return err
		}
		if domain.WorkerStatus(worker.Status).IsTerminal() {
			return domain.ErrOwnershipLost
		}

		iter := worker.Iteration
		if iteration > 0 {
			iter = int32(iteration)
		}
		if err := q.SetWorkerStatus(ctx, workerID, workerStatus, iter); err != nil {
			return err
		}
		if err := q.ReleaseAllFileLocksOf(ctx, workerID); err != nil {
			return err
		}

		current, err := q.GetWorkItem(ctx, worker.WorkItemID)
		if err != nil {
			return err
		}
		d := retry.Apply(p, class, int(current.RetryCount), int(current.StuckCount), now)

		var nextRetryAt sql.Null[time.Time]
		status := string(domain.StatusQueued)
		if d.Failed {
			status = string(domain.StatusFailed)
		} else {
			nextRetryAt = sql.Null[time.Time]{V: d.NextRetryAt, Valid: true}
		}

		row, err := q.ApplyWorkItemRetryDecision(ctx, sqlcgen.ApplyRetryDecisionParams{
			ID:          worker.WorkItemID,
			Status:      status,
			RetryCount:  int32(d.RetryCount),
			StuckCount:  int32(d.StuckCount),
			NextRetryAt: nextRetryAt,
			Error:       errMsg,
			Now:         now,
		})
		if err != nil {
			return err
		}
		item = dbWorkItemToDomain(row)
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkItem{}, domain.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	return item, nil
}

func (s *Store) FailWorker(ctx context.Context, workerID, errMsg string, iteration int, p retry.Policy, now time.Time) (domain.WorkItem, error) {
	return s.applyFailureLikeTransition(ctx, workerID, string(domain.WorkerFailed), errMsg, iteration, retry.Transient, p, now)
}

func (s *Store) MarkStuck(ctx context.Context, workerID, reason string, p retry.Policy, now time.Time) (domain.WorkItem, error) {
	return s.applyFailureLikeTransition(ctx, workerID, string(domain.WorkerStuck), reason, 0, retry.Stuck, p, now)
}

func (s *Store) KillWorker(ctx context.Context, workerID string, now time.Time) error {
	return s.withTx(ctx, "kill_worker", func(q *sqlcgen.Queries) error {
		worker, err := q.GetWorkerForUpdate(ctx, workerID)
		if err != nil {
			return err
		}
		if err := q.SetWorkerStatus(ctx, workerID, string(domain.WorkerKilled), worker.Iteration); err != nil {
			return err
		}
		if err := q.ReleaseAllFileLocksOf(ctx, workerID); err != nil {
			return err
		}
		return q.RevertWorkItemToQueued(ctx, worker.WorkItemID, now)
	})
}

func (s *Store) ListStaleWorkers(ctx context.Context, staleBefore time.Time) ([]domain.Worker, error) {
	rows, err := s.queries.ListStaleWorkers(ctx, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale workers: %w", err)
	}
	out := make([]domain.Worker, len(rows))
	for i, r := range rows {
		out[i] = dbWorkerToDomain(r)
	}
	return out, nil
}

func (s *Store) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := s.queries.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	out := make([]domain.Worker, len(rows))
	for i, r := range rows {
		out[i] = dbWorkerToDomain(r)
	}
	return out, nil
}
