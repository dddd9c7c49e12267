package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

func (s *Store) AppendLearning(ctx context.Context, l domain.Learning) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if err := s.queries.InsertLearning(ctx, sqlcgen.InsertLearningParams{
		ID:         l.ID,
		Repo:       l.Repo,
		Spec:       l.Spec,
		Content:    l.Content,
		CreatedAt:  l.CreatedAt,
		WorkItemID: l.WorkItemID,
	}); err != nil {
		return fmt.Errorf("append learning: %w", err)
	}
	return nil
}

func (s *Store) ListLearnings(ctx context.Context, repo, spec string) ([]domain.Learning, error) {
	rows, err := s.queries.ListLearnings(ctx, repo, spec)
	if err != nil {
		return nil, fmt.Errorf("list learnings: %w", err)
	}
	out := make([]domain.Learning, len(rows))
	for i, r := range rows {
		out[i] = dbLearningToDomain(r)
	}
	return out, nil
}

func (s *Store) AppendWorkerMetric(ctx context.Context, m domain.WorkerMetric) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if err := s.queries.InsertWorkerMetric(ctx, sqlcgen.InsertWorkerMetricParams{
		ID:            m.ID,
		WorkerID:      m.WorkerID,
		WorkItemID:    m.WorkItemID,
		Iteration:     int32(m.Iteration),
		TokensIn:      m.TokensIn,
		TokensOut:     m.TokensOut,
		DurationMS:    m.Duration.Milliseconds(),
		FilesModified: int32(m.FilesModified),
		TestsRun:      int32(m.TestsRun),
		TestsPassed:   int32(m.TestsPassed),
		Timestamp:     m.Timestamp,
	}); err != nil {
		return fmt.Errorf("append worker metric: %w", err)
	}
	return nil
}

func (s *Store) ListWorkerMetrics(ctx context.Context) ([]domain.WorkerMetric, error) {
	rows, err := s.queries.ListWorkerMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list worker metrics: %w", err)
	}
	out := make([]domain.WorkerMetric, len(rows))
	for i, r := range rows {
		out[i] = dbMetricToDomain(r)
	}
	return out, nil
}

func (s *Store) UpsertPRReview(ctx context.Context, r domain.PRReview) error {
	if err := s.queries.UpsertPRReview(ctx, sqlcgen.UpsertPRReviewParams{
		WorkItemID:     r.WorkItemID,
		SpecAlignment:  r.SpecAlignment,
		CodeQuality:    r.CodeQuality,
		OverallSummary: ptrToNullString(r.OverallSummary),
		Findings:       metadataToJSON(r.Findings),
		CreatedAt:      r.CreatedAt,
	}); err != nil {
		return fmt.Errorf("upsert pr review: %w", err)
	}
	return nil
}

func (s *Store) ListPRReviews(ctx context.Context) ([]domain.PRReview, error) {
	rows, err := s.queries.ListPRReviews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pr reviews: %w", err)
	}
	out := make([]domain.PRReview, len(rows))
	for i, r := range rows {
		out[i] = dbReviewToDomain(r)
	}
	return out, nil
}

// TryAcquireExclusiveRun implements the sweeper's singleton-lease
// pattern via an upsert guarded so only the current holder or an
// expired lease can be overwritten.
func (s *Store) TryAcquireExclusiveRun(ctx context.Context, leaseName, holder string, ttl time.Duration, now time.Time) (bool, error) {
	actualHolder, err := s.queries.UpsertCronLease(ctx, leaseName, holder, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("try acquire exclusive run: %w", err)
	}
	return actualHolder == holder, nil
}
