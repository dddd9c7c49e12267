package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/storage/postgres/sqlcgen"
)

func ptrToNullString(p *string) sql.Null[string] {
	if p == nil {
		return sql.Null[string]{}
	}
	return sql.Null[string]{V: *p, Valid: true}
}

func nullStringToPtr(n sql.Null[string]) *string {
	if !n.Valid {
		return nil
	}
	return &n.V
}

func ptrToNullInt32(p *int) sql.Null[int32] {
	if p == nil {
		return sql.Null[int32]{}
	}
	return sql.Null[int32]{V: int32(*p), Valid: true}
}

func nullInt32ToPtr(n sql.Null[int32]) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.V)
	return &v
}

func ptrToNullTime(p *time.Time) sql.Null[time.Time] {
	if p == nil {
		return sql.Null[time.Time]{}
	}
	return sql.Null[time.Time]{V: *p, Valid: true}
}

func nullTimeToPtr(n sql.Null[time.Time]) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.V.UTC()
	return &v
}

func triStateToDB(t domain.TriState) string {
	switch t {
	case domain.TriTrue:
		return "true"
	case domain.TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

func triStateFromDB(s string) domain.TriState {
	switch s {
	case "true":
		return domain.TriTrue
	case "false":
		return domain.TriFalse
	default:
		return domain.TriUnknown
	}
}

func metadataToJSON(m map[string]any) []byte {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func metadataFromJSON(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func dbWorkItemToDomain(w sqlcgen.WorkItem) domain.WorkItem {
	return domain.WorkItem{
		ID:                 w.ID,
		Repo:               w.Repo,
		Type:               domain.WorkItemType(w.Type),
		Status:             domain.WorkItemStatus(w.Status),
		Priority:           domain.Priority(w.Priority),
		Spec:               nullStringToPtr(w.Spec),
		Description:        nullStringToPtr(w.Description),
		Branch:             nullStringToPtr(w.Branch),
		PRNumber:           nullInt32ToPtr(w.PRNumber),
		PRURL:              nullStringToPtr(w.PRURL),
		ParentWorkItemID:   nullStringToPtr(w.ParentWorkItemID),
		VerificationPassed: triStateFromDB(w.VerificationPassed),
		Iteration:          int(w.Iteration),
		MaxIterations:      int(w.MaxIterations),
		RetryCount:         int(w.RetryCount),
		StuckCount:         int(w.StuckCount),
		NextRetryAt:        nullTimeToPtr(w.NextRetryAt),
		Source:             nullStringToPtr(w.Source),
		SourceRef:          nullStringToPtr(w.SourceRef),
		Metadata:           metadataFromJSON(w.Metadata),
		WorkerID:           nullStringToPtr(w.WorkerID),
		CreatedAt:          w.CreatedAt.UTC(),
		UpdatedAt:          w.UpdatedAt.UTC(),
		CompletedAt:        nullTimeToPtr(w.CompletedAt),
		Error:              nullStringToPtr(w.Error),
	}
}

func dbWorkerToDomain(w sqlcgen.Worker) domain.Worker {
	return domain.Worker{
		ID:            w.ID,
		WorkItemID:    w.WorkItemID,
		Status:        domain.WorkerStatus(w.Status),
		Iteration:     int(w.Iteration),
		LastHeartbeat: w.LastHeartbeat.UTC(),
		StartedAt:     w.StartedAt.UTC(),
		TokensIn:      w.TokensIn,
		TokensOut:     w.TokensOut,
	}
}

func dbLearningToDomain(l sqlcgen.Learning) domain.Learning {
	return domain.Learning{
		ID:         l.ID,
		Repo:       l.Repo,
		Spec:       l.Spec,
		Content:    l.Content,
		CreatedAt:  l.CreatedAt.UTC(),
		WorkItemID: l.WorkItemID,
	}
}

func dbMetricToDomain(m sqlcgen.WorkerMetric) domain.WorkerMetric {
	return domain.WorkerMetric{
		ID:            m.ID,
		WorkerID:      m.WorkerID,
		WorkItemID:    m.WorkItemID,
		Iteration:     int(m.Iteration),
		TokensIn:      m.TokensIn,
		TokensOut:     m.TokensOut,
		Duration:      time.Duration(m.DurationMS) * time.Millisecond,
		FilesModified: int(m.FilesModified),
		TestsRun:      int(m.TestsRun),
		TestsPassed:   int(m.TestsPassed),
		Timestamp:     m.Timestamp.UTC(),
	}
}

func dbReviewToDomain(r sqlcgen.PRReview) domain.PRReview {
	var findings map[string]any
	if len(r.Findings) > 0 {
		_ = json.Unmarshal(r.Findings, &findings)
	}
	return domain.PRReview{
		WorkItemID:     r.WorkItemID,
		SpecAlignment:  r.SpecAlignment,
		CodeQuality:    r.CodeQuality,
		OverallSummary: nullStringToPtr(r.OverallSummary),
		Findings:       findings,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}
