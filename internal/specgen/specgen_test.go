package specgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/storage/memstore"
)

type scriptedInvoker struct {
	events []Event
}

func (s scriptedInvoker) Invoke(ctx context.Context, item domain.WorkItem, workDir string) (<-chan Event, error) {
	out := make(chan Event, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func waitUntilNotGenerating(t *testing.T, m *Manager, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !m.IsGenerating(id) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("generation for %s still in flight after deadline", id)
}

func TestSuccessfulGenerationUpdatesItem(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	desc := "add login"

	item, err := ms.InsertWorkItem(ctx, domain.WorkItem{
		Repo:        "o/r",
		Type:        domain.WorkItemTypeExecution,
		Status:      domain.StatusGenerating,
		Priority:    domain.PriorityMedium,
		Description: &desc,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
	require.NoError(t, err)

	dir := t.TempDir()
	specPath := filepath.Join(dir, "spec.md")
	require.NoError(t, os.WriteFile(specPath, []byte("the generated spec"), 0o644))

	invoker := scriptedInvoker{events: []Event{
		{Type: EventStarted},
		{Type: EventComplete, SpecPath: specPath, TaskCount: 3, ValidationPassed: true},
	}}
	mgr := New(ms, invoker, Config{Timeout: time.Second, MaxAttempts: 3, ScratchRoot: t.TempDir()})

	mgr.Start(ctx, item)
	waitUntilNotGenerating(t, mgr, item.ID)

	got, err := ms.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	require.NotNil(t, got.Spec)
	assert.Equal(t, "the generated spec", *got.Spec)
	require.NotNil(t, got.Branch)
}

func TestStartIsIdempotentPerItem(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	desc := "add login"

	item, err := ms.InsertWorkItem(ctx, domain.WorkItem{
		Repo: "o/r", Type: domain.WorkItemTypeExecution, Status: domain.StatusGenerating,
		Priority: domain.PriorityMedium, Description: &desc, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	blocking := make(chan Event)
	invoker := blockingInvoker{ch: blocking}
	mgr := New(ms, invoker, Config{Timeout: time.Minute, MaxAttempts: 3, ScratchRoot: t.TempDir()})

	mgr.Start(ctx, item)
	mgr.Start(ctx, item)
	assert.Equal(t, 1, mgr.InFlightCount(), "second Start for the same item must be a no-op")

	close(blocking)
}

type blockingInvoker struct {
	ch chan Event
}

func (b blockingInvoker) Invoke(ctx context.Context, item domain.WorkItem, workDir string) (<-chan Event, error) {
	return b.ch, nil
}

func TestExhaustedAttemptsFailsItem(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	desc := "add login"

	item, err := ms.InsertWorkItem(ctx, domain.WorkItem{
		Repo: "o/r", Type: domain.WorkItemTypeExecution, Status: domain.StatusGenerating,
		Priority: domain.PriorityMedium, Description: &desc, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	invoker := scriptedInvoker{events: []Event{
		{Type: EventFailed, Error: "boom"},
	}}
	mgr := New(ms, invoker, Config{Timeout: time.Second, MaxAttempts: 1, ScratchRoot: t.TempDir()})

	mgr.Start(ctx, item)
	waitUntilNotGenerating(t, mgr, item.ID)

	got, err := ms.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
}
