package workerreg_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/queue"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/storage/memstore"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

func setup() (*memstore.Store, *queue.Manager, *workerreg.Registry) {
	ms := memstore.New()
	return ms, queue.New(ms), workerreg.New(ms, retry.DefaultPolicy())
}

func TestRegisterTransitionsItemToInProgress(t *testing.T) {
	ms, q, reg := setup()
	ctx := context.Background()
	spec := "do X"

	item, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, nil)
	require.NoError(t, err)

	w, err := reg.Register(ctx, item.ID, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerStarting, w.Status)

	got, err := ms.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestCompleteEnqueuesVerificationWhenEnabled(t *testing.T) {
	ms, q, reg := setup()
	ctx := context.Background()
	spec := "do X"

	item, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, item.ID, "worker-1")
	require.NoError(t, err)

	prURL := "https://example.com/pull/7"
	prNumber := 7
	completed, err := reg.Complete(ctx, "worker-1", workerreg.CompleteRequest{
		PRURL:               &prURL,
		PRNumber:            &prNumber,
		VerificationEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)

	typeFilter := domain.WorkItemTypeVerification
	active, err := ms.ListActiveWorkItems(ctx, &typeFilter)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, item.ID, *active[0].ParentWorkItemID)
	assert.Equal(t, prNumber, *active[0].PRNumber)
}

func TestCompleteVerificationIsIdempotent(t *testing.T) {
	ms, q, reg := setup()
	ctx := context.Background()
	spec := "do X"

	item, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, item.ID, "exec-worker")
	require.NoError(t, err)

	prNumber := 7
	_, err = reg.Complete(ctx, "exec-worker", workerreg.CompleteRequest{PRNumber: &prNumber, VerificationEnabled: true})
	require.NoError(t, err)

	typeFilter := domain.WorkItemTypeVerification
	active, err := ms.ListActiveWorkItems(ctx, &typeFilter)
	require.NoError(t, err)
	require.Len(t, active, 1)
	verificationItem := active[0]

	_, err = reg.Register(ctx, verificationItem.ID, "verify-worker")
	require.NoError(t, err)

	require.NoError(t, reg.CompleteVerification(ctx, "verify-worker", true))
	require.NoError(t, reg.CompleteVerification(ctx, "verify-worker", false), "second call must not error")

	parent, err := ms.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TriTrue, parent.VerificationPassed, "first call's outcome wins")
}

func TestFailAppliesRetryPolicy(t *testing.T) {
	ms, q, _ := setup()
	ctx := context.Background()
	policy := retry.Policy{Cap: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	reg := workerreg.New(ms, policy)
	spec := "do X"

	item, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, item.ID, "worker-1")
	require.NoError(t, err)

	updated, err := reg.Fail(ctx, "worker-1", "boom", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, updated.Status, "cap of 1 exhausts on first failure")
}

func TestKillReleasesLocksAndRequeues(t *testing.T) {
	ms, q, reg := setup()
	ctx := context.Background()
	spec := "do X"

	item, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, item.ID, "worker-1")
	require.NoError(t, err)

	acquired, _, err := ms.AcquireLocks(ctx, "worker-1", "o/r", []string{"src/a"}, time.Now())
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, reg.Kill(ctx, "worker-1"))

	acquired2, conflicting, err := ms.AcquireLocks(ctx, "worker-2", "o/r", []string{"src/a"}, time.Now())
	require.NoError(t, err)
	assert.True(t, acquired2, "killed worker's locks must be released")
	assert.Empty(t, conflicting)

	got, err := ms.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status, "killed worker's item must return to queued")
}
