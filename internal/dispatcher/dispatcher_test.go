package dispatcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/dispatcher"
	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/queue"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/storage/memstore"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

type recordingSpawner struct {
	mu     sync.Mutex
	spawns []string
}

func (r *recordingSpawner) Spawn(ctx context.Context, workerID string, item domain.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawns = append(r.spawns, item.ID)
	return nil
}

func (r *recordingSpawner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spawns)
}

func TestDispatcherClaimsAndSpawnsWithinCapacity(t *testing.T) {
	ms := memstore.New()
	q := queue.New(ms)
	reg := workerreg.New(ms, retry.DefaultPolicy())
	spawner := &recordingSpawner{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spec := "x"
	for i := 0; i < 3; i++ {
		_, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
		require.NoError(t, err)
	}

	d := dispatcher.New(q, reg, spawner, dispatcher.Config{Capacity: 2, PollInterval: 5 * time.Millisecond})
	go d.Run(ctx)

	require.Eventually(t, func() bool { return spawner.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestDailyBudgetSuppressesDispatchWithoutFailingItems(t *testing.T) {
	ms := memstore.New()
	q := queue.New(ms)
	reg := workerreg.New(ms, retry.DefaultPolicy())
	spawner := &recordingSpawner{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spec := "x"
	itemA, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)
	itemB, err := q.Submit(ctx, queue.SubmitRequest{Repo: "o/r", Spec: &spec})
	require.NoError(t, err)

	d := dispatcher.New(q, reg, spawner, dispatcher.Config{Capacity: 2, PollInterval: 5 * time.Millisecond, DailyBudget: 1})
	go d.Run(ctx)

	require.Eventually(t, func() bool { return spawner.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, spawner.count(), "exhausted daily budget must suppress further dispatch")

	gotA, err := ms.GetWorkItem(ctx, itemA.ID)
	require.NoError(t, err)
	gotB, err := ms.GetWorkItem(ctx, itemB.ID)
	require.NoError(t, err)
	notFailed := func(s domain.WorkItemStatus) bool { return s != domain.StatusFailed }
	assert.True(t, notFailed(gotA.Status))
	assert.True(t, notFailed(gotB.Status))
}
