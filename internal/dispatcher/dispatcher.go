// Package dispatcher implements the cooperative loop that matches idle
// worker capacity to claimable work, enforcing a bounded concurrency
// pool and a daily iteration budget.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/queue"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

// Spawner launches the child process for a claimed work item per the
// worker spawn contract (ORCHESTRATOR_URL, WORKER_ID, WORK_ITEM,
// GITHUB_TOKEN, WORK_DIR). It is expected to be non-blocking: the
// spawned worker communicates back asynchronously via the worker RPCs.
type Spawner interface {
	Spawn(ctx context.Context, workerID string, item domain.WorkItem) error
}

// Config holds the dispatcher's tunables.
type Config struct {
	// Capacity is the maximum number of concurrently running workers.
	Capacity int
	// PollInterval is how often the dispatcher checks for claimable
	// work when idle capacity exists.
	PollInterval time.Duration
	// DailyBudget caps claim attempts per calendar day; 0 disables the
	// cap.
	DailyBudget int
}

// DefaultConfig returns reasonable defaults for a single orchestrator
// instance.
func DefaultConfig() Config {
	return Config{Capacity: 4, PollInterval: time.Second, DailyBudget: 0}
}

// Dispatcher is the cooperative claim-and-spawn loop.
type Dispatcher struct {
	queue    *queue.Manager
	registry *workerreg.Registry
	spawner  Spawner
	cfg      Config
	now      func() time.Time

	sem    chan struct{}
	budget *dailyBudget
	newID  func() string
}

// New constructs a Dispatcher.
func New(q *queue.Manager, reg *workerreg.Registry, spawner Spawner, cfg Config) *Dispatcher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	return &Dispatcher{
		queue:    q,
		registry: reg,
		spawner:  spawner,
		cfg:      cfg,
		now:      time.Now,
		sem:      make(chan struct{}, cfg.Capacity),
		budget:   newDailyBudget(cfg.DailyBudget),
		newID:    uuid.NewString,
	}
}

// Run drives the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.fillCapacity(ctx)
		}
	}
}

// fillCapacity claims and spawns work until capacity or the daily
// budget is exhausted.
func (d *Dispatcher) fillCapacity(ctx context.Context) {
	for {
		select {
		case d.sem <- struct{}{}:
		default:
			return // at capacity
		}

		if !d.budget.take(d.now()) {
			<-d.sem
			return
		}

		item, err := d.queue.ClaimNext(ctx, nil)
		if err != nil {
			<-d.sem
			if !errors.Is(err, domain.ErrQueueEmpty) {
				slog.ErrorContext(ctx, "dispatcher: claim failed", "error", err)
			}
			return
		}

		go d.dispatchOne(ctx, item)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, item domain.WorkItem) {
	defer func() { <-d.sem }()

	workerID := d.newID()
	if _, err := d.registry.Register(ctx, item.ID, workerID); err != nil {
		slog.ErrorContext(ctx, "dispatcher: failed to register worker", "work_item_id", item.ID, "error", err)
		return
	}

	if err := d.spawner.Spawn(ctx, workerID, item); err != nil {
		slog.ErrorContext(ctx, "dispatcher: spawn failed, failing item transiently", "work_item_id", item.ID, "worker_id", workerID, "error", err)
		if _, ferr := d.registry.Fail(ctx, workerID, err.Error(), 0); ferr != nil {
			slog.ErrorContext(ctx, "dispatcher: failed to record spawn failure", "worker_id", workerID, "error", ferr)
		}
	}
}

// dailyBudget enforces a per-calendar-day cap on claim attempts.
// Exhaustion suppresses dispatch without failing items.
type dailyBudget struct {
	limit     int
	remaining int
	day       string
}

func newDailyBudget(limit int) *dailyBudget {
	return &dailyBudget{limit: limit}
}

func (b *dailyBudget) take(now time.Time) bool {
	if b.limit <= 0 {
		return true
	}
	day := now.UTC().Format("2006-01-02")
	if day != b.day {
		b.day = day
		b.remaining = b.limit
	}
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}
